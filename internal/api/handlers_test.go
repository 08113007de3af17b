package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/linknotes/internal/export"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/s3client"
	"github.com/kuitang/linknotes/internal/testdb"
)

type testServer struct {
	*httptest.Server
	svc *notes.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc, store := testdb.NewService(t)
	exporter := export.New(svc, s3client.TestClient(t, "linknotes-api"), "exports", nil)

	mux := http.NewServeMux()
	NewHandler(svc, exporter, store).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) create(t *testing.T, title, content string) notes.Note {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/notes", notes.CreateNoteParams{Title: title, Content: content})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	n := decode[notes.Note](t, resp)
	require.Equal(t, "/api/notes/"+n.ID, resp.Header.Get("Location"))
	return n
}

func (ts *testServer) get(t *testing.T, id string) notes.Note {
	t.Helper()
	resp := ts.do(t, http.MethodGet, "/api/notes/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[notes.Note](t, resp)
}

// =============================================================================
// CRUD with backlinks
// =============================================================================

func TestAPI_BacklinkLifecycle(t *testing.T) {
	ts := newTestServer(t)

	alpha := ts.create(t, "Alpha", "first note")
	beta := ts.create(t, "Beta", "see Alpha for details")

	require.Equal(t, []string{"Beta"}, ts.get(t, alpha.ID).Backlinks.Sorted())
	require.Equal(t, 0, ts.get(t, beta.ID).Backlinks.Len())

	// Rename Alpha to Gamma: Beta no longer references it
	resp := ts.do(t, http.MethodPut, "/api/notes/"+alpha.ID, map[string]string{"title": "Gamma"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decode[notes.Note](t, resp)
	require.Equal(t, "Gamma", renamed.Title)
	require.Equal(t, "first note", renamed.Content)
	require.Equal(t, 0, renamed.Backlinks.Len())

	// Beta now points at Gamma
	resp = ts.do(t, http.MethodPut, "/api/notes/"+beta.ID, map[string]string{"content": "see Gamma"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"Beta"}, ts.get(t, alpha.ID).Backlinks.Sorted())

	resp = ts.do(t, http.MethodGet, "/api/notes/"+alpha.ID+"/backlinks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bl := decode[BacklinksResponse](t, resp)
	require.Equal(t, "Gamma", bl.Title)
	require.Equal(t, []string{"Beta"}, bl.Backlinks)
	require.Len(t, bl.Sources, 1)
	require.Equal(t, beta.ID, bl.Sources[0].ID)

	// Deleting Beta clears Gamma's backlinks
	resp = ts.do(t, http.MethodDelete, "/api/notes/"+beta.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 0, ts.get(t, alpha.ID).Backlinks.Len())

	resp = ts.do(t, http.MethodGet, "/api/notes/"+beta.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListAndSearch(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decode[notes.NoteListResult](t, resp)
	require.NotNil(t, empty.Notes)
	require.Equal(t, 0, empty.TotalCount)

	ts.create(t, "Groceries", "milk and EGGS")
	ts.create(t, "Work", "quarterly plan")

	resp = ts.do(t, http.MethodGet, "/api/notes", nil)
	all := decode[notes.NoteListResult](t, resp)
	require.Equal(t, 2, all.TotalCount)
	require.Equal(t, "Groceries", all.Notes[0].Title)

	resp = ts.do(t, http.MethodGet, "/api/notes?q=eggs", nil)
	found := decode[notes.NoteListResult](t, resp)
	require.Equal(t, 1, found.TotalCount)
	require.Equal(t, "Groceries", found.Notes[0].Title)

	resp = ts.do(t, http.MethodPost, "/api/notes/search", SearchRequest{Query: "WORK"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found = decode[notes.NoteListResult](t, resp)
	require.Equal(t, 1, found.TotalCount)
	require.Equal(t, "Work", found.Notes[0].Title)
}

// =============================================================================
// Errors
// =============================================================================

func TestAPI_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/notes", notes.CreateNoteParams{Title: "   ", Content: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	er := decode[ErrorResponse](t, resp)
	require.Equal(t, "invalid_argument", er.Code)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/notes", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/notes/does-not-exist", map[string]string{"title": "X"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decode[ErrorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodDelete, "/api/notes/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/notes/does-not-exist/backlinks", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_OversizedBody(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(notes.NewService(notes.NewMemStore()), nil, nil).RegisterRoutes(mux)

	raw, err := json.Marshal(notes.CreateNoteParams{Title: "Big", Content: strings.Repeat("x", maxBodyBytes+1)})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewReader(raw)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// Maintenance endpoints
// =============================================================================

func TestAPI_Rebuild(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "Alpha", "")
	ts.create(t, "Beta", "Alpha")

	resp := ts.do(t, http.MethodPost, "/api/rebuild", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[notes.RebuildResult](t, resp)
	require.Equal(t, 2, res.NotesScanned)
	require.Equal(t, 0, res.NotesRewritten)
}

func TestAPI_ExportAndList(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "Alpha", "")

	resp := ts.do(t, http.MethodPost, "/api/export", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[export.Result](t, resp)
	require.Equal(t, 1, res.NoteCount)
	require.True(t, strings.HasPrefix(res.Key, "exports/"))

	resp = ts.do(t, http.MethodGet, "/api/exports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ExportListResponse](t, resp)
	require.Len(t, list.Exports, 1)
	require.Equal(t, res.Key, list.Exports[0].Key)
}

func TestAPI_ExportWithoutStorage(t *testing.T) {
	svc := notes.NewService(notes.NewMemStore())
	mux := http.NewServeMux()
	NewHandler(svc, nil, nil).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("disk gone") }

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mux := http.NewServeMux()
	NewHandler(notes.NewService(notes.NewMemStore()), nil, downPinger{}).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "disk gone")
}

func TestAPI_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "Alpha", "")

	resp := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "linknotes_note_mutations_total")
}
