package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kuitang/linknotes/internal/errs"
	"github.com/kuitang/linknotes/internal/export"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/obs"
)

// maxBodyBytes bounds request bodies: note content plus title and JSON overhead.
const maxBodyBytes = notes.MaxContentBytes*2 + 64*1024

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wraps the notes service and provides HTTP handlers
type Handler struct {
	notesService *notes.Service
	exporter     *export.Exporter
	health       Pinger
}

// NewHandler creates a new API handler with the given notes service.
// exporter and health may be nil; the matching endpoints then answer 503.
func NewHandler(notesService *notes.Service, exporter *export.Exporter, health Pinger) *Handler {
	return &Handler{notesService: notesService, exporter: exporter, health: health}
}

// RegisterRoutes registers all notes API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Notes CRUD endpoints using Go 1.22+ routing patterns
	mux.HandleFunc("GET /api/notes", h.ListNotes)
	mux.HandleFunc("GET /api/notes/{id}", h.GetNote)
	mux.HandleFunc("POST /api/notes", h.CreateNote)
	mux.HandleFunc("PUT /api/notes/{id}", h.UpdateNote)
	mux.HandleFunc("DELETE /api/notes/{id}", h.DeleteNote)
	mux.HandleFunc("GET /api/notes/{id}/backlinks", h.GetBacklinks)
	mux.HandleFunc("POST /api/notes/search", h.SearchNotes)

	// Maintenance
	mux.HandleFunc("POST /api/rebuild", h.Rebuild)
	mux.HandleFunc("POST /api/export", h.Export)
	mux.HandleFunc("GET /api/exports", h.ListExports)

	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ListNotes handles GET /api/notes - returns every note in creation order.
// A non-empty ?q= filters like SearchNotes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var (
		result *notes.NoteListResult
		err    error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		result, err = h.notesService.Search(r.Context(), q)
	} else {
		result, err = h.notesService.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetNote handles GET /api/notes/{id} - returns a single note by ID
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes - creates a new note
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateNoteParams
	if !decodeBody(w, r, &params) {
		return
	}

	note, err := h.notesService.Create(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/notes/"+note.ID)
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id} - updates an existing note.
// Omitted fields keep their stored values.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.UpdateNoteParams
	if !decodeBody(w, r, &params) {
		return
	}

	note, err := h.notesService.Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id} - deletes a note
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notesService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BacklinksResponse lists the notes that mention a note's title.
type BacklinksResponse struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Backlinks []string     `json:"backlinks"`
	Sources   []notes.Note `json:"sources"`
}

// GetBacklinks handles GET /api/notes/{id}/backlinks
func (h *Handler) GetBacklinks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	note, err := h.notesService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sources, err := h.notesService.Backlinks(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BacklinksResponse{
		ID:        note.ID,
		Title:     note.Title,
		Backlinks: note.Backlinks.Sorted(),
		Sources:   sources,
	})
}

// SearchRequest represents the request body for search endpoint
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchNotes handles POST /api/notes/search - case-insensitive substring
// match on title or content. An empty query lists every note.
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := h.notesService.Search(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// Rebuild handles POST /api/rebuild - recomputes every backlink set
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	result, err := h.notesService.Rebuild(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Export handles POST /api/export - writes a snapshot to object storage
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export storage is not configured")
		return
	}
	result, err := h.exporter.Export(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ExportListResponse lists stored snapshots.
type ExportListResponse struct {
	Exports []ExportEntry `json:"exports"`
}

// ExportEntry is one stored snapshot.
type ExportEntry struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ListExports handles GET /api/exports
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export storage is not configured")
		return
	}
	objs, err := h.exporter.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := ExportListResponse{Exports: make([]ExportEntry, 0, len(objs))}
	for _, o := range objs {
		resp.Exports = append(resp.Exports, ExportEntry{Key: o.Key, Size: o.Size})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			obs.From(r.Context()).Error("health_check_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps a coded error to its HTTP status. Internal and
// unavailable failures are logged with the request's correlation fields.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("request_failed", "code", string(code), "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errs.MessageOf(err), Code: string(code)})
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response in JSON format
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
