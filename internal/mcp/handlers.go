package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/linknotes/internal/errs"
	"github.com/kuitang/linknotes/internal/logutil"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/obs"
)

const (
	previewChars      = 120
	logArgValueChars  = 200
	deletedNoteFormat = "Note %s deleted."
)

// Handler implements MCP tool call handling.
type Handler struct {
	notesSvc *notes.Service
}

// NewHandler creates a new MCP handler over the notes service.
func NewHandler(notesSvc *notes.Service) *Handler {
	return &Handler{notesSvc: notesSvc}
}

// toolErrorPayload is the JSON body of every failed tool result.
type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// createToolHandler returns a tool handler function for the given tool name.
// Failures become IsError results; the transport only sees nil errors.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		ctx = obs.WithTransport(ctx, "mcp")
		logger := obs.From(ctx).With("pkg", "mcp", "tool", name)
		logger.Debug("tool_call", "args", logutil.FormatArgsForLog(args, logArgValueChars))

		start := time.Now()
		result, err := h.HandleToolCall(ctx, name, args)
		if err != nil {
			code := errs.CodeOf(err)
			if code == errs.Internal || code == errs.Unavailable {
				logger.Error("tool_failed", "code", string(code), "error", err, "duration_ms", time.Since(start).Milliseconds())
			} else {
				logger.Info("tool_rejected", "code", string(code), "error", err)
			}
			return newToolResultError(err), nil, nil
		}
		logger.Debug("tool_done", "duration_ms", time.Since(start).Milliseconds())
		return result, nil, nil
	}
}

// HandleToolCall routes tool calls to appropriate handlers.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if !isKnownTool(name) {
		return nil, errs.Newf(errs.NotFound, "unknown tool: %s", name)
	}
	if h.notesSvc == nil {
		return nil, errs.New(errs.Unavailable, "notes tools are unavailable on this MCP endpoint")
	}

	switch name {
	case ToolNoteList:
		return h.handleNoteList(ctx, arguments)
	case ToolNoteView:
		return h.handleNoteView(ctx, arguments)
	case ToolNoteCreate:
		return h.handleNoteCreate(ctx, arguments)
	case ToolNoteUpdate:
		return h.handleNoteUpdate(ctx, arguments)
	case ToolNoteDelete:
		return h.handleNoteDelete(ctx, arguments)
	case ToolNoteSearch:
		return h.handleNoteSearch(ctx, arguments)
	case ToolNoteBacklinks:
		return h.handleNoteBacklinks(ctx, arguments)
	default:
		return h.handleNoteRebuild(ctx, arguments)
	}
}

func isKnownTool(name string) bool {
	for _, tool := range ToolDefinitions() {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// decodeToolArgs decodes arguments into dst, rejecting unknown fields and
// mistyped values as invalid arguments.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments are not valid JSON", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

// classifyNotesError keeps coded errors and marks anything else internal.
func classifyNotesError(err error, op string) error {
	if err == nil {
		return nil
	}
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	return errs.Wrap(errs.Internal, op+" failed", err)
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result indicating an error, with a
// stable {"code","message"} JSON body.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{Code: string(errs.CodeOf(err)), Message: errs.MessageOf(err)}
	text := marshalAny(payload)
	if text == nil {
		text = []byte(`{"code":"internal","message":"internal error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(text)},
		},
		IsError: true,
	}
}

// marshalAny returns indented JSON, or nil when value cannot be encoded.
func marshalAny(value any) []byte {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return data
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	data := marshalAny(value)
	if data == nil {
		return nil, errs.New(errs.Internal, "failed to encode tool result")
	}
	return newToolResultText(string(data)), nil
}

// =============================================================================
// Result shapes
// =============================================================================

// NoteListItem is a note summary without full content.
type NoteListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Backlinks []string  `json:"backlinks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteListResponse is returned by note_list and note_search.
type NoteListResponse struct {
	Query      string         `json:"query,omitempty"`
	Notes      []NoteListItem `json:"notes"`
	TotalCount int            `json:"total_count"`
}

// NoteViewResult is the full note.
type NoteViewResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Backlinks []string  `json:"backlinks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteWriteResult is returned by note_create and note_update; the caller
// already knows the content it sent.
type NoteWriteResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Backlinks []string  `json:"backlinks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BacklinkSource identifies one note that mentions the target.
type BacklinkSource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NoteBacklinksResult is returned by note_backlinks.
type NoteBacklinksResult struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Backlinks []string         `json:"backlinks"`
	Sources   []BacklinkSource `json:"sources"`
}

func listItems(in []notes.Note) []NoteListItem {
	items := make([]NoteListItem, 0, len(in))
	for _, n := range in {
		items = append(items, NoteListItem{
			ID:        n.ID,
			Title:     n.Title,
			Preview:   logutil.TruncateForLog(n.Content, previewChars),
			Backlinks: n.Backlinks.Sorted(),
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}
	return items
}

func writeResult(n *notes.Note) NoteWriteResult {
	return NoteWriteResult{
		ID:        n.ID,
		Title:     n.Title,
		Backlinks: n.Backlinks.Sorted(),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// =============================================================================
// Tool handlers
// =============================================================================

type idArgs struct {
	ID string `json:"id"`
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct{}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	results, err := h.notesSvc.List(ctx)
	if err != nil {
		return nil, classifyNotesError(err, "list notes")
	}
	return jsonResult(NoteListResponse{Notes: listItems(results.Notes), TotalCount: results.TotalCount})
}

func (h *Handler) handleNoteView(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in idArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, err := h.notesSvc.Get(ctx, in.ID)
	if err != nil {
		return nil, classifyNotesError(err, "read note")
	}
	return jsonResult(NoteViewResult{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Backlinks: note.Backlinks.Sorted(),
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	})
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in notes.CreateNoteParams
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, err := h.notesSvc.Create(ctx, in)
	if err != nil {
		return nil, classifyNotesError(err, "create note")
	}
	return jsonResult(writeResult(note))
}

func (h *Handler) handleNoteUpdate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID      string  `json:"id"`
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, err := h.notesSvc.Update(ctx, in.ID, notes.UpdateNoteParams{Title: in.Title, Content: in.Content})
	if err != nil {
		return nil, classifyNotesError(err, "update note")
	}
	return jsonResult(writeResult(note))
}

func (h *Handler) handleNoteDelete(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in idArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if err := h.notesSvc.Delete(ctx, in.ID); err != nil {
		return nil, classifyNotesError(err, "delete note")
	}
	return newToolResultText(fmt.Sprintf(deletedNoteFormat, in.ID)), nil
}

func (h *Handler) handleNoteSearch(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	results, err := h.notesSvc.Search(ctx, in.Query)
	if err != nil {
		return nil, classifyNotesError(err, "search notes")
	}
	return jsonResult(NoteListResponse{Query: in.Query, Notes: listItems(results.Notes), TotalCount: results.TotalCount})
}

func (h *Handler) handleNoteBacklinks(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in idArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, err := h.notesSvc.Get(ctx, in.ID)
	if err != nil {
		return nil, classifyNotesError(err, "read note")
	}
	sources, err := h.notesSvc.Backlinks(ctx, in.ID)
	if err != nil {
		return nil, classifyNotesError(err, "read backlinks")
	}

	result := NoteBacklinksResult{
		ID:        note.ID,
		Title:     note.Title,
		Backlinks: note.Backlinks.Sorted(),
		Sources:   make([]BacklinkSource, 0, len(sources)),
	}
	for _, src := range sources {
		result.Sources = append(result.Sources, BacklinkSource{ID: src.ID, Title: src.Title})
	}
	return jsonResult(result)
}

func (h *Handler) handleNoteRebuild(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct{}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	result, err := h.notesSvc.Rebuild(ctx)
	if err != nil {
		return nil, classifyNotesError(err, "rebuild backlinks")
	}
	return jsonResult(result)
}
