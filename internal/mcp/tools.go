package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Tool names.
const (
	ToolNoteList      = "note_list"
	ToolNoteView      = "note_view"
	ToolNoteCreate    = "note_create"
	ToolNoteUpdate    = "note_update"
	ToolNoteDelete    = "note_delete"
	ToolNoteSearch    = "note_search"
	ToolNoteBacklinks = "note_backlinks"
	ToolNoteRebuild   = "note_rebuild"
)

func idProperty(action string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "The unique identifier of the note to " + action,
	}
}

// ToolDefinitions returns the notes MCP tool definitions.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        ToolNoteList,
			Description: "Notes tool. List every note in creation order with a short single-line preview and its backlinks (the titles of notes whose content mentions this note's title). Use note_view to read full content.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolNoteView,
			Description: "Notes tool. Read a note's full title, content and backlinks. Backlinks are maintained automatically: a note is listed in another note's backlinks when its content contains that note's exact title (case-sensitive).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("retrieve"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteCreate,
			Description: "Notes tool. Create a new note with a title and optional content. To link to another note, mention its exact title anywhere in the content. Returns the assigned ID, title, backlinks (other notes that already mention this title) and creation timestamp.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The title of the note (required, must not be blank)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The content/body of the note (optional)",
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        ToolNoteUpdate,
			Description: "Notes tool. Replace a note's title and/or content. Omitted fields keep their current value. Renaming a note recomputes which notes reference it; editing content updates the backlinks of every note whose title appears in the old or new content.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("update"),
					"title": map[string]any{
						"type":        "string",
						"description": "The new title for the note (optional)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The new content for the note (optional)",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteDelete,
			Description: "Notes tool. Permanently delete a note. Notes it mentioned drop it from their backlinks.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("delete"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteSearch,
			Description: "Notes tool. Find notes whose title or content contains the query, ignoring case. Results are unranked, in creation order. An empty query returns every note.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Substring to look for in titles and content",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolNoteBacklinks,
			Description: "Notes tool. Resolve a note's backlinks to the notes that hold those titles, with their IDs, so they can be opened with note_view. When several notes share a title, each one that mentions the target is returned.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("resolve backlinks for"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteRebuild,
			Description: "Notes tool. Recompute every note's backlinks from scratch. Only needed after the database was edited outside this server; normal edits keep backlinks current.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
