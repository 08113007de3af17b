package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const linkingWorkflowPromptName = "linking_workflow"

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler())
	}
}

// PromptDefinitions returns MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        linkingWorkflowPromptName,
			Title:       "Linking notes",
			Description: promptDescription,
		},
	}
}

const promptDescription = "How notes link to each other and how to follow backlinks."

const promptText = "Notes link by title. Writing another note's exact title (case-sensitive) anywhere in a note's content links to it, " +
	"and the server records the linking note's title in the target's backlinks automatically. " +
	"To connect notes, edit content with note_update; never try to set backlinks directly. " +
	"Use note_backlinks to turn a note's backlinks into note IDs you can open with note_view. " +
	"Renaming a note changes which notes reference it, so check note_backlinks after a rename."

func promptHandler() mcp.PromptHandler {
	return func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: promptDescription,
			Messages: []*mcp.PromptMessage{
				{
					Role:    mcp.Role("user"),
					Content: &mcp.TextContent{Text: promptText},
				},
			},
		}, nil
	}
}
