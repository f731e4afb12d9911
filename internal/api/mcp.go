package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/askcards/internal/verified"
)

const bookmarksURI = "askcards://bookmarks"

// NewMCPServer creates an MCP server with the askcards tools and resources
// registered against the session in d.
func NewMCPServer(d Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"askcards",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askcards: knowledge cards bookmarked by question, and saved conversations."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the answering service a question in the current conversation. Returns the answer and its knowledge cards."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAsk(d),
	)

	s.AddTool(
		mcp.NewTool("list_bookmarks",
			mcp.WithDescription("List bookmarked knowledge cards grouped by the question that produced them, most recent group first."),
		),
		mcpListBookmarks(d),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List saved conversations, most recent first."),
		),
		mcpListConversations(d),
	)

	s.AddTool(
		mcp.NewTool("export_conversation",
			mcp.WithDescription("Export a saved conversation as markdown or HTML."),
			mcp.WithString("id", mcp.Description("Conversation id from list_conversations"), mcp.Required()),
			mcp.WithString("format", mcp.Description("Output format: md (default) or html"), mcp.Enum("md", "html")),
		),
		mcpExportConversation(d),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			bookmarksURI,
			"Bookmarks",
			mcp.WithResourceDescription("Bookmarked knowledge cards grouped by question, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBookmarks(d),
	)

	return s
}

func mcpAsk(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcpError("question is required"), nil
		}

		reply, ok := d.Chat.Submit(context.WithoutCancel(ctx), question)
		if !ok {
			return mcpError("another question is still waiting for its answer"), nil
		}

		b, err := json.Marshal(viewMessage(d, reply))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListBookmarks(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(d.Bookmarks.Groups())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal bookmarks: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListConversations(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		convs := d.Conversations.List()
		out := make([]conversationSummary, len(convs))
		for i, c := range convs {
			out[i] = summarize(c)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExportConversation(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		format, err := verified.ParseFormat(req.GetString("format", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		c, err := d.Conversations.Get(id)
		if errors.Is(err, verified.ErrNotFound) {
			return mcpError(fmt.Sprintf("conversation %q not found", id)), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}

		out, err := d.Exporter.Export(c, format)
		if err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpResourceBookmarks(d Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(d.Bookmarks.Groups())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bookmarks: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
