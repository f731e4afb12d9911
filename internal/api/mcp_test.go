package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/askcards/internal/bookmark"
	"github.com/kalambet/askcards/internal/chat"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), req mcp.CallToolRequest) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())
	if s := NewMCPServer(d, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Ask(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())

	result := callTool(t, mcpAsk(d), makeCallToolRequest("ask", map[string]interface{}{
		"question": "what is kimchi?",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var msg messageView
	if err := json.Unmarshal([]byte(toolText(t, result)), &msg); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if msg.Content != "fermented vegetables" {
		t.Errorf("content = %q, want %q", msg.Content, "fermented vegetables")
	}
	if len(msg.Cards) != 1 || msg.Cards[0].Summary != kimchi.Summary {
		t.Errorf("cards = %+v, want kimchi", msg.Cards)
	}
	if d.Log.Len() != 3 {
		t.Errorf("log.Len = %d, want 3", d.Log.Len())
	}
}

func TestMCPTool_Ask_RespondsWithOwnReply(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())
	appendAfterReply(d, "fermented vegetables", "what is bibimbap?")

	result := callTool(t, mcpAsk(d), makeCallToolRequest("ask", map[string]interface{}{
		"question": "what is kimchi?",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var msg messageView
	if err := json.Unmarshal([]byte(toolText(t, result)), &msg); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if msg.Content != "fermented vegetables" {
		t.Errorf("content = %q, want %q", msg.Content, "fermented vegetables")
	}
}

func TestMCPTool_Ask_MissingQuestion(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())

	for _, args := range []map[string]interface{}{{}, {"question": "  "}} {
		result := callTool(t, mcpAsk(d), makeCallToolRequest("ask", args))
		if !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
	}
	if d.Log.Len() != 1 {
		t.Errorf("log.Len = %d, want 1", d.Log.Len())
	}
}

func TestMCPTool_Ask_ServiceFailure(t *testing.T) {
	d, _ := newTestDeps(t, stubAnswerer{err: errors.New("down")})

	result := callTool(t, mcpAsk(d), makeCallToolRequest("ask", map[string]interface{}{"question": "q"}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), chat.FallbackMessage) {
		t.Errorf("response = %s, want fallback message", toolText(t, result))
	}
}

func TestMCPTool_ListBookmarks(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())

	result := callTool(t, mcpListBookmarks(d), makeCallToolRequest("list_bookmarks", nil))
	if toolText(t, result) != "[]" {
		t.Errorf("empty bookmarks = %s, want []", toolText(t, result))
	}

	d.Chat.Submit(context.Background(), "what is kimchi?")
	if _, err := d.Bookmarks.Toggle(kimchi); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	result = callTool(t, mcpListBookmarks(d), makeCallToolRequest("list_bookmarks", nil))
	var groups []bookmark.Group
	if err := json.Unmarshal([]byte(toolText(t, result)), &groups); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(groups) != 1 || groups[0].Question != "what is kimchi?" || len(groups[0].Entries) != 1 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestMCPTool_ListConversations(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())
	d.Chat.Submit(context.Background(), "what is kimchi?")
	d.Conversations.Save("first", d.Log)
	d.Conversations.Save("second", d.Log)

	result := callTool(t, mcpListConversations(d), makeCallToolRequest("list_conversations", nil))
	var convs []conversationSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &convs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	if convs[0].Title != "second" {
		t.Errorf("first listed = %q, want most recent %q", convs[0].Title, "second")
	}
	if convs[0].Messages != 2 {
		t.Errorf("messages = %d, want 2", convs[0].Messages)
	}
}

func TestMCPTool_ExportConversation(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())
	d.Chat.Submit(context.Background(), "what is kimchi?")
	c, err := d.Conversations.Save("Trip to Seoul", d.Log)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	result := callTool(t, mcpExportConversation(d), makeCallToolRequest("export_conversation", map[string]interface{}{
		"id": c.ID,
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if toolText(t, result) != d.Exporter.ExportMarkdown(c) {
		t.Errorf("export = %q, want markdown export", toolText(t, result))
	}

	result = callTool(t, mcpExportConversation(d), makeCallToolRequest("export_conversation", map[string]interface{}{
		"id":     c.ID,
		"format": "html",
	}))
	if !strings.Contains(toolText(t, result), "<h1>Trip to Seoul</h1>") {
		t.Errorf("html export missing title heading: %s", toolText(t, result))
	}
}

func TestMCPTool_ExportConversation_Errors(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing id", map[string]interface{}{}},
		{"unknown id", map[string]interface{}{"id": "nope"}},
		{"bad format", map[string]interface{}{"id": "nope", "format": "pdf"}},
	}
	for _, tt := range tests {
		result := callTool(t, mcpExportConversation(d), makeCallToolRequest("export_conversation", tt.args))
		if !result.IsError {
			t.Errorf("%s: expected error result", tt.name)
		}
	}
}

func TestMCPResource_Bookmarks(t *testing.T) {
	d, _ := newTestDeps(t, kimchiAnswerer())
	d.Chat.Submit(context.Background(), "what is kimchi?")
	d.Bookmarks.Toggle(kimchi)

	contents, err := mcpResourceBookmarks(d)(context.Background(), makeReadResourceRequest(bookmarksURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != bookmarksURI || tc.MIMEType != "application/json" {
		t.Errorf("resource = %s %s", tc.URI, tc.MIMEType)
	}
	if !strings.Contains(tc.Text, kimchi.Source) {
		t.Errorf("resource text missing card source: %s", tc.Text)
	}
}
