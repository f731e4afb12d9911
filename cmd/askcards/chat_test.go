package main

import (
	"bytes"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/kalambet/askcards/internal/api"
	"github.com/kalambet/askcards/internal/conversation"
)

func TestSession_QuestionPrintsAnswer(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	var out bytes.Buffer
	s := newSession(a, &out)

	if s.handleLine(ctx, "what is kimchi?") {
		t.Fatal("question ended the session")
	}
	if !strings.Contains(out.String(), "answer: fermented vegetables") {
		t.Errorf("output missing answer:\n%s", out.String())
	}
	if a.log.Len() != 3 {
		t.Errorf("log length = %d, want 3", a.log.Len())
	}
}

func TestSession_Quit(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	s := newSession(a, &bytes.Buffer{})

	for _, line := range []string{"/quit", "/exit", "  /quit  "} {
		if !s.handleLine(ctx, line) {
			t.Errorf("handleLine(%q) = false, want true", line)
		}
	}
	if s.handleLine(ctx, "") {
		t.Error("blank line ended the session")
	}
}

func TestSession_CardsBeforeAnyAnswer(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	var out bytes.Buffer
	s := newSession(a, &out)

	s.handleLine(ctx, "/cards")
	if !strings.Contains(out.String(), "The latest answer has no cards.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSession_BookmarkToggle(t *testing.T) {
	a, status := newTestApp(t, kimchiAnswerer())
	var out bytes.Buffer
	s := newSession(a, &out)

	s.handleLine(ctx, "what is kimchi?")
	s.handleLine(ctx, "/bookmark 1")

	if !a.bookmarks.IsBookmarked(kimchi) {
		t.Fatal("card not bookmarked")
	}
	entries := a.bookmarks.All()
	if entries[0].Question != "what is kimchi?" {
		t.Errorf("question = %q, want %q", entries[0].Question, "what is kimchi?")
	}
	if !strings.Contains(status.String(), "Bookmarked: Kimchi is fermented cabbage") {
		t.Errorf("status = %q", status.String())
	}

	out.Reset()
	s.handleLine(ctx, "/cards")
	if !strings.Contains(out.String(), "★ 1. Kimchi is fermented cabbage") {
		t.Errorf("cards output = %q", out.String())
	}

	s.handleLine(ctx, "/bookmark 1")
	if a.bookmarks.IsBookmarked(kimchi) {
		t.Error("second toggle did not remove the bookmark")
	}
	if !strings.Contains(status.String(), "Removed bookmark: Kimchi is fermented cabbage") {
		t.Errorf("status = %q", status.String())
	}
}

func TestSession_BookmarkInvalidNumber(t *testing.T) {
	a, status := newTestApp(t, kimchiAnswerer())
	s := newSession(a, &bytes.Buffer{})
	s.handleLine(ctx, "what is kimchi?")

	for _, line := range []string{"/bookmark", "/bookmark 0", "/bookmark 2", "/bookmark x"} {
		status.Reset()
		s.handleLine(ctx, line)
		if !strings.Contains(status.String(), "usage: /bookmark N") {
			t.Errorf("%s: status = %q", line, status.String())
		}
	}
	if a.bookmarks.Len() != 0 {
		t.Errorf("bookmarks = %d, want 0", a.bookmarks.Len())
	}
}

func TestSession_Save(t *testing.T) {
	a, status := newTestApp(t, kimchiAnswerer())
	s := newSession(a, &bytes.Buffer{})
	s.handleLine(ctx, "what is kimchi?")

	s.handleLine(ctx, "/save")
	if !strings.Contains(status.String(), "usage: /save TITLE") {
		t.Errorf("status = %q", status.String())
	}
	if a.conversations.Len() != 0 {
		t.Fatalf("conversations = %d, want 0", a.conversations.Len())
	}

	s.handleLine(ctx, "/save Trip to Seoul")
	convs := a.conversations.List()
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	if convs[0].Title != "Trip to Seoul" {
		t.Errorf("title = %q", convs[0].Title)
	}
	// The seed greeting is not part of the saved conversation.
	if len(convs[0].Messages) != 2 || convs[0].Messages[0].Role != conversation.RoleUser {
		t.Errorf("messages = %+v", convs[0].Messages)
	}
}

func TestSession_BookmarksAndHistory(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	var out bytes.Buffer
	s := newSession(a, &out)
	s.handleLine(ctx, "what is kimchi?")
	s.handleLine(ctx, "/bookmark 1")

	out.Reset()
	s.handleLine(ctx, "/bookmarks")
	if !strings.Contains(out.String(), "what is kimchi?") || !strings.Contains(out.String(), "1. Kimchi is fermented cabbage") {
		t.Errorf("bookmarks output:\n%s", out.String())
	}

	out.Reset()
	s.handleLine(ctx, "/history")
	for _, want := range []string{conversation.DefaultGreeting, "you: what is kimchi?", "answer: fermented vegetables"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("history missing %q:\n%s", want, out.String())
		}
	}
}

func TestSession_UnknownCommand(t *testing.T) {
	a, status := newTestApp(t, kimchiAnswerer())
	s := newSession(a, &bytes.Buffer{})

	if s.handleLine(ctx, "/nope") {
		t.Error("unknown command ended the session")
	}
	if !strings.Contains(status.String(), "unknown command /nope") {
		t.Errorf("status = %q", status.String())
	}
	if a.log.Len() != 1 {
		t.Errorf("unknown command reached the log: %d messages", a.log.Len())
	}
}

func TestSession_Run(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	var out bytes.Buffer

	in := strings.NewReader("what is kimchi?\n/bookmark 1\n/quit\nnever asked\n")
	if err := newSession(a, &out).run(ctx, in); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(out.String(), conversation.DefaultGreeting) {
		t.Errorf("output missing greeting:\n%s", out.String())
	}
	if a.log.Len() != 3 {
		t.Errorf("log length = %d, want 3", a.log.Len())
	}
	if !a.bookmarks.IsBookmarked(kimchi) {
		t.Error("card not bookmarked")
	}
}

func TestSession_RunEndsAtEOF(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	if err := newSession(a, &bytes.Buffer{}).run(ctx, strings.NewReader("what is kimchi?")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if a.log.Len() != 3 {
		t.Errorf("log length = %d, want 3", a.log.Len())
	}
}

func TestRunChat_RefusesWhileServing(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	ts := httptest.NewServer(api.NewHandler(a.deps()))
	t.Cleanup(ts.Close)

	_, port, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	if err != nil {
		t.Fatalf("parsing server address: %v", err)
	}
	if a.cfg.Server.Port, err = strconv.Atoi(port); err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	var out bytes.Buffer
	err = runChat(ctx, a, strings.NewReader("what is kimchi?\n/bookmark 1\n"), &out)
	if err == nil || !strings.Contains(err.Error(), "serve is running") {
		t.Fatalf("runChat err = %v, want refusal", err)
	}
	if a.log.Len() != 1 || a.bookmarks.Len() != 0 {
		t.Errorf("session ran anyway: log=%d bookmarks=%d", a.log.Len(), a.bookmarks.Len())
	}
}

func TestRunChat_NoServer(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	port, err := strconv.Atoi(freePort(t))
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}
	a.cfg.Server.Port = port

	if err := runChat(ctx, a, strings.NewReader("what is kimchi?\n/quit\n"), &bytes.Buffer{}); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if a.log.Len() != 3 {
		t.Errorf("log length = %d, want 3", a.log.Len())
	}
}

func TestSession_AskClearsInput(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	s := newSession(a, &bytes.Buffer{})

	s.handleLine(ctx, "what is kimchi?")
	if got := a.chat.Input(); got != "" {
		t.Errorf("input after answer = %q, want empty", got)
	}
}
