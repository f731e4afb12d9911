// Package api exposes one chat session over a local HTTP API and an MCP server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/askcards/internal/bookmark"
	"github.com/kalambet/askcards/internal/card"
	"github.com/kalambet/askcards/internal/chat"
	"github.com/kalambet/askcards/internal/conversation"
	"github.com/kalambet/askcards/internal/verified"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps is the session state served by the HTTP API and the MCP server.
type Deps struct {
	Log           *conversation.Log
	Chat          *chat.Orchestrator
	Bookmarks     *bookmark.Store
	Conversations *verified.Store
	Exporter      verified.Exporter
}

// NewHandler returns the HTTP API for the session in d.
func NewHandler(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", handleMessages(d))
		r.Post("/chat", handleChat(d))

		r.Get("/bookmarks", handleListBookmarks(d))
		r.Post("/bookmarks/toggle", handleToggleBookmark(d))

		r.Get("/conversations", handleListConversations(d))
		r.Post("/conversations", handleSaveConversation(d))
		r.Delete("/conversations/{id}", handleDeleteConversation(d))
		r.Get("/conversations/{id}/export", handleExportConversation(d))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type cardView struct {
	card.Card
	Site       string `json:"site,omitempty"`
	Bookmarked bool   `json:"bookmarked"`
}

type messageView struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
	Cards   []cardView        `json:"cards"`
}

func viewMessage(d Deps, m conversation.Message) messageView {
	v := messageView{Role: m.Role, Content: m.Content, Cards: make([]cardView, len(m.Cards))}
	for i, c := range m.Cards {
		v.Cards[i] = cardView{Card: c, Site: card.Site(c.Source), Bookmarked: d.Bookmarks.IsBookmarked(c)}
	}
	return v
}

func handleMessages(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs := d.Log.Messages()
		out := make([]messageView, len(msgs))
		for i, m := range msgs {
			out[i] = viewMessage(d, m)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": out,
			"state":    d.Chat.State().String(),
		})
	}
}

type chatRequest struct {
	Text string `json:"text"`
}

func handleChat(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		// A submitted query runs to completion even if the caller goes away.
		ctx := context.WithoutCancel(r.Context())
		reply, ok := d.Chat.Submit(ctx, req.Text)
		if !ok {
			httpError(w, http.StatusConflict, "busy", "another question is still waiting for its answer")
			return
		}
		writeJSON(w, http.StatusOK, viewMessage(d, reply))
	}
}

func handleListBookmarks(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups := d.Bookmarks.Groups()
		writeJSON(w, http.StatusOK, map[string]any{
			"groups": groups,
			"total":  d.Bookmarks.Len(),
		})
	}
}

func handleToggleBookmark(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c card.Card
		if !decodeBody(w, r, &c) {
			return
		}
		if c.Summary == "" || c.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "summary and source are required")
			return
		}

		bookmarked, err := d.Bookmarks.Toggle(c)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "bookmark changed but not saved: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookmarked": bookmarked})
	}
}

type conversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	Messages  int    `json:"messages"`
}

func summarize(c verified.Conversation) conversationSummary {
	return conversationSummary{
		ID:        c.ID,
		Title:     c.Title,
		Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
		Messages:  len(c.Messages),
	}
}

func handleListConversations(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs := d.Conversations.List()
		out := make([]conversationSummary, len(convs))
		for i, c := range convs {
			out[i] = summarize(c)
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
	}
}

type saveRequest struct {
	Title string `json:"title"`
}

func handleSaveConversation(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveRequest
		if !decodeBody(w, r, &req) {
			return
		}

		c, err := d.Conversations.Save(req.Title, d.Log)
		switch {
		case errors.Is(err, verified.ErrEmptyTitle):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "storage_error", "conversation saved but not persisted: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func handleDeleteConversation(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Conversations.Delete(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "deleting conversation: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleExportConversation(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := verified.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		c, err := d.Conversations.Get(chi.URLParam(r, "id"))
		if errors.Is(err, verified.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation %q not found", chi.URLParam(r, "id"))
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		body, err := d.Exporter.Export(c, format)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting conversation: %v", err)
			return
		}

		filename := verified.Filename(c, string(format))
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		w.Write([]byte(body))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encoding response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
