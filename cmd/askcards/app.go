package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/askcards/internal/answer"
	"github.com/kalambet/askcards/internal/api"
	"github.com/kalambet/askcards/internal/bookmark"
	"github.com/kalambet/askcards/internal/chat"
	"github.com/kalambet/askcards/internal/config"
	"github.com/kalambet/askcards/internal/conversation"
	"github.com/kalambet/askcards/internal/storage"
	"github.com/kalambet/askcards/internal/verified"
)

// app is one client session: the live conversation log plus the persisted
// bookmark and verified-conversation collections.
type app struct {
	cfg           config.Config
	store         *storage.Store
	log           *conversation.Log
	bookmarks     *bookmark.Store
	conversations *verified.Store
	exporter      verified.Exporter
	chat          *chat.Orchestrator
}

func setupLogging(cfg config.Config, w io.Writer) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// loadApp loads the configuration, sets up logging and opens the session.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg, os.Stderr)
	return openApp(cfg, answer.NewClient(cfg.Answer.BaseURL, answer.WithTimeout(cfg.Answer.Timeout)))
}

// openApp opens storage in cfg.Storage.DataDir and loads both collections.
func openApp(cfg config.Config, svc chat.Answerer) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	log := conversation.NewLog(cfg.Chat.Greeting)
	logger := slog.Default()
	log.OnAppend(func(m conversation.Message) {
		logger.Debug("conversation: message appended", "role", m.Role, "cards", len(m.Cards))
	})

	bookmarks, err := bookmark.Load(store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	convs, err := verified.Load(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:           cfg,
		store:         store,
		log:           log,
		bookmarks:     bookmarks,
		conversations: convs,
		exporter:      verified.NewExporter(cfg.Export.Locale, loc),
		chat:          chat.New(log, svc),
	}, nil
}

func (a *app) deps() api.Deps {
	return api.Deps{
		Log:           a.log,
		Chat:          a.chat,
		Bookmarks:     a.bookmarks,
		Conversations: a.conversations,
		Exporter:      a.exporter,
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
