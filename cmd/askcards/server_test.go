package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/askcards/internal/api"
	"github.com/kalambet/askcards/internal/storage"
)

func TestPIDFile_RoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if filepath.Base(path) != "askcards.pid" {
		t.Errorf("pid file = %q", path)
	}

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("after remove: err = %v, want not exist", err)
	}
}

func TestPIDFile_InMemoryDataDir(t *testing.T) {
	path := pidFilePath(storage.MemoryDir)
	if path != "" {
		t.Fatalf("pid file for in-memory storage = %q, want none", path)
	}
	if err := writePIDFile(path); err != nil {
		t.Errorf("writePIDFile: %v", err)
	}
	if _, err := readPIDFile(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("readPIDFile: err = %v, want not exist", err)
	}
}

func newHandlerClient(t *testing.T, a *app) *apiClient {
	t.Helper()
	ts := httptest.NewServer(api.NewHandler(a.deps()))
	t.Cleanup(ts.Close)
	return &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
}

func TestAPIClient_Healthy(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	c := newHandlerClient(t, a)
	if !c.healthy(ctx) {
		t.Error("healthy = false for a running server")
	}

	down := &apiClient{baseURL: "http://127.0.0.1:" + freePort(t), httpClient: &http.Client{Timeout: time.Second}}
	if down.healthy(ctx) {
		t.Error("healthy = true with nothing listening")
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	c := newHandlerClient(t, a)

	resp, err := c.get(ctx, "/api/conversations/missing/export")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil || !strings.Contains(err.Error(), "server returned 404") {
		t.Errorf("err = %v, want server returned 404", err)
	}
}

func TestRemoteCounts(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	saveTrip(t, a)
	if _, err := a.bookmarks.Toggle(kimchi); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	counts, err := remoteCounts(ctx, newHandlerClient(t, a))
	if err != nil {
		t.Fatalf("remoteCounts: %v", err)
	}
	want := statusCounts{messages: 3, bookmarks: 1, conversations: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	_, port, _ := net.SplitHostPort(l.Addr().String())
	return port
}

func TestServe_AnswersUntilCancelled(t *testing.T) {
	a, _ := newTestApp(t, kimchiAnswerer())
	port, err := strconv.Atoi(freePort(t))
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}
	a.cfg.Server.Port = port

	sctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- serve(sctx, a, false) }()

	client := newAPIClient(a.cfg)
	deadline := time.Now().Add(5 * time.Second)
	for !client.healthy(ctx) {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not become healthy")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := ensureNotServing(ctx, a.cfg); err == nil {
		t.Error("ensureNotServing = nil while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}

	if err := ensureNotServing(ctx, a.cfg); err != nil {
		t.Errorf("ensureNotServing after stop: %v", err)
	}
}
