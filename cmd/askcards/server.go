package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/askcards/internal/api"
	"github.com/kalambet/askcards/internal/config"
	"github.com/kalambet/askcards/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session over HTTP on localhost (foreground)",
	Long: `Serve one chat session, the bookmarks and the saved conversations over
HTTP on 127.0.0.1. With --mcp the same session is also exposed as an MCP
server on stdin/stdout; status output then goes to stderr only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running askcards server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server state and collection sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	if dataDir == storage.MemoryDir {
		return ""
	}
	return filepath.Join(dataDir, "askcards.pid")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	if path == "" {
		return 0, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// ensureNotServing refuses local changes while a server owns the collections.
func ensureNotServing(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if newAPIClient(cfg).healthy(ctx) {
		return fmt.Errorf("askcards serve is running on port %d; stop it first or use its HTTP API", cfg.Server.Port)
	}
	return nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(stderr, "askcards version %s\n", version)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	if newAPIClient(a.cfg).healthy(ctx) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("askcards is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("askcards is already running on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	return serve(ctx, a, withMCP)
}

// serve runs the HTTP server, and the MCP stdio server when withMCP is set,
// until ctx is done or either server stops.
func serve(ctx context.Context, a *app, withMCP bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.deps()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStep("askcards listening on %s", addr)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		printStep("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(a.deps(), version)
		g.Go(func() error {
			// The MCP client closing stdin ends the whole server.
			defer cancel()
			err := server.NewStdioServer(mcpSrv).Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
		printStep("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("askcards is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop askcards (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to askcards (PID %d)", pid)
	return nil
}

type statusCounts struct {
	messages      int
	bookmarks     int
	conversations int
}

// remoteCounts reads collection sizes from a running server.
func remoteCounts(ctx context.Context, c *apiClient) (statusCounts, error) {
	var counts statusCounts

	var msgs struct {
		Messages []struct{} `json:"messages"`
	}
	resp, err := c.get(ctx, "/api/messages")
	if err != nil {
		return counts, err
	}
	if err := decodeJSON(resp, &msgs); err != nil {
		return counts, err
	}

	var bms struct {
		Total int `json:"total"`
	}
	resp, err = c.get(ctx, "/api/bookmarks")
	if err != nil {
		return counts, err
	}
	if err := decodeJSON(resp, &bms); err != nil {
		return counts, err
	}

	var convs struct {
		Conversations []struct{} `json:"conversations"`
	}
	resp, err = c.get(ctx, "/api/conversations")
	if err != nil {
		return counts, err
	}
	if err := decodeJSON(resp, &convs); err != nil {
		return counts, err
	}

	counts.messages = len(msgs.Messages)
	counts.bookmarks = bms.Total
	counts.conversations = len(convs.Conversations)
	return counts, nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	if client.healthy(ctx) {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if counts, err := remoteCounts(ctx, client); err == nil {
			printStatus("Messages", "%d", counts.messages)
			printStatus("Bookmarks", "%d", counts.bookmarks)
			printStatus("Conversations", "%d", counts.conversations)
		} else {
			printWarning("reading server state: %v", err)
		}
	} else {
		printStatus("Server", "stopped")
		a, err := openApp(cfg, nil)
		if err == nil {
			printStatus("Bookmarks", "%d", a.bookmarks.Len())
			printStatus("Conversations", "%d", a.conversations.Len())
			a.Close()
		} else {
			printWarning("reading collections: %v", err)
		}
	}

	printStatus("Answer service", "%s", cfg.Answer.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
