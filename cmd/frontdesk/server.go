package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
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

	"github.com/kalambet/frontdesk/internal/api"
	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/ollama"
	"github.com/kalambet/frontdesk/internal/orchestrator"
	"github.com/kalambet/frontdesk/internal/responder"
	"github.com/kalambet/frontdesk/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the frontdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running frontdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show frontdesk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "frontdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "frontdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout belongs to the MCP transport; logs always go to stderr.
	slog.SetDefault(newLogger(os.Stderr, cfg.Log.Level))

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("frontdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("frontdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Responder.Backend == responder.BackendOllama {
		if err := ollama.EnsureReady(ctx, ollama.New(cfg.Ollama.BaseURL), cfg.Ollama.Model, os.Stderr); err != nil {
			return err
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	resp, err := responder.New(ctx, responder.Config{
		Backend:      cfg.Responder.Backend,
		GeminiAPIKey: cfg.Gemini.APIKey,
		GeminiModel:  cfg.Gemini.Model,
		OllamaURL:    cfg.Ollama.BaseURL,
		OllamaModel:  cfg.Ollama.Model,
		Timeout:      cfg.Responder.Timeout,
	})
	if err != nil {
		return fmt.Errorf("building responder: %w", err)
	}

	orch := orchestrator.New(store, resp, orchestrator.Options{
		AnswerThreshold: cfg.Matching.AnswerThreshold,
		MergeThreshold:  cfg.Matching.MergeThreshold,
		HoldTimeout:     cfg.Escalation.HoldTimeout,
	})

	issuer := livekit.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.WSURL, cfg.LiveKit.Room, cfg.LiveKit.TokenTTL)
	if !issuer.Configured() {
		slog.Info("livekit credentials not set, /livekit/token will fail")
	}

	handler := api.NewHandler(api.Deps{
		Orchestrator:     orch,
		Tokens:           issuer,
		ListingThreshold: cfg.Matching.ListingThreshold,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("frontdesk listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Orchestrator:     orch,
			ListingThreshold: cfg.Matching.ListingThreshold,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			// A closed stdin ends MCP only; HTTP keeps serving.
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
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
		printError("frontdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop frontdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to frontdesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	health, err := fetchHealth(ctx, client)
	running := err == nil
	var se *serverError
	switch {
	case running:
		printStatus("Server", "running on port %d (schema v%d)", cfg.Server.Port, health.Schema)
	case errors.As(err, &se):
		printStatus("Server", "error (HTTP %d)", se.Status)
	default:
		printStatus("Server", "stopped")
	}

	printStatus("Responder", "%s", cfg.Responder.Backend)
	switch cfg.Responder.Backend {
	case responder.BackendGemini:
		printStatus("Gemini model", "%s", cfg.Gemini.Model)
		if cfg.Gemini.APIKey == "" {
			printStatus("Gemini key", "not set (fallback replies only)")
		}
	case responder.BackendOllama:
		oc := ollama.New(cfg.Ollama.BaseURL)
		if oc.IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		printStatus("Ollama model", "%s", cfg.Ollama.Model)
	}

	if running {
		if n, err := countPending(ctx, client); err == nil {
			printStatus("Pending help", "%d", n)
		}
		if n, err := countKB(ctx, client); err == nil {
			printStatus("KB entries", "%d", n)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func fetchHealth(ctx context.Context, c *apiClient) (api.HealthResponse, error) {
	resp, err := c.get(ctx, "/health", nil)
	if err != nil {
		return api.HealthResponse{}, err
	}
	var out api.HealthResponse
	err = decodeJSON(resp, &out)
	return out, err
}

func countPending(ctx context.Context, c *apiClient) (int, error) {
	list, err := fetchHelpRequests(ctx, c, string(storage.StatusPending))
	return len(list), err
}

func countKB(ctx context.Context, c *apiClient) (int, error) {
	entries, err := fetchKB(ctx, c)
	return len(entries), err
}
