// Command forged runs Forge's engine behind an HTTP+SSE API and an MCP
// StreamableHTTP server, backed by either SQLite or Postgres for
// debounced snapshot persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/config"
	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/mcp"
	"github.com/ashita-ai/akashi/internal/pyparse"
	"github.com/ashita-ai/akashi/internal/server"
	"github.com/ashita-ai/akashi/internal/storage"
	"github.com/ashita-ai/akashi/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("FORGE_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("forge starting", "version", version, "port", cfg.Port, "persistence", cfg.Persistence)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	registry := adapter.NewRegistry(newPyParser(cfg, logger))
	eng := engine.New(registry, logger)

	persister := storage.NewPersister(eng, store, cfg.SnapshotFlushDelay, logger)
	if err := persister.Load(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	go persister.Run(ctx)

	idem := storage.NewIdempotencyStore(store)

	mcpSrv := mcp.New(eng, logger, version)

	srv := server.New(server.ServerConfig{
		Engine:              eng,
		Idempotency:         idem,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		MCPServer:           mcpSrv.MCPServer(),
	})

	go srv.Broker().Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("forge shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("forge stopped")
	return nil
}

func newStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Persistence {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	}
}

// newPyParser selects the Python top-level parser per config: an external
// libcst/ast binary when configured, falling back to the regex parser
// (strict mode fails the verification rule on parser errors instead of
// silently degrading).
func newPyParser(cfg config.Config, logger *slog.Logger) pyparse.Parser {
	if cfg.ParserBin == "" {
		logger.Info("python parser: regex fallback (no FORGE_PARSER_BIN)")
		return pyparse.RegexParser{}
	}
	mode := pyparse.Mode(cfg.ParserMode)
	external := pyparse.NewExternalParser(cfg.ParserBin, mode)
	logger.Info("python parser: external", "bin", cfg.ParserBin, "mode", cfg.ParserMode, "strict", cfg.ParserStrict)
	return pyparse.NewModeParser(external, cfg.ParserStrict)
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
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
