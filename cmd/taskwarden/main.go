// Command taskwarden runs the task-management HTTP service over a SQLite
// store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taskwarden/taskwarden"
	"github.com/taskwarden/taskwarden/instrumentation"
	"github.com/taskwarden/taskwarden/server"
	"github.com/taskwarden/taskwarden/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := taskwarden.LoadEnvConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	serverCfg := cfg.ServerConfig()
	serverCfg.Logger = logger

	srv, err := server.New(store, serverCfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "taskwarden",
		ServiceVersion: "dev",
		Enabled:        true,
	})
	if err != nil {
		return err
	}
	if err := inst.RegisterAuditDropCallback(srv.Auditor().Dropped); err != nil {
		logger.Warn("audit drop gauge unavailable", "error", err)
	}
	store.SetMetrics(inst.Metrics())

	handler := taskwarden.NewHandler(srv, serverCfg, logger)
	handler.SetInstrumentation(inst)

	mux := http.NewServeMux()
	handler.Routes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "db", cfg.DBPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := inst.Shutdown(shutdownCtx); err != nil {
		logger.Warn("instrumentation shutdown", "error", err)
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
