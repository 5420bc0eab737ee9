// Command glance-gateway serves the MCP remote-control gateway for a Glance
// e-ink art display. All configuration comes from GLANCE_* environment
// variables; see gateway.Config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	gateway "github.com/chaerem/glance-mcp-gateway"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "glance-gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg gateway.Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.LogHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})

	h, err := gateway.New(ctx, cfg)
	if err != nil {
		return err
	}

	go h.RunSweeper(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.New(cfg.LogHandler).Info("gateway listening", "addr", cfg.Addr, "public_url", cfg.PublicURL)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func logLevel(s string) slog.Level {
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
