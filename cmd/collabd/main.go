// collabd is a local-first realtime collaboration broker: it serves the
// HTTP API, fans state changes out to WebSocket subscribers, and ingests
// observer frames from a watched directory.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/frostwall/collabd/pkg/api"
	"github.com/frostwall/collabd/pkg/clock"
	"github.com/frostwall/collabd/pkg/config"
	"github.com/frostwall/collabd/pkg/events"
	"github.com/frostwall/collabd/pkg/observer"
	"github.com/frostwall/collabd/pkg/store"
	"github.com/frostwall/collabd/pkg/version"
)

// shutdownTimeout bounds how long in-flight HTTP requests may linger
// after the stop signal.
const shutdownTimeout = 5 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
	flag.Parse()

	// Load .env before reading any configuration from the environment.
	if err := godotenv.Load(*envFile); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not load env file", "path", *envFile, "error", err)
		}
	} else {
		slog.Info("loaded environment", "path", *envFile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	slog.Info("starting collabd",
		"version", version.Full(),
		"bind", cfg.Bind,
		"observer_dir", cfg.Observer.Dir,
		"scan_interval", cfg.ScanInterval())

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	st := store.New(clock.System{}, bus)

	ingestor := observer.New(observer.Config{
		Dir:          cfg.Observer.Dir,
		ScanInterval: cfg.ScanInterval(),
		SeedOnly:     cfg.Observer.SeedOnly,
	}, st)

	server := api.NewServer(st, bus)
	server.SetIngestor(ingestor)

	ingestorDone := make(chan struct{})
	go func() {
		defer close(ingestorDone)
		ingestor.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Bind)
	}()
	slog.Info("http server listening", "addr", cfg.Bind)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}

	// Close every subscriber stream; in-flight undelivered events are
	// discarded by design.
	bus.Shutdown()
	<-ingestorDone
	slog.Info("collabd stopped")
}
