// Easel server — beam-search image refinement: HTTP/WS API, job
// manager, GPU coordinator, and local model-service supervision.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/easel-ai/easel/pkg/api"
	"github.com/easel-ai/easel/pkg/cleanup"
	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/gpu"
	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/session"
	"github.com/easel-ai/easel/pkg/supervisor"
	"github.com/easel-ai/easel/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before anything reads the
	// environment.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	stats := cfg.Stats()
	slog.Info("Starting easel",
		"version", version.Full(),
		"port", cfg.Port,
		"config_dir", *configDir,
		"services", stats.Services,
		"priced_models", stats.PricedModels,
		"hosted_image_gen", stats.HostedImageGen)

	store, err := session.NewStore(cfg.SessionHistoryDir)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}

	sup := supervisor.New(cfg, "")
	coordinator := gpu.New(sup, cfg.GPUCleanupDelay)
	bus := progress.NewBus()
	manager := jobs.NewManager(cfg, store, bus, coordinator, nil)

	// The coordinator is the restarter so monitor-driven restarts
	// serialize with GPU ownership.
	monitor := supervisor.NewMonitor(sup, coordinator, supervisor.MonitorInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	sweeper := cleanup.NewService(cfg.Retention, store)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := api.NewServer(cfg, manager, store, sup, bus)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		exitCode = 1
	}

	// Drain running jobs first so their sessions finalize.
	drainCtx, drainCancel := context.WithTimeout(ctx, 30*time.Second)
	defer drainCancel()
	if err := manager.Shutdown(drainCtx); err != nil {
		slog.Warn("Job drain incomplete", "error", err)
	}

	// Evict all model families; local daemons do not outlive the server.
	cleanupCtx, cleanupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer cleanupCancel()
	if err := coordinator.CleanupAll(cleanupCtx); err != nil {
		slog.Warn("GPU cleanup incomplete", "error", err)
	}

	bus.Close()

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
