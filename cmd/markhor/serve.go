package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/api"
	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/events"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/lock"
	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plugin host service",
	Long: `Serve runs the long-lived host: the queue worker that drains deferred
calls, and the HTTP API when api.enabled is set. A PID lock next to the
journal guards against a second instance on the same data directory.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runServe(); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() int {
	cfg, path, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if path == "" {
		path = "(defaults)"
	}

	logger := log.WithComponent("main")
	logger.Info("markhor starting", "config", path)

	lockPath := pidLockPath(cfg)
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
		return 1
	}
	defer j.Close()
	logger.Info("journal opened", "path", cfg.Journal.Path)

	if pruned, err := j.Prune(ctx, cfg.Journal.Retention); err != nil {
		logger.Warn("journal prune failed", "error", err)
	} else if pruned > 0 {
		logger.Info("pruned expired exchanges", "count", pruned)
	}

	q := queue.New(j.DB())

	registry, err := discoverPlugins(cfg)
	if err != nil {
		logger.Error("plugin discovery failed", "plugins_dir", cfg.PluginsDir, "error", err)
		return 1
	}
	logger.Info("plugin discovery complete", "count", len(registry.All()))

	hub := events.NewHub(0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	worker := dispatch.NewWorker(q, j, registry, cfg, hub)
	go func() {
		if err := worker.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	if cfg.API.Enabled {
		server := api.New(cfg, q, j, registry, dispatch.NewCaller(), hub, log.WithComponent("api"))
		go func() {
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("markhor running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("markhor stopped")
	return 0
}

// pidLockPath derives the lock location from the journal path so the lock
// and the database it guards share a directory.
func pidLockPath(cfg *config.Config) string {
	dbBase := filepath.Base(cfg.Journal.Path)
	ext := filepath.Ext(dbBase)
	return filepath.Join(filepath.Dir(cfg.Journal.Path), dbBase[:len(dbBase)-len(ext)]+".pid")
}
