package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/internal/manifest"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "markhor",
	Short: "Plugin host for spawn-per-call stdio plugins",
	Long: `Markhor hosts executable plugins that speak a one-shot JSON protocol:
each call spawns the plugin, writes one request to its stdin, reads one
response from its stdout, and lets the process exit.

Plugins are discovered under the configured plugins directory, one
subdirectory per plugin with a manifest.yaml next to its entrypoint.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./markhor.yaml, then ~/.config/markhor/markhor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (json, text)")
}

// loadConfig resolves configuration and wires logging. Flags beat both the
// config file and environment overrides.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, "", err
	}
	if logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Service.LogFormat = logFormat
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, path, nil
}

// discoverPlugins scans the plugins directory, forwarding discovery
// diagnostics through the structured logger.
func discoverPlugins(cfg *config.Config) (*manifest.Registry, error) {
	logger := log.WithComponent("discovery")
	return manifest.Discover(cfg.PluginsDir, func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "info":
			logger.Info(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		}
	})
}

// openJournalBestEffort opens the exchange journal for commands where
// recording is desirable but not required. Returns nil when the journal
// cannot be opened; callers pass that through and skip recording.
func openJournalBestEffort(ctx context.Context, cfg *config.Config) *journal.Journal {
	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		log.Get().Warn("journal unavailable, exchange will not be recorded", "path", cfg.Journal.Path, "error", err.Error())
		return nil
	}
	return j
}
