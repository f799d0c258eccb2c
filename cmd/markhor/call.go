package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/log"
)

var (
	callParams  string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <plugin> <method>",
	Short: "Invoke one plugin method and print the result",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if code := runCall(args[0], args[1]); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callParams, "params", "", "request params as a JSON object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "per-call timeout override (e.g. 30s)")
}

func runCall(pluginName, method string) int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	params := map[string]any{}
	if callParams != "" {
		if err := json.Unmarshal([]byte(callParams), &params); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --params JSON: %v\n", err)
			return 1
		}
	}

	registry, err := discoverPlugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	plug, ok := registry.Get(pluginName)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown plugin: %s\n", pluginName)
		return 1
	}
	if !cfg.PluginEnabled(pluginName) {
		fmt.Fprintf(os.Stderr, "Plugin is disabled in config: %s\n", pluginName)
		return 1
	}

	ctx := context.Background()
	inv := dispatch.NewInvocation(cfg, plug, method, params)
	if callTimeout > 0 {
		inv.Timeout = callTimeout
	}

	outcome := dispatch.NewCaller().Call(ctx, inv)

	if j := openJournalBestEffort(ctx, cfg); j != nil {
		if _, err := j.Record(ctx, journal.Entry{
			Plugin:   pluginName,
			Method:   method,
			Status:   string(outcome.Disposition),
			ExitCode: outcome.ExitCode,
			Duration: outcome.Duration,
			Message:  outcome.Message(),
		}); err != nil {
			log.Get().Warn("failed to record exchange", "error", err.Error())
		}
		j.Close()
	}

	if !outcome.Succeeded() {
		fmt.Fprintf(os.Stderr, "Call failed (%s): %s\n", outcome.Disposition, outcome.Message())
		if outcome.Stderr != "" {
			fmt.Fprintln(os.Stderr, outcome.Stderr)
		}
		return 1
	}

	data, err := json.MarshalIndent(outcome.Response.Result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
