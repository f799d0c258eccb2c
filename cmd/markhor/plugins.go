package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/inspect"
	"github.com/dtrlanz/markhor/internal/manifest"
)

var (
	pluginsShowJSON   bool
	pluginsLockDryRun bool
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect and pin discovered plugins",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runPluginsList(); code != 0 {
			os.Exit(code)
		}
	},
}

var pluginsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one plugin's manifest, resolved limits, and integrity state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if code := runPluginsShow(args[0]); code != 0 {
			os.Exit(code)
		}
	},
}

var pluginsLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Pin plugin manifests and entrypoints in the checksums lockfile",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runPluginsLock(); code != 0 {
			os.Exit(code)
		}
	},
}

var pluginsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify plugin files against the checksums lockfile",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runPluginsVerify(); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsShowCmd)
	pluginsCmd.AddCommand(pluginsLockCmd)
	pluginsCmd.AddCommand(pluginsVerifyCmd)
	pluginsShowCmd.Flags().BoolVar(&pluginsShowJSON, "json", false, "output in JSON format")
	pluginsLockCmd.Flags().BoolVar(&pluginsLockDryRun, "dry-run", false, "compute and print hashes without writing the lockfile")
}

func runPluginsList() int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	registry, err := discoverPlugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	names := registry.Names()
	fmt.Printf("Plugins in %s:\n", cfg.PluginsDir)
	if len(names) == 0 {
		fmt.Println("  (none)")
		return 0
	}
	sort.Strings(names)

	for _, name := range names {
		p, _ := registry.Get(name)
		status := "enabled"
		if !cfg.PluginEnabled(name) {
			status = "disabled"
		}
		fmt.Printf("\n%s %s (%s)\n", name, p.Version, status)
		if p.Description != "" {
			fmt.Printf("  %s\n", p.Description)
		}
		fmt.Printf("  Methods: %s\n", strings.Join(p.Methods, ", "))
		fmt.Printf("  Entrypoint: %s\n", p.Entrypoint)
	}
	return 0
}

func runPluginsShow(name string) int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	registry, err := discoverPlugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	plug, ok := registry.Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown plugin: %s\n", name)
		return 1
	}

	if pluginsShowJSON {
		out, err := inspect.BuildJSONPluginReport(cfg, plug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}
	fmt.Print(inspect.BuildPluginReport(cfg, plug))
	return 0
}

func runPluginsLock() int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	registry, err := discoverPlugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	report, err := manifest.Lock(cfg.PluginsDir, registry, pluginsLockDryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	files := make([]string, 0, len(report.Hashes))
	for rel := range report.Hashes {
		files = append(files, rel)
	}
	sort.Strings(files)
	for _, rel := range files {
		fmt.Printf("  %s  %s\n", report.Hashes[rel][:16], rel)
	}

	if report.Written {
		fmt.Printf("Wrote %s (%d files pinned)\n", report.LockPath, len(report.Hashes))
	} else {
		fmt.Printf("Dry run: %s not written (%d files hashed)\n", report.LockPath, len(report.Hashes))
	}
	return 0
}

func runPluginsVerify() int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	registry, err := discoverPlugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return 1
	}

	if err := manifest.Verify(cfg.PluginsDir, registry); err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		return 1
	}
	fmt.Println("OK: all plugin files match the lockfile.")
	return 0
}
