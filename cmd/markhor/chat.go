package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/tui"
)

var (
	chatPlugin string
	chatModel  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with a conversational plugin",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runChat(); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatPlugin, "plugin", "", "plugin to chat with (picker shown when omitted)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model name passed to the plugin")
}

func runChat() int {
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

	name := chatPlugin
	if name == "" {
		final, err := tea.NewProgram(tui.NewPicker(cfg, registry, "chat")).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		name = final.(tui.PickerModel).Choice()
		if name == "" {
			return 0
		}
	}

	plug, ok := registry.Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown plugin: %s\n", name)
		return 1
	}
	if !cfg.PluginEnabled(name) {
		fmt.Fprintf(os.Stderr, "Plugin is disabled in config: %s\n", name)
		return 1
	}
	if !plug.SupportsMethod("chat") {
		fmt.Fprintf(os.Stderr, "Plugin %s does not declare a chat method\n", name)
		return 1
	}

	ctx := context.Background()
	j := openJournalBestEffort(ctx, cfg)
	if j != nil {
		defer j.Close()
	}

	session := tui.NewSession(tui.NewDispatchTransport(cfg, plug, j), chatModel, nil)
	if _, err := tea.NewProgram(tui.NewChat(session, name, chatModel)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
