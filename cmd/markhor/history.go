package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/inspect"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/queue"
	"github.com/dtrlanz/markhor/internal/tui"
)

var (
	historyLimit    int
	historyPlugin   string
	historyStatus   string
	historyWatch    bool
	historyShowJSON bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded exchanges",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runHistory(); code != 0 {
			os.Exit(code)
		}
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one exchange in full, including any queued call record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if code := runHistoryShow(args[0]); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	historyCmd.Flags().StringVar(&historyPlugin, "plugin", "", "only exchanges with this plugin")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only exchanges with this status (e.g. succeeded, timed_out)")
	historyCmd.Flags().BoolVar(&historyWatch, "watch", false, "live board that refreshes as exchanges land")
	historyShowCmd.Flags().BoolVar(&historyShowJSON, "json", false, "output in JSON format")
}

func runHistory() int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	filter := journal.Filter{
		Plugin: historyPlugin,
		Status: historyStatus,
		Limit:  historyLimit,
	}

	if historyWatch {
		if _, err := tea.NewProgram(tui.NewWatch(j, filter)).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		return 0
	}

	entries, err := j.List(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list exchanges: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("No exchanges recorded.")
		return 0
	}

	for _, e := range entries {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		line := fmt.Sprintf("%s  %-12s  %-14s  %-18s  exit=%-3d  %8s  %s",
			id, e.Plugin, e.Method, e.Status, e.ExitCode,
			e.Duration.Round(time.Millisecond), e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Println(line)
		if e.Message != "" {
			fmt.Printf("          %s\n", e.Message)
		}
	}
	return 0
}

func runHistoryShow(id string) int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	q := queue.New(j.DB())

	if historyShowJSON {
		out, err := inspect.BuildJSONExchangeReport(ctx, j, q, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}

	out, err := inspect.BuildExchangeReport(ctx, j, q, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(out)
	return 0
}
