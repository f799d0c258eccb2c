package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dtrlanz/markhor/internal/doctor"
	"github.com/dtrlanz/markhor/internal/manifest"
)

var (
	doctorJSON   bool
	doctorStrict bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate configuration and plugin setup",
	Long: `Doctor checks the resolved configuration against the discovered plugins:
service settings, plugin references, API and journal configuration, the
integrity lockfile, and required environment variables.

Exit code 0 when valid, 1 when errors were found, 2 with --strict when
only warnings were found.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runDoctor(); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "treat warnings as errors")
}

func runDoctor() int {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	// Discovery diagnostics stay quiet here; findings land in the report.
	registry, err := manifest.Discover(cfg.PluginsDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, registry).Validate()

	if doctorJSON {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if doctorStrict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}
