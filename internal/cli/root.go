// Package cli implements the ingestd command-line surface: init, collect,
// sync-sources, rescore, and stats. Each subcommand builds its own
// internal/app.Deps, runs one operation, and exits with a fixed code
// (0 success, 1 runtime failure, 2 configuration error, 3 partial success).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes used by every subcommand.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitPartial = 3
)

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "CTI ingestion and processing engine control plane",
	Long: `ingestd drives the catchup-feed ingestion pipeline: loading the
source catalog, running one-off check_source/process cycles, and
reporting on ingest history. The long-running scheduler/worker pool lives
in the separate "worker" binary; this one is for operator-driven,
one-shot operations.`,
}

// Execute runs the selected subcommand. Called once from cmd/ingestd/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitFailure)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(syncSourcesCmd)
	rootCmd.AddCommand(rescoreCmd)
	rootCmd.AddCommand(statsCmd)
}

func exitWith(code int) {
	os.Exit(code)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	exitWith(ExitFailure)
}

func failConfig(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "config error: "+format+"\n", args...)
	exitWith(ExitConfig)
}
