package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/NamiraNet/matchcounter/internal/config"
	"github.com/spf13/cobra"
)

// Build-time variables (injected via -ldflags)
var (
	version   = "dev"     // Default for development
	commit    = "unknown" // Git commit hash
	date      = "unknown" // Build date
	goVersion = runtime.Version()
	platform  = runtime.GOOS + "/" + runtime.GOARCH

	logLevel   string
	maxWorkers int

	cfg *config.Config
)

func getVersionInfo() string {
	commitHash := commit
	if len(commit) > 8 {
		commitHash = commit[:8]
	}
	return fmt.Sprintf("matchcounter %s (%s) built with %s on %s at %s",
		version, commitHash, goVersion, platform, date)
}

func newRootCmd() *cobra.Command {
	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:     "matchcounter",
		Version: version,
		Short:   "Count files containing a keyword",
		Long: `matchcounter walks a directory tree and counts the files whose contents contain a keyword.
Every directory is searched by its own task on a shared worker pool that grows with the tree.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Flags override the environment only when set explicitly.
			if cmd.Flags().Changed("log-level") {
				cfg.App.LogLevel = logLevel
			}
			if cmd.Flags().Changed("max-workers") {
				cfg.Worker.MaxWorkers = maxWorkers
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.App.LogLevel, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().IntVarP(&maxWorkers, "max-workers", "w", cfg.Worker.MaxWorkers, "Maximum pool workers (0 grows with the tree)")
	rootCmd.SetVersionTemplate(getVersionInfo() + "\n")

	rootCmd.AddCommand(newSearchCmd(), newAPICmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
