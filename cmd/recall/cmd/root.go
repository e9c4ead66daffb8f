// Package cmd provides the CLI commands for recall.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/logging"
	"github.com/recallhq/recall/pkg/version"
)

var loggingCleanup func()

// NewRootCmd creates the root command for the recall CLI.
func NewRootCmd() *cobra.Command {
	var debugMode bool

	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Multi-signal search over captured documents",
		Long: `Recall indexes captured documents and serves multi-signal search:
BM25 keyword matching, semantic similarity, rank fusion, and optional
cross-encoder reranking.

Results degrade gracefully: when the embedding or rerank backend is
down, queries keep serving from the signals that remain.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("recall version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		level := ""
		if debugMode {
			level = "debug"
		} else if cfg, err := config.Load("."); err == nil {
			level = cfg.Logging.Level
		}
		cleanup, err := logging.SetupDefault(level)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		return nil
	}
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
