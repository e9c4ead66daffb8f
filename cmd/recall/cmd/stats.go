package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/pkg/searcher"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			s, err := searcher.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.RebuildIndexes(cmd.Context()); err != nil {
				return err
			}

			stats := s.SparseStats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Documents:      %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "Terms:          %d\n", stats.TermCount)
			fmt.Fprintf(out, "Avg doc length: %.1f tokens\n", stats.AvgDocLength)
			fmt.Fprintf(out, "Database:       %s\n", cfg.Storage.Path)
			return nil
		},
	}
}
