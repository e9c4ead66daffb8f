package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/pkg/searcher"
)

type searchOptions struct {
	mode   string
	limit  int
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents.

Modes:
  keyword   BM25 keyword matching only
  semantic  embedding similarity only
  hybrid    keyword + semantic, rank-fused
  fused     hybrid plus cross-encoder reranking

Examples:
  recall search "quarterly planning notes"
  recall search "kubernetes upgrade" --mode keyword --limit 5
  recall search "how do I rotate credentials" --mode fused --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: keyword, semantic, hybrid, fused")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	s, err := searcher.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.RebuildIndexes(ctx); err != nil {
		return err
	}

	results, err := s.Search(ctx, query, searcher.Mode(opts.mode), opts.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No results found for %q\n", query)
		return nil
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)
		for i, r := range results {
			fmt.Fprintf(out, "%d. %s (score: %.4f, via %s)\n",
				i+1, r.Title, r.Score, strings.Join(r.Sources, "+"))
			if r.Snippet != "" {
				fmt.Fprintf(out, "   %s\n", r.Snippet)
			}
			fmt.Fprintln(out)
		}
		return nil
	}
}
