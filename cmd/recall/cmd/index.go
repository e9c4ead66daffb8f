package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/pkg/searcher"
)

// indexDocument is the JSON shape accepted by `recall index`.
type indexDocument struct {
	ID        int64    `json:"id,omitempty"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags,omitempty"`
	Extracted string   `json:"extracted,omitempty"`
}

func newIndexCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "index <file.json>",
		Short: "Load documents and rebuild the indexes",
		Long: `Load a JSON array of documents into the store, rebuild the keyword
index, and embed the documents for semantic search.

Example document:
  {"title": "Meeting notes", "body": "...", "tags": ["work"]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for embeddings before exiting")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, wait bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var docs []indexDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s contains no documents", path)
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	s, err := searcher.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for i := range docs {
		doc := &searcher.Document{
			ID:        docs[i].ID,
			Title:     docs[i].Title,
			Summary:   docs[i].Summary,
			Body:      docs[i].Body,
			Tags:      docs[i].Tags,
			Extracted: docs[i].Extracted,
		}
		if err := s.Put(ctx, doc); err != nil {
			return fmt.Errorf("failed to store document %d: %w", i, err)
		}
	}

	if wait {
		s.WaitForEmbeddings()
	}

	if err := s.RebuildIndexes(ctx); err != nil {
		return err
	}

	stats := s.SparseStats()
	slog.Info("index_complete",
		slog.Int("loaded", len(docs)),
		slog.Int("indexed", stats.DocumentCount))
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents (%d terms)\n",
		stats.DocumentCount, stats.TermCount)
	return nil
}
