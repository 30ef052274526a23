package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/feedtools/feedindex/internal/feed"
)

// feedDump is one refresh result handed to the indexer: the items of a
// single feed, as written by the fetch pipeline.
type feedDump struct {
	FeedURL string      `json:"feed_url"`
	Items   []*feed.Item `json:"items"`
}

func newIndexCmd() *cobra.Command {
	var culture string

	cmd := &cobra.Command{
		Use:   "index <dump.json> [dump.json...]",
		Short: "Index feed item dumps",
		Long: `Index reads one or more feed dump files (JSON with feed_url and
items) and submits their items to the gateway as batch adds, one batch
per feed. The command waits for the queue to drain before exiting.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, culture)
		},
	}

	cmd.Flags().StringVar(&culture, "culture", "", "Analyzer culture override (e.g. fr, pt-BR)")

	return cmd
}

func runIndex(cmd *cobra.Command, paths []string, culture string) error {
	ctx := cmd.Context()

	g, catalog, err := openGateway(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if catalog != nil {
			_ = catalog.Close()
		}
	}()

	// Parse dumps concurrently; enqueueing is cheap and the gateway
	// serializes the writes anyway.
	batches := make([][]*feed.Document, len(paths))
	var eg errgroup.Group
	for i, path := range paths {
		eg.Go(func() error {
			docs, err := loadDump(path)
			if err != nil {
				return err
			}
			batches[i] = docs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.Stop(ctx)
		_ = g.Close()
		return err
	}

	total := 0
	for _, docs := range batches {
		if len(docs) == 0 {
			continue
		}
		g.AddMany(docs, culture)
		total += len(docs)
	}
	slog.Info("items submitted", slog.Int("count", total))

	// Let the worker drain everything before the bounded final drain;
	// Stop alone would drop most of a large submission.
	for g.PendingCount() > 0 {
		time.Sleep(100 * time.Millisecond)
	}

	count, countErr := g.DocCount(ctx)

	g.Stop(ctx)
	if err := g.Close(); err != nil {
		return err
	}

	if countErr == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d items (%d documents total)\n", total, count)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d items\n", total)
	}
	return nil
}

// loadDump reads a feed dump file into documents.
func loadDump(path string) ([]*feed.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var dump feedDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	docs := make([]*feed.Document, 0, len(dump.Items))
	for _, item := range dump.Items {
		if item.FeedURL == "" {
			item.FeedURL = dump.FeedURL
		}
		doc, err := feed.NewDocument(item)
		if err != nil {
			slog.Warn("skipping item", slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
