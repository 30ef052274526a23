package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedtools/feedindex/pkg/searcher"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			g, catalog, err := openGateway(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = g.Close()
				if catalog != nil {
					_ = catalog.Close()
				}
			}()

			s := searcher.New(g.Handle(), searcher.DefaultCacheSize)
			hits, err := s.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}

			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results.")
				return nil
			}
			for i, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %.4f  %s\n", i+1, h.Score, h.Link)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")

	return cmd
}
