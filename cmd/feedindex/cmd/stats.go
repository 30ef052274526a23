package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and catalog statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			count, err := g.DocCount(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Documents: %d\n", count)

			if catalog == nil {
				return nil
			}

			feeds, err := catalog.Feeds(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Feeds:     %d\n", len(feeds))
			for _, f := range feeds {
				fmt.Fprintf(out, "  %-50s %6d items  last %s\n",
					f.URL, f.Items, f.LastIndexed.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
