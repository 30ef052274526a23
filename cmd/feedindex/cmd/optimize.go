package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newOptimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Merge index segments into one",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			g.Optimize()
			for g.PendingCount() > 0 {
				time.Sleep(100 * time.Millisecond)
			}

			g.Stop(ctx)
			if err := g.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Optimize complete.")
			return nil
		},
	}
}
