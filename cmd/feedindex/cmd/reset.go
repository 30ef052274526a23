package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the queue and rebuild an empty index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset discards the whole index; pass --yes to confirm")
			}

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

			if err := g.Reset(ctx); err != nil {
				_ = g.Close()
				return err
			}

			g.Stop(ctx)
			if err := g.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Index reset.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")

	return cmd
}
