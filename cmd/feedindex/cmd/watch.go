package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feedtools/feedindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the gateway and watch the subscription list",
		Long: `Watch runs the indexing gateway as a long-lived process and watches
the configured subscription file. Feeds removed from the file are
deleted from the index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Feeds.ListPath == "" {
				return fmt.Errorf("feeds.list_path is not configured")
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

			fl, err := watcher.NewFeedList(cfg.Feeds.ListPath, cfg.WatchDebounceDuration(), g)
			if err != nil {
				g.Stop(ctx)
				_ = g.Close()
				return err
			}
			if err := fl.Start(); err != nil {
				g.Stop(ctx)
				_ = g.Close()
				return err
			}

			slog.Info("watching subscriptions",
				slog.String("path", cfg.Feeds.ListPath))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				slog.Info("shutting down", slog.String("signal", sig.String()))
			case <-ctx.Done():
			}

			fl.Stop()
			g.Stop(ctx)
			return g.Close()
		},
	}
}
