// Package cmd provides the CLI commands for feedindex.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/feedtools/feedindex/internal/config"
	"github.com/feedtools/feedindex/internal/index"
	"github.com/feedtools/feedindex/internal/logging"
	"github.com/feedtools/feedindex/internal/store"
	"github.com/feedtools/feedindex/pkg/version"
)

var (
	configPath string
	debugMode  bool

	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the feedindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedindex",
		Short: "Search index service for feed readers",
		Long: `feedindex maintains the full-text search index of a feed reader.

Item mutations go through a serializing gateway: one worker drains a
priority queue against the single-writer index, so feed refreshes,
deletes, and optimization never contend for the writer.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("feedindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = teardown

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newOptimizeCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads configuration and installs the logger.
func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if cfg.Server.LogFile != "" {
		logCfg.FilePath = cfg.Server.LogFile
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	// Human-readable output when a person is watching.
	logCfg.TextHandler = isatty.IsTerminal(os.Stderr.Fd())

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	return nil
}

// teardown flushes the log file.
func teardown(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// defaultConfigPath returns ~/.feedindex/config.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feedindex.yaml"
	}
	return filepath.Join(home, ".feedindex", "config.yaml")
}

// openGateway builds the gateway and its optional catalog from config.
func openGateway(ctx context.Context) (*index.Gateway, *store.Catalog, error) {
	var catalog *store.Catalog
	if cfg.Index.CatalogPath != "" {
		var err error
		catalog, err = store.OpenCatalog(cfg.Index.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
	}

	g, err := index.New(cfg, catalog)
	if err != nil {
		if catalog != nil {
			_ = catalog.Close()
		}
		return nil, nil, err
	}

	g.Start(ctx)
	return g, catalog, nil
}
