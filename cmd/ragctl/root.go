package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docrag-go/internal/bootstrap"
	"docrag-go/internal/config"
	"docrag-go/pkg/log"
)

var (
	configPath string
	userID     string
	verbose    bool

	// Replaced in tests.
	loadConfig = config.Load
	newApp     = bootstrap.New
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Ingest and search documents from the command line",
	Long: `ragctl runs the same ingestion pipeline and similarity search as the
HTTP server, against the vector store named in the configuration file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "owner of ingested documents; empty searches all users")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write pipeline logs to stdout")
}

func readConfig() (config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if verbose {
		log.Init(cfg.Log.Level, "console", "")
	}
	return cfg, nil
}

// withApp builds the application for one command and closes it afterwards.
func withApp(run func(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		app, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer app.Close()
		return run(cmd.Context(), cmd, app, args)
	}
}
