package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"staff-registry/core"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "Operator CLI for the staff registry accounts",
	Long: `registryctl manages login accounts directly in the registry database.
It reads the same configuration as the API server (CONFIG_FILE and environment).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database", "", "Database URL (overrides DATABASE_URL)")
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(accessLogCmd)
}

// loadConfig returns the server configuration with the --database override applied.
func loadConfig() (core.Config, error) {
	cfg, err := core.Load()
	if err != nil {
		return core.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	return cfg, nil
}

func openStore(ctx context.Context) (core.UserStore, core.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, core.Config{}, err
	}
	store, err := core.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, core.Config{}, fmt.Errorf("failed to open database: %w", err)
	}
	return store, cfg, nil
}
