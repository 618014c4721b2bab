package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/config"
)

var (
	cfgFile    string
	verbose    bool
	connection string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "maildex",
	Short: "Client-resident email search core",
	Long: `maildex maintains a local, searchable snapshot of an email account:
a persistent thread store, an in-memory full-text index, and a contact
index, kept fresh by a resumable background sync engine.

Search uses Gmail-like query syntax (from:, to:, subject:, is:unread,
is:starred, after:, before:) over locally indexed metadata.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Data.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}
		return nil
	},
}

// ExecuteContext runs the root command with the given context, enabling
// graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// resolveConnection picks the connection to operate on: the --connection
// flag, else the first configured connection, else "default".
func resolveConnection() string {
	if connection != "" {
		return connection
	}
	if len(cfg.Connections) > 0 {
		return cfg.Connections[0].ID
	}
	return "default"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.maildex/config.toml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "", "connection id (default: first configured)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
