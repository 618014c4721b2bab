package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/api"
	"github.com/maildex/maildex/internal/core"
	"github.com/maildex/maildex/internal/scheduler"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/syncer"
)

var serveSourceDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server with background sync",
	Long: `Serve the search API over the active connection. Background sync
runs against the configured source, and connections with a cron schedule
get periodic catch-up activations.

Without --source, the server answers queries from the existing snapshot
and no background sync runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var src source.FolderSource
		if serveSourceDir != "" {
			src = source.NewRateLimited(
				source.NewFileSource(serveSourceDir, 0), cfg.Sync.RateLimitQPS)
		}

		opts := &syncer.Options{
			Folders:         cfg.Sync.Folders,
			Freshness:       cfg.Freshness(),
			PageDelay:       cfg.PageDelay(),
			ActivationDelay: cfg.ActivationDelay(),
		}

		c, err := core.New(cfg.Data.DataDir, src, opts)
		if err != nil {
			return fmt.Errorf("init core: %w", err)
		}
		defer c.Close()
		c.WithLogger(logger)

		if err := c.SwitchConnection(ctx, resolveConnection()); err != nil {
			return fmt.Errorf("open connection: %w", err)
		}

		sched := scheduler.New(func(ctx context.Context, connectionID string) error {
			if err := c.SwitchConnection(ctx, connectionID); err != nil {
				return err
			}
			return nil
		}).WithLogger(logger)

		if n, errs := sched.AddConnectionsFromConfig(cfg); n > 0 || len(errs) > 0 {
			for _, err := range errs {
				logger.Warn("skipping scheduled connection", "error", err)
			}
			sched.Start()
			defer func() {
				stopCtx := sched.Stop()
				<-stopCtx.Done()
			}()
		}

		server := api.NewServer(cfg, c, logger)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveSourceDir, "source", "", "directory of <folder>.json thread archives")
}
