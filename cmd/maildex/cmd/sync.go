package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/contacts"
	"github.com/maildex/maildex/internal/index"
	"github.com/maildex/maildex/internal/indexer"
	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
	"github.com/maildex/maildex/internal/syncer"
)

var syncSourceDir string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass over all configured folders",
	Long: `Run one sync activation in the foreground: every configured folder
is paged through in order, progress is persisted per page, and an
interrupted run resumes from its saved cursor.

The source is a directory of <folder>.json files, each holding an array
of thread summaries in newest-first order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncSourceDir == "" {
			return fmt.Errorf("--source is required")
		}

		connID := resolveConnection()
		st, err := store.Open(filepath.Join(cfg.Data.DataDir, connID+".db"))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		if err := st.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		idx, err := index.New()
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		cache := contacts.NewCache()
		in := indexer.New(st, idx, cache).WithLogger(logger)

		src := source.NewRateLimited(
			source.NewFileSource(syncSourceDir, 0), cfg.Sync.RateLimitQPS)

		opts := &syncer.Options{
			Folders:         cfg.Sync.Folders,
			Freshness:       cfg.Freshness(),
			PageDelay:       cfg.PageDelay(),
			ActivationDelay: cfg.ActivationDelay(),
		}
		eng := syncer.New(src, st, in, opts).WithLogger(logger)

		if err := eng.Run(cmd.Context()); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if err := cmd.Context().Err(); err != nil {
			fmt.Println("Sync interrupted; progress saved.")
			return nil
		}

		progress, err := st.AllSyncProgress()
		if err != nil {
			return fmt.Errorf("read progress: %w", err)
		}
		for _, p := range progress {
			state := "in progress"
			if p.Completed {
				state = "completed"
			}
			fmt.Printf("%-12s %-12s %d threads\n", p.Folder, state, p.TotalIndexed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncSourceDir, "source", "", "directory of <folder>.json thread archives")
}
