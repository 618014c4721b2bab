package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/core"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index, contact, and sync statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := core.New(cfg.Data.DataDir, nil, nil)
		if err != nil {
			return fmt.Errorf("init core: %w", err)
		}
		defer c.Close()
		c.WithLogger(logger)

		if err := c.SwitchConnection(cmd.Context(), resolveConnection()); err != nil {
			return fmt.Errorf("open connection: %w", err)
		}

		stats, err := c.GetStats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("Connection:      %s\n", stats.ConnectionID)
		fmt.Printf("Indexed threads: %d\n", stats.IndexedDocs)
		fmt.Printf("Contacts:        %d\n", stats.Contacts)
		if stats.Store != nil {
			fmt.Printf("Database size:   %d bytes\n", stats.Store.DatabaseSize)
		}

		if len(stats.Folders) > 0 {
			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FOLDER\tSTATE\tTHREADS\tLAST SYNCED")
			fmt.Fprintln(w, "──────\t─────\t───────\t───────────")
			for _, p := range stats.Folders {
				state := "in progress"
				if p.Completed {
					state = "completed"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					p.Folder, state, p.TotalIndexed,
					p.LastSyncedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
}
