package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/core"
)

var (
	contactsLimit int
	contactsJSON  bool
)

var contactsCmd = &cobra.Command{
	Use:   "contacts [query]",
	Short: "Search indexed contacts",
	Long: `Search the contact index built from senders and recipients of
indexed threads. With no query, lists the most-contacted addresses.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}

		c, err := core.New(cfg.Data.DataDir, nil, nil)
		if err != nil {
			return fmt.Errorf("init core: %w", err)
		}
		defer c.Close()
		c.WithLogger(logger)

		if err := c.SwitchConnection(cmd.Context(), resolveConnection()); err != nil {
			return fmt.Errorf("open connection: %w", err)
		}

		results := c.SearchContacts(query, contactsLimit)
		if len(results) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}

		if contactsJSON {
			output := make([]map[string]interface{}, len(results))
			for i, ct := range results {
				output[i] = map[string]interface{}{
					"email":             ct.Email,
					"name":              ct.Name,
					"interaction_count": ct.InteractionCount,
					"last_seen":         ct.LastSeen.Format("2006-01-02"),
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(output)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tCOUNT\tLAST SEEN")
		fmt.Fprintln(w, "─────\t────\t─────\t─────────")
		for _, ct := range results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				truncate(ct.Email, 40), truncate(ct.Name, 30),
				ct.InteractionCount, ct.LastSeen.Format("2006-01-02"))
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contactsCmd)
	contactsCmd.Flags().IntVarP(&contactsLimit, "limit", "n", 20, "Maximum number of results")
	contactsCmd.Flags().BoolVar(&contactsJSON, "json", false, "Output as JSON")
}
