package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maildex/maildex/internal/core"
	"github.com/maildex/maildex/internal/search"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed threads using Gmail-like query syntax",
	Long: `Search the locally indexed snapshot using Gmail-like query syntax.

Supported operators:
  from:       Sender name or email
  to:         Recipient name or email
  subject:    Subject text
  is:unread   Threads with unread messages
  is:starred  Starred threads
  after:      Received after date (YYYY-MM-DD)
  before:     Received before date (YYYY-MM-DD)

Bare words and "quoted phrases" perform full-text search with typo
tolerance and prefix matching.

Examples:
  maildex search from:alice@example.com is:unread
  maildex search subject:meeting after:2024-01-01
  maildex search "quarterly report"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queryStr := strings.Join(args, " ")

		c, err := core.New(cfg.Data.DataDir, nil, nil)
		if err != nil {
			return fmt.Errorf("init core: %w", err)
		}
		defer c.Close()
		c.WithLogger(logger)

		if err := c.SwitchConnection(cmd.Context(), resolveConnection()); err != nil {
			return fmt.Errorf("open connection: %w", err)
		}

		results, err := c.Search(queryStr, &search.Options{Limit: searchLimit})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No threads found.")
			return nil
		}

		if searchJSON {
			return outputResultsJSON(results)
		}
		return outputResultsTable(results)
	},
}

func outputResultsTable(results []search.Result) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT")
	fmt.Fprintln(w, "──\t────\t────\t───────")

	for _, res := range results {
		t := res.Thread
		date := t.ReceivedOn
		if len(date) > 10 {
			date = date[:10]
		}
		from := t.SenderEmail
		if t.SenderName != "" {
			from = t.SenderName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(t.ID, 16), date, truncate(from, 30), truncate(t.Subject, 50))
	}

	w.Flush()
	fmt.Printf("\nShowing %d results\n", len(results))
	return nil
}

func outputResultsJSON(results []search.Result) error {
	output := make([]map[string]interface{}, len(results))
	for i, res := range results {
		t := res.Thread
		output[i] = map[string]interface{}{
			"id":            t.ID,
			"subject":       t.Subject,
			"snippet":       t.Snippet,
			"sender_name":   t.SenderName,
			"sender_email":  t.SenderEmail,
			"received_on":   t.ReceivedOn,
			"labels":        t.Labels,
			"has_unread":    t.HasUnread,
			"is_starred":    t.IsStarred,
			"total_replies": t.TotalReplies,
			"score":         res.Score,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}
