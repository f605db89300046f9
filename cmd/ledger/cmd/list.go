package cmd

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	cliapi "finance-ledger/internal/cli"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List ledger entries",
	Long: `List ledger entries for a date range. Without --start/--end the server
returns the current calendar month. Hidden statuses (IGNORE, DUPLICATE, JUNK)
are shown only when asked for with --status, or all of them with --status all.`,
	RunE: runList,
}

var (
	listStart       string
	listEnd         string
	listStatus      string
	listUser        int64
	listSource      int64
	listLimit       int
	listInteractive bool
	listFields      string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listStart, "start", "", "First day to include (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listEnd, "end", "", "Last day to include (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Comma-separated statuses, or 'all'")
	listCmd.Flags().Int64Var(&listUser, "user", 0, "Only entries of this user ID")
	listCmd.Flags().Int64Var(&listSource, "source", 0, "Only entries of this source ID")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of entries")
	listCmd.Flags().BoolVarP(&listInteractive, "interactive", "i", false, "Browse entries in an interactive table")
	listCmd.Flags().StringVar(&listFields, "fields", "", "Columns for the interactive table (comma-separated)")
}

// shouldUseInteractiveMode picks the interactive table when asked for, or
// when a human is watching a table-formatted listing
func shouldUseInteractiveMode(config *cliapi.Config, explicit, isTTY bool) bool {
	if explicit {
		return true
	}
	return isTTY && config.Format == "table" && !config.Quiet
}

func ledgerQuery() (cliapi.LedgerQuery, error) {
	q := cliapi.LedgerQuery{
		Status:   strings.TrimSpace(listStatus),
		UserID:   listUser,
		SourceID: listSource,
		Limit:    listLimit,
	}
	for _, d := range []struct {
		raw  string
		dest *string
	}{{listStart, &q.Start}, {listEnd, &q.End}} {
		if d.raw == "" {
			continue
		}
		t, err := parseDate(d.raw)
		if err != nil {
			return q, err
		}
		*d.dest = t.Format("2006-01-02")
	}
	return q, nil
}

func runList(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	q, err := ledgerQuery()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	entries, err := client.ListLedger(cmd.Context(), q)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	isTTY := isatty.IsTerminal(os.Stdout.Fd())
	if shouldUseInteractiveMode(config, listInteractive, isTTY) {
		return runInteractiveTable(cmd.Context(), entries, client, listFields, config)
	}

	return formatter.PrintLedger(entries)
}
