package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cliapi "finance-ledger/internal/cli"
	"finance-ledger/internal/database"
)

var updateCmd = &cobra.Command{
	Use:     "update <ledger-id>",
	Aliases: []string{"mark", "edit"},
	Short:   "Reclassify a ledger entry",
	Long: `Change the status or category of a ledger entry. Marking an entry IGNORE,
DUPLICATE or JUNK hides it from the default listing.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var (
	updateStatus   string
	updateCategory int64
)

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status (CREATED, EXTRACTED, MANUAL, IGNORE, DUPLICATE, JUNK)")
	updateCmd.Flags().Int64Var(&updateCategory, "category", 0, "New category ID")
}

func buildUpdateRequest(status string, category int64) (*cliapi.UpdateLedgerRequest, error) {
	req := &cliapi.UpdateLedgerRequest{}
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		if !database.ValidLedgerStatus(status) {
			return nil, fmt.Errorf("unknown status %s", status)
		}
		req.Status = &status
	}
	if category < 0 {
		return nil, fmt.Errorf("category must be a positive integer")
	}
	if category > 0 {
		req.CategoryID = &category
	}
	if req.Status == nil && req.CategoryID == nil {
		return nil, fmt.Errorf("nothing to update: pass --status or --category")
	}
	return req, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	req, err := buildUpdateRequest(updateStatus, updateCategory)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	entry, err := client.UpdateLedgerEntry(cmd.Context(), id, req)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Ledger entry updated successfully")
	}
	return formatter.PrintLedgerEntry(entry)
}
