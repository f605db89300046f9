package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <ledger-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a ledger entry",
	Long: `Delete a ledger entry permanently. Deleting an ingested entry lets the next
run ingest the same email again; mark it IGNORE instead to keep it out.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if err := client.DeleteLedgerEntry(cmd.Context(), id); err != nil {
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Ledger entry %d deleted", id))
	return nil
}
