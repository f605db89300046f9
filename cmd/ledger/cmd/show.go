package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <ledger-id>",
	Aliases: []string{"get"},
	Short:   "Show a ledger entry",
	Long:    `Show a single ledger entry. With --body the stored email text is printed as well.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runShow,
}

var showBody bool

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVarP(&showBody, "body", "b", false, "Print the stored email body")
}

func runShow(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	entry, err := client.GetLedgerEntry(cmd.Context(), id)
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	if err := formatter.PrintLedgerEntry(entry); err != nil {
		return err
	}

	if showBody {
		body, err := client.GetLedgerBody(cmd.Context(), id)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", body)
	}
	return nil
}
