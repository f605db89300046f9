package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	cliapi "finance-ledger/internal/cli"
	"finance-ledger/internal/database"
)

var addCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"a"},
	Short:   "Record a manual transaction",
	Long:    `Record a transaction that did not arrive by mail, such as a cash payment.`,
	Args:    cobra.NoArgs,
	RunE:    runAdd,
}

var (
	addUser     int64
	addAmount   string
	addPayee    string
	addType     string
	addCategory int64
	addDate     string
	addNote     string
)

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().Int64VarP(&addUser, "user", "u", 0, "Owner user ID (required)")
	addCmd.Flags().StringVarP(&addAmount, "amount", "a", "", "Amount, e.g. 250.00 (required)")
	addCmd.Flags().StringVarP(&addPayee, "payee", "p", "", "Payee")
	addCmd.Flags().StringVarP(&addType, "type", "t", database.TransactionDebit, "DEBIT or CREDIT")
	addCmd.Flags().Int64VarP(&addCategory, "category", "c", 0, "Category ID")
	addCmd.Flags().StringVarP(&addDate, "date", "d", "", "Transaction date (YYYY-MM-DD, default today)")
	addCmd.Flags().StringVarP(&addNote, "note", "n", "", "Free-text note")
	addCmd.MarkFlagRequired("user")
	addCmd.MarkFlagRequired("amount")
}

func buildManualEntry() (*cliapi.ManualEntryRequest, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(addAmount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s'", addAmount)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	req := &cliapi.ManualEntryRequest{
		UserID: addUser,
		Amount: amount,
		Payee:  strings.TrimSpace(addPayee),
		Type:   strings.ToUpper(strings.TrimSpace(addType)),
		Note:   addNote,
	}
	if !database.ValidTransactionType(req.Type) {
		return nil, fmt.Errorf("type must be DEBIT or CREDIT")
	}
	if addCategory > 0 {
		req.CategoryID = &addCategory
	}
	if addDate != "" {
		d, err := parseDate(addDate)
		if err != nil {
			return nil, err
		}
		req.Date = &d
	}
	return req, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	req, err := buildManualEntry()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	entry, err := client.CreateManualEntry(cmd.Context(), req)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Manual entry recorded")
	}
	return formatter.PrintLedgerEntry(entry)
}
