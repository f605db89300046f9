package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"finance-ledger/internal/database"
)

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Aliases: []string{"src"},
	Short:   "List and toggle mail sources",
	Args:    cobra.NoArgs,
	RunE:    runSourcesList,
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable <source-id>",
	Short: "Activate a source so scheduled runs ingest it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetSourceStatus(cmd, args[0], database.SourceActive)
	},
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable <source-id>",
	Short: "Deactivate a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetSourceStatus(cmd, args[0], database.SourceInactive)
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a mail source with its search query and extraction patterns",
	Long: `Registers a mail source. When --query is omitted the search query is built
from --subject, --label and --from. Patterns may be written bare or wrapped
in slashes; the amount pattern's first capture group is the amount.`,
	Example: `  ledger sources add "HDFC alerts" --user 1 --from alerts@hdfcbank.net \
    --amount-regex 'Rs\.?\s*([\d,]+\.\d{2})' --payee-regex 'at [A-Z ]+'`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesAdd,
}

var sourcesPasteCmd = &cobra.Command{
	Use:   "paste <source-id> [text]",
	Short: "Run pasted message text through a source's patterns and store it",
	Long:  "Stores a ledger entry from text using the source's patterns. Without a text argument the text is read from stdin.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSourcesPaste,
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cats"},
	Short:   "List categories",
	Args:    cobra.NoArgs,
	RunE:    runCategories,
}

func init() {
	rootCmd.AddCommand(sourcesCmd, categoriesCmd)
	sourcesCmd.AddCommand(sourcesEnableCmd, sourcesDisableCmd, sourcesAddCmd, sourcesPasteCmd)

	addSourceFlags(sourcesAddCmd)
	sourcesAddCmd.MarkFlagRequired("user")
}

func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int64("user", 0, "owning user ID (required)")
	f.String("query", "", "Gmail search query")
	f.String("subject", "", "subject to match when building the query")
	f.String("label", "", "Gmail label to match when building the query")
	f.String("from", "", "sender address to match when building the query")
	f.String("amount-regex", "", "amount pattern")
	f.String("amount-regex-backup", "", "amount pattern tried when the first finds nothing")
	f.String("payee-regex", "", "payee pattern")
	f.String("payee-regex-backup", "", "payee pattern tried when the first finds nothing")
	f.String("type", database.TransactionDebit, "default transaction type (DEBIT or CREDIT)")
	f.Int64("category", 0, "default category ID")
}

// buildSource assembles a source from the add command's flags
func buildSource(cmd *cobra.Command, name string) (*database.Source, error) {
	flags := cmd.Flags()
	userID, _ := flags.GetInt64("user")
	if userID <= 0 {
		return nil, fmt.Errorf("user ID must be positive")
	}
	txType, _ := flags.GetString("type")
	txType = strings.ToUpper(txType)
	if !database.ValidTransactionType(txType) {
		return nil, fmt.Errorf("invalid type: %s (must be DEBIT or CREDIT)", txType)
	}

	src := &database.Source{
		UserID:      userID,
		SourceName:  name,
		SourceType:  database.SourceTypeMail,
		DefaultType: txType,
	}
	src.Query, _ = flags.GetString("query")
	src.Subject, _ = flags.GetString("subject")
	src.Label, _ = flags.GetString("label")
	src.FromEmail, _ = flags.GetString("from")
	src.AmountRegex, _ = flags.GetString("amount-regex")
	src.AmountRegexBackup, _ = flags.GetString("amount-regex-backup")
	src.PayeeRegex, _ = flags.GetString("payee-regex")
	src.PayeeRegexBackup, _ = flags.GetString("payee-regex-backup")
	if category, _ := flags.GetInt64("category"); category > 0 {
		src.DefaultCategoryID = &category
	}
	return src, nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	src, err := buildSource(cmd, args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	created, err := client.CreateSource(cmd.Context(), src)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Source %d (%s) created with query %q", created.ID, created.SourceName, created.Query))
	return nil
}

func runSourcesPaste(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	var text string
	if len(args) == 2 {
		text = args[1]
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("transaction text cannot be empty")
		formatter.PrintError(err)
		return err
	}

	entry, err := client.PasteTransaction(cmd.Context(), id, text)
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintLedgerEntry(entry)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	sources, err := client.ListSources(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintSources(sources)
}

func runSetSourceStatus(cmd *cobra.Command, arg, status string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(arg)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	src, err := client.SetSourceStatus(cmd.Context(), id, status)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Source %d (%s) is now %s", src.ID, src.SourceName, src.Status))
	return nil
}

func runCategories(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	cats, err := client.ListCategories(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintCategories(cats)
}
