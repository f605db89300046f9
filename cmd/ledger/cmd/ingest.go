package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cliapi "finance-ledger/internal/cli"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <source-id>",
	Short: "Ingest new mail for one source now",
	Long: `Run ingestion for a single source and wait for it to finish. Messages
already in the ledger are skipped, so running it twice is harmless.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var extractCmd = &cobra.Command{
	Use:     "extract [ledger-id]",
	Aliases: []string{"reextract"},
	Short:   "Re-run extraction over stored email bodies",
	Long: `Re-run the source's patterns over CREATED entries, or over one entry when
an ID is given. Use it after fixing a source's amount or payee pattern.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

var ingestDays int

func init() {
	rootCmd.AddCommand(ingestCmd, extractCmd)

	ingestCmd.Flags().IntVar(&ingestDays, "days", 0, "Look back this many days (default is the server setting)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	id, err := validateAndParseID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	if ingestDays < 0 {
		err := fmt.Errorf("days must not be negative")
		formatter.PrintError(err)
		return err
	}

	spin := cliapi.NewProgressSpinner(fmt.Sprintf("Ingesting source %d", id), config.NoColor || config.Quiet)
	if !config.Quiet {
		spin.Start()
	}
	res, err := client.Ingest(cmd.Context(), id, ingestDays)
	spin.Stop()

	if res != nil {
		if perr := formatter.PrintSourceResult(res); perr != nil {
			return perr
		}
	}
	if err != nil {
		var apiErr *cliapi.APIError
		if res == nil || !errors.As(err, &apiErr) {
			formatter.PrintError(err)
		}
		return err
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	var ledgerID *int64
	if len(args) == 1 {
		id, err := validateAndParseID(args[0])
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		ledgerID = &id
	}

	summary, err := client.Extract(cmd.Context(), ledgerID)
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintReextract(summary)
}
