package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ledgerID int64

var reextractCmd = &cobra.Command{
	Use:     "reextract",
	Aliases: []string{"extract"},
	Short:   "Apply current source patterns to entries that were not extracted",
	Long: `Re-runs amount and payee extraction over every CREATED ledger entry, or
over a single entry with --ledger-id regardless of its status.`,
	RunE: runReextract,
}

func init() {
	reextractCmd.Flags().Int64Var(&ledgerID, "ledger-id", 0, "re-extract a single ledger entry")
}

func runReextract(cmd *cobra.Command, args []string) error {
	if ledgerID < 0 {
		return fmt.Errorf("ledger-id must be positive, got %d", ledgerID)
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, _, p, logger, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var target *int64
	if ledgerID > 0 {
		target = &ledgerID
	}

	summary, err := p.Reextractor.Run(ctx, target)
	if err != nil {
		return fmt.Errorf("re-extraction failed: %w", err)
	}

	logger.Info("Re-extraction finished",
		"scanned", summary.Scanned,
		"extracted", summary.Extracted,
		"unmatched", summary.Unmatched,
		"skipped", summary.Skipped,
		"errors", summary.Errors)
	return nil
}
