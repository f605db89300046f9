package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"finance-ledger/internal/database"
	"finance-ledger/internal/extract"

	"github.com/shopspring/decimal"
)

// ExtractionStore reads entries awaiting extraction and stores results
type ExtractionStore interface {
	ListForExtraction(ctx context.Context, ledgerID *int64) ([]database.LedgerEntry, error)
	MarkExtracted(ctx context.Context, id int64, amount decimal.Decimal, payee *string) error
}

// SourceLookup resolves the source of an entry
type SourceLookup interface {
	GetByID(ctx context.Context, id int64) (*database.Source, error)
}

// ReextractSummary counts the outcome of a re-extraction pass
type ReextractSummary struct {
	Scanned   int `json:"scanned"`
	Extracted int `json:"extracted"`
	Unmatched int `json:"unmatched"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Reextractor re-runs extraction over stored bodies, so rows that missed at
// ingestion pick up patterns fixed later. Running it twice changes nothing.
type Reextractor struct {
	ledger  ExtractionStore
	sources SourceLookup
	cache   *extract.RuleCache
	logger  *slog.Logger
}

// NewReextractor creates a re-extraction pass
func NewReextractor(ledger ExtractionStore, sources SourceLookup, cache *extract.RuleCache, logger *slog.Logger) *Reextractor {
	if cache == nil {
		cache = extract.NewRuleCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reextractor{ledger: ledger, sources: sources, cache: cache, logger: logger}
}

// Run processes every CREATED entry, or only ledgerID when given. A missing
// ledgerID returns sql.ErrNoRows; per-entry problems are counted.
func (r *Reextractor) Run(ctx context.Context, ledgerID *int64) (*ReextractSummary, error) {
	entries, err := r.ledger.ListForExtraction(ctx, ledgerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list entries for extraction: %w", err)
	}

	summary := &ReextractSummary{}
	sources := make(map[int64]*database.Source)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Scanned++
		logger := r.logger.With("ledger_id", entry.ID)

		if entry.SourceID == nil {
			summary.Skipped++
			continue
		}

		src, ok := sources[*entry.SourceID]
		if !ok {
			src, err = r.sources.GetByID(ctx, *entry.SourceID)
			if err != nil {
				summary.Errors++
				logger.Warn("Failed to load source for entry", "source_id", *entry.SourceID, "error", err)
				continue
			}
			sources[src.ID] = src
		}

		rules, err := r.cache.Get(src.ID, src.UpdatedAt, src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex, src.PayeeRegexBackup)
		if err != nil {
			summary.Errors++
			logger.Warn("Source patterns do not compile", "source_id", src.ID, "error", err)
			continue
		}

		out := rules.Evaluate(entry.Body)
		if out.ParseErr != nil {
			summary.Errors++
			logger.Warn("Extracted amount is not a number", "error", out.ParseErr)
			continue
		}
		if !out.HasAmount {
			summary.Unmatched++
			continue
		}

		if err := r.ledger.MarkExtracted(ctx, entry.ID, out.Value, out.Result.Payee); err != nil {
			summary.Errors++
			logger.Error("Failed to store extraction", "error", err)
			continue
		}
		summary.Extracted++
	}

	r.logger.Info("Re-extraction completed",
		"scanned", summary.Scanned,
		"extracted", summary.Extracted,
		"unmatched", summary.Unmatched,
		"skipped", summary.Skipped,
		"errors", summary.Errors)
	return summary, nil
}
