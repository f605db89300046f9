package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finance-ledger/internal/database"
	"finance-ledger/internal/email"
	"finance-ledger/internal/extract"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// IngestConfig configures the ingestion pipeline
type IngestConfig struct {
	LookbackDays      int
	RetryCount        int
	RetryDelay        time.Duration
	MaxTokenRefreshes int
	FetchConcurrency  int
	DryRun            bool
}

// DefaultIngestConfig returns the stock pipeline settings
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		LookbackDays:      email.DefaultLookbackDays,
		RetryCount:        3,
		RetryDelay:        time.Second,
		MaxTokenRefreshes: 1,
		FetchConcurrency:  4,
	}
}

// SourceRepository reads source configuration
type SourceRepository interface {
	GetWithOwner(ctx context.Context, id int64) (*database.Source, *database.User, error)
	ListActiveMail(ctx context.Context) ([]database.Source, error)
}

// LedgerWriter dedups candidate messages and writes ledger rows
type LedgerWriter interface {
	FilterNewEmailIDs(ctx context.Context, userID int64, candidates []string) ([]string, error)
	InsertIgnore(ctx context.Context, e *database.LedgerEntry) (bool, error)
}

// RunLocker guards a source against concurrent runs in other processes
type RunLocker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Ingestor turns new mailbox messages of a source into ledger rows:
// list, dedup, fetch, decode, extract, write.
type Ingestor struct {
	config    IngestConfig
	sources   SourceRepository
	ledger    LedgerWriter
	mail      email.MailClient
	refresher TokenRefresher
	locker    RunLocker
	logger    *slog.Logger
	now       func() time.Time
}

// NewIngestor creates an ingestor. Zero config fields take their defaults.
func NewIngestor(
	config IngestConfig,
	sources SourceRepository,
	ledger LedgerWriter,
	mail email.MailClient,
	refresher TokenRefresher,
	logger *slog.Logger,
) *Ingestor {
	defaults := DefaultIngestConfig()
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaults.LookbackDays
	}
	if config.RetryCount <= 0 {
		config.RetryCount = defaults.RetryCount
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxTokenRefreshes < 0 {
		config.MaxTokenRefreshes = defaults.MaxTokenRefreshes
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		config:    config,
		sources:   sources,
		ledger:    ledger,
		mail:      mail,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// SetLocker enables cross-process run locking
func (i *Ingestor) SetLocker(locker RunLocker) {
	i.locker = locker
}

// RunAll ingests every active mail source, one after another. Cancelling ctx
// stops the loop before the next source; rows already written stay.
func (i *Ingestor) RunAll(ctx context.Context) *RunSummary {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: i.now(),
	}
	logger := i.logger.With("run_id", summary.RunID)

	sources, err := i.sources.ListActiveMail(ctx)
	if err != nil {
		summary.Error = fmt.Sprintf("failed to list sources: %v", err)
		summary.FinishedAt = i.now()
		logger.Error("Failed to list active sources", "error", err)
		return summary
	}

	logger.Info("Starting ingestion run", "sources", len(sources))

	for _, src := range sources {
		if ctx.Err() != nil {
			summary.Cancelled = true
			logger.Info("Ingestion run cancelled", "remaining_sources", len(sources)-len(summary.Sources))
			break
		}
		summary.Sources = append(summary.Sources, i.IngestSource(ctx, src.ID, i.config.LookbackDays))
	}

	summary.FinishedAt = i.now()
	totals := summary.Totals()
	logger.Info("Ingestion run completed",
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"sources", totals.Sources,
		"failed_sources", totals.FailedSources,
		"ingested", totals.Ingested,
		"extracted", totals.Extracted,
		"message_failures", totals.MessageFailures)
	return summary
}

// IngestSource runs the pipeline for one source over the last days days.
// Lookup and provider failures are reported in the result, never returned.
func (i *Ingestor) IngestSource(ctx context.Context, sourceID int64, days int) *SourceResult {
	res := &SourceResult{SourceID: sourceID, StartedAt: i.now()}
	defer func() { res.FinishedAt = i.now() }()

	if days <= 0 {
		days = i.config.LookbackDays
	}

	src, owner, err := i.sources.GetWithOwner(ctx, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		res.Error = "source or user not found"
		res.NotFound = true
		i.logger.Warn("Source or user not found", "source_id", sourceID)
		return res
	}
	if err != nil {
		res.Error = fmt.Sprintf("failed to load source: %v", err)
		i.logger.Error("Failed to load source", "source_id", sourceID, "error", err)
		return res
	}

	res.SourceName = src.SourceName
	logger := i.logger.With("source_id", src.ID, "source_name", src.SourceName)

	if i.locker != nil {
		release, ok, err := i.locker.TryLock(ctx, fmt.Sprintf("ingest:source:%d", src.ID))
		switch {
		case err != nil:
			// the unique constraint still guards the ledger
			logger.Warn("Run lock unavailable, continuing without it", "error", err)
		case !ok:
			res.Locked = true
			res.Error = "ingestion already running for source"
			logger.Info("Source is locked by another run, skipping")
			return res
		default:
			defer release()
		}
	}

	i.ingest(ctx, src, owner, days, res, logger)
	return res
}

func (i *Ingestor) ingest(ctx context.Context, src *database.Source, owner *database.User, days int, res *SourceResult, logger *slog.Logger) {
	rules, err := extract.CompileRules(src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex, src.PayeeRegexBackup)
	if err != nil {
		// rows are still stored as CREATED for a later re-extraction
		res.RuleError = err.Error()
		logger.Error("Source patterns do not compile, extraction disabled for this run", "error", err)
		rules = nil
	}

	session := newTokenSession(owner.ID, owner.AccessToken, owner.RefreshToken, i.refresher, i.config.MaxTokenRefreshes)
	defer func() { res.TokenRefreshes = session.Refreshes() }()

	res.Query = email.BuildSearchQuery(src.Query, days, i.now())

	var ids []string
	err = session.do(ctx, func(token string) error {
		var err error
		ids, err = i.mail.ListMessageIDs(ctx, token, res.Query)
		return err
	})
	if err != nil {
		res.Error = sourceError(err)
		logger.Error("Failed to list messages", "query", res.Query, "error", err)
		return
	}
	res.Listed = len(ids)

	fresh, err := i.ledger.FilterNewEmailIDs(ctx, owner.ID, ids)
	if err != nil {
		res.Error = fmt.Sprintf("failed to check existing messages: %v", err)
		logger.Error("Dedup query failed", "error", err)
		return
	}
	res.AlreadyIngested = len(ids) - len(fresh)

	logger.Info("Processing new messages", "query", res.Query, "listed", res.Listed, "new", len(fresh))

	if i.config.DryRun {
		logger.Info("Dry run, not fetching messages", "would_fetch", len(fresh))
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.FetchConcurrency)

	for _, id := range fresh {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			entry, inserted, err := i.processMessage(gctx, session, src, owner, rules, id, logger)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrTokenRefresh):
				return err
			case err != nil:
				res.Failures = append(res.Failures, MessageFailure{EmailID: id, Error: err.Error()})
			case !inserted:
				res.Duplicates++
			default:
				res.Ingested++
				if entry.Status == database.StatusExtracted {
					res.Extracted++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		res.Error = sourceError(err)
		logger.Error("Source run aborted", "error", err)
		return
	}

	logger.Info("Source processed",
		"ingested", res.Ingested,
		"extracted", res.Extracted,
		"duplicates", res.Duplicates,
		"failures", len(res.Failures))
}

// processMessage fetches one message, extracts it and writes the ledger row
func (i *Ingestor) processMessage(
	ctx context.Context,
	session *tokenSession,
	src *database.Source,
	owner *database.User,
	rules *extract.Rules,
	id string,
	logger *slog.Logger,
) (*database.LedgerEntry, bool, error) {
	msg, err := i.fetch(ctx, session, id, logger)
	if err != nil {
		return nil, false, err
	}

	sourceID := src.ID
	emailID := msg.ID
	entry := &database.LedgerEntry{
		Date:                   msg.Date,
		UserID:                 owner.ID,
		SourceID:               &sourceID,
		EmailID:                &emailID,
		EmailSubject:           msg.Subject,
		Body:                   msg.Body,
		TransactionTypeExtract: src.DefaultType,
		CategoryID:             src.DefaultCategoryID,
		Status:                 database.StatusCreated,
	}

	if rules != nil {
		applyExtraction(rules, entry, logger.With("email_id", id))
	}

	inserted, err := i.ledger.InsertIgnore(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	return entry, inserted, nil
}

// applyExtraction fills amount and payee. An amount that matched but does
// not parse leaves the entry CREATED.
func applyExtraction(rules *extract.Rules, entry *database.LedgerEntry, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Extraction panicked, storing entry unextracted", "panic", r)
			entry.AmountExtract = decimal.NullDecimal{}
			entry.PayeeExtract = nil
			entry.Status = database.StatusCreated
		}
	}()

	out := rules.Evaluate(entry.Body)
	entry.PayeeExtract = out.Result.Payee

	if out.ParseErr != nil {
		logger.Warn("Extracted amount is not a number", "error", out.ParseErr)
		return
	}
	if out.HasAmount {
		entry.AmountExtract = decimal.NewNullDecimal(out.Value)
		entry.Status = database.StatusExtracted
	}
}

// fetch gets a message with a fixed delay between attempts. 401s are handled
// by the session and do not count as attempts.
func (i *Ingestor) fetch(ctx context.Context, session *tokenSession, id string, logger *slog.Logger) (*email.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= i.config.RetryCount; attempt++ {
		var msg *email.Message
		err := session.do(ctx, func(token string) error {
			var err error
			msg, err = i.mail.GetMessage(ctx, token, id)
			return err
		})
		if err == nil {
			return msg, nil
		}
		if errors.Is(err, ErrTokenRefresh) || email.IsPermanent(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if attempt < i.config.RetryCount {
			logger.Warn("Message fetch failed, retrying",
				"email_id", id,
				"attempt", attempt,
				"max_attempts", i.config.RetryCount,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(i.config.RetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", i.config.RetryCount, lastErr)
}

func sourceError(err error) string {
	switch {
	case errors.Is(err, ErrTokenRefresh):
		return ErrTokenRefresh.Error()
	case errors.Is(err, context.Canceled):
		return "run cancelled"
	default:
		return err.Error()
	}
}
