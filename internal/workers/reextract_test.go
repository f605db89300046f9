package workers

import (
	"context"
	"database/sql"
	"testing"

	"finance-ledger/internal/database"
	"finance-ledger/internal/extract"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReextractor_PicksUpFixedPatterns(t *testing.T) {
	src := bankSource()
	src.AmountRegex = `INR ([\d.]+)`
	f := newFixture(t, testConfig(), src)
	ctx := context.Background()
	f.srv.AddMessage("m1", "alert", "alerts@bank.com", fixedNow, "Rs. 99.90 debited to CAFE")

	res := f.ingestor.IngestSource(ctx, f.source.ID, 2)
	require.Empty(t, res.Error)
	require.Equal(t, database.StatusCreated, f.entry(t, "m1").Status)

	cache := extract.NewRuleCache(8)
	re := NewReextractor(f.db.Ledger, f.db.Sources, cache, testLogger())

	summary, err := re.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Unmatched)

	fixed := *f.source
	fixed.AmountRegex = `Rs\. ([\d,]+\.\d{2})`
	require.NoError(t, f.db.Sources.Update(ctx, f.source.ID, &fixed))

	summary, err = re.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Extracted)

	e := f.entry(t, "m1")
	assert.Equal(t, database.StatusExtracted, e.Status)
	assert.True(t, e.AmountExtract.Decimal.Equal(decimal.RequireFromString("99.90")))
	require.NotNil(t, e.PayeeExtract)
	assert.Equal(t, "CAFE", *e.PayeeExtract)

	// nothing left in CREATED, a second pass is a no-op
	summary, err = re.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
}

func TestReextractor_SingleEntry(t *testing.T) {
	f := newFixture(t, testConfig(), bankSource())
	ctx := context.Background()

	sourceID := f.source.ID
	entry := &database.LedgerEntry{
		Date:         fixedNow,
		UserID:       f.user.ID,
		SourceID:     &sourceID,
		EmailSubject: "pasted",
		Body:         "Rs. 12.00 debited to BOOKS",
		Status:       database.StatusIgnore,
	}
	require.NoError(t, f.db.Ledger.Create(ctx, entry))

	re := NewReextractor(f.db.Ledger, f.db.Sources, nil, testLogger())

	summary, err := re.Run(ctx, &entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Extracted)

	got, err := f.db.Ledger.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusExtracted, got.Status)

	missing := int64(4242)
	_, err = re.Run(ctx, &missing)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReextractor_SkipsEntriesWithoutSource(t *testing.T) {
	f := newFixture(t, testConfig(), bankSource())
	ctx := context.Background()

	require.NoError(t, f.db.Ledger.Create(ctx, &database.LedgerEntry{
		Date:   fixedNow,
		UserID: f.user.ID,
		Body:   "Rs. 1.00 debited to X",
		Status: database.StatusCreated,
	}))

	re := NewReextractor(f.db.Ledger, f.db.Sources, nil, testLogger())
	summary, err := re.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Extracted)
}

func TestReextractor_BrokenPatternCountsError(t *testing.T) {
	src := bankSource()
	src.AmountRegex = `([`
	f := newFixture(t, testConfig(), src)
	ctx := context.Background()
	f.srv.AddMessage("m1", "alert", "alerts@bank.com", fixedNow, "Rs. 1.00 debited to X")
	require.Empty(t, f.ingestor.IngestSource(ctx, f.source.ID, 2).Error)

	re := NewReextractor(f.db.Ledger, f.db.Sources, nil, testLogger())
	summary, err := re.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, database.StatusCreated, f.entry(t, "m1").Status)
}
