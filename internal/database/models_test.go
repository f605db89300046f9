package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	t.Cleanup(func() {
		os.Remove(tmpfile.Name())
	})

	db, err := Open(DriverSQLite, tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func createTestUser(t *testing.T, db *DB, email string) *User {
	t.Helper()
	u := &User{Email: email, Name: "Test User", AccessToken: "access", RefreshToken: "refresh"}
	require.NoError(t, db.Users.UpsertByEmail(context.Background(), u))
	return u
}

func createTestSource(t *testing.T, db *DB, userID int64) *Source {
	t.Helper()
	src := &Source{
		UserID:      userID,
		SourceName:  "Bank Alerts",
		FromEmail:   "alerts@bank.com",
		AmountRegex: `/Rs\. ([\d,]+\.\d{2})/`,
		PayeeRegex:  `[A-Z]+$`,
	}
	require.NoError(t, db.Sources.Create(context.Background(), src))
	return src
}

func strPtr(s string) *string { return &s }

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := querier{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := querier{driver: DriverSQLite}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestBuildSourceQuery(t *testing.T) {
	tests := []struct {
		name                     string
		subject, label, fromAddr string
		want                     string
	}{
		{"all parts", "Debit Alert", "banking", "alerts@bank.com", `subject:"Debit Alert" label:banking from:alerts@bank.com`},
		{"sender only", "", "", "alerts@bank.com", "from:alerts@bank.com"},
		{"nothing", " ", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildSourceQuery(tt.subject, tt.label, tt.fromAddr))
		})
	}
}

func TestUserStore_UpsertKeepsRefreshToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "owner@example.com")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "refresh", u.RefreshToken)

	again := &User{Email: "owner@example.com", Name: "Renamed", AccessToken: "access-2"}
	require.NoError(t, db.Users.UpsertByEmail(ctx, again))

	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Renamed", again.Name)
	assert.Equal(t, "access-2", again.AccessToken)
	assert.Equal(t, "refresh", again.RefreshToken)
}

func TestUserStore_UpdateTokens(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, db.Users.UpdateTokens(ctx, u.ID, "fresh", "id-token", expiry))

	got, err := db.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, "id-token", got.IDToken)
	require.NotNil(t, got.TokenExpiry)
	assert.True(t, expiry.Equal(*got.TokenExpiry))

	// empty id token keeps the stored one
	require.NoError(t, db.Users.UpdateTokens(ctx, u.ID, "fresher", "", expiry))
	got, err = db.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresher", got.AccessToken)
	assert.Equal(t, "id-token", got.IDToken)

	assert.ErrorIs(t, db.Users.UpdateTokens(ctx, 9999, "x", "", expiry), sql.ErrNoRows)
}

func TestSourceStore_CreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "owner@example.com")
	src := createTestSource(t, db, u.ID)

	assert.NotZero(t, src.ID)
	assert.Equal(t, SourceTypeMail, src.SourceType)
	assert.Equal(t, SourceActive, src.Status)
	assert.Equal(t, TransactionDebit, src.DefaultType)
	assert.Equal(t, 1, src.RulePriority)
	assert.Equal(t, "from:alerts@bank.com", src.Query)
	assert.Nil(t, src.DefaultCategoryID)
}

func TestSourceStore_GetWithOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	src := createTestSource(t, db, u.ID)

	gotSrc, owner, err := db.Sources.GetWithOwner(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.SourceName, gotSrc.SourceName)
	assert.Equal(t, u.Email, owner.Email)
	assert.Equal(t, "refresh", owner.RefreshToken)

	_, _, err = db.Sources.GetWithOwner(ctx, 9999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSourceStore_ListActiveMail(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	first := createTestSource(t, db, u.ID)
	second := createTestSource(t, db, u.ID)
	require.NoError(t, db.Sources.SetStatus(ctx, second.ID, SourceInactive))

	active, err := db.Sources.ListActiveMail(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	assert.Error(t, db.Sources.SetStatus(ctx, first.ID, "PAUSED"))
	assert.ErrorIs(t, db.Sources.SetStatus(ctx, 9999, SourceActive), sql.ErrNoRows)
}

func TestSourceStore_Update(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	src := createTestSource(t, db, u.ID)
	before := src.UpdatedAt

	cat := &Category{Name: "Food"}
	require.NoError(t, db.Categories.Create(ctx, cat))

	src.AmountRegexBackup = `\d+\.\d{2}`
	src.DefaultCategoryID = &cat.ID
	require.NoError(t, db.Sources.Update(ctx, src.ID, src))

	assert.Equal(t, `\d+\.\d{2}`, src.AmountRegexBackup)
	require.NotNil(t, src.DefaultCategoryID)
	assert.Equal(t, cat.ID, *src.DefaultCategoryID)
	assert.False(t, src.UpdatedAt.Before(before))
}

func TestLedgerStore_InsertIgnore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	src := createTestSource(t, db, u.ID)

	entry := func() *LedgerEntry {
		return &LedgerEntry{
			Date:         time.Now(),
			UserID:       u.ID,
			SourceID:     &src.ID,
			EmailID:      strPtr("msg-1"),
			EmailSubject: "Debit alert",
			Body:         "Rs. 1,234.50 debited to XYZ",
		}
	}

	first := entry()
	inserted, err := db.Ledger.InsertIgnore(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)
	assert.Equal(t, StatusCreated, first.Status)

	inserted, err = db.Ledger.InsertIgnore(ctx, entry())
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := db.Ledger.CountByEmailID(ctx, u.ID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// plain create surfaces the conflict
	err = db.Ledger.Create(ctx, entry())
	assert.True(t, IsUniqueViolation(err))
}

func TestLedgerStore_NullEmailIDsNeverConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	for i := 0; i < 2; i++ {
		inserted, err := db.Ledger.InsertIgnore(ctx, &LedgerEntry{Date: time.Now(), UserID: u.ID, Status: StatusManual})
		require.NoError(t, err)
		assert.True(t, inserted)
	}
}

func TestLedgerStore_FilterNewEmailIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")

	for _, id := range []string{"a", "c"} {
		_, err := db.Ledger.InsertIgnore(ctx, &LedgerEntry{Date: time.Now(), UserID: u.ID, EmailID: strPtr(id)})
		require.NoError(t, err)
	}
	// same message id in another mailbox does not count
	_, err := db.Ledger.InsertIgnore(ctx, &LedgerEntry{Date: time.Now(), UserID: other.ID, EmailID: strPtr("b")})
	require.NoError(t, err)

	fresh, err := db.Ledger.FilterNewEmailIDs(ctx, u.ID, []string{"a", "b", "c", "d", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, fresh)

	fresh, err = db.Ledger.FilterNewEmailIDs(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestLedgerStore_ListFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	jan := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	rows := []*LedgerEntry{
		{Date: jan, UserID: u.ID, Status: StatusExtracted, Body: "jan"},
		{Date: feb, UserID: u.ID, Status: StatusCreated, Body: "feb"},
		{Date: feb, UserID: u.ID, Status: StatusJunk, Body: "junk"},
	}
	for _, r := range rows {
		require.NoError(t, db.Ledger.Create(ctx, r))
	}

	got, err := db.Ledger.List(ctx, LedgerFilter{
		UserID:   &u.ID,
		Start:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Statuses: VisibleStatuses,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rows[1].ID, got[0].ID)
	assert.Empty(t, got[0].Body, "listings omit bodies")

	all, err := db.Ledger.List(ctx, LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedgerStore_ExtractionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	created := &LedgerEntry{Date: time.Now(), UserID: u.ID, Body: "paid 42.00"}
	require.NoError(t, db.Ledger.Create(ctx, created))
	done := &LedgerEntry{Date: time.Now(), UserID: u.ID, Status: StatusExtracted}
	require.NoError(t, db.Ledger.Create(ctx, done))

	pending, err := db.Ledger.ListForExtraction(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "paid 42.00", pending[0].Body)

	single, err := db.Ledger.ListForExtraction(ctx, &done.ID)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, done.ID, single[0].ID)

	require.NoError(t, db.Ledger.MarkExtracted(ctx, created.ID, decimal.RequireFromString("42.00"), strPtr("SHOP")))

	got, err := db.Ledger.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, got.Status)
	require.True(t, got.AmountExtract.Valid)
	assert.True(t, got.AmountExtract.Decimal.Equal(decimal.NewFromInt(42)))
	require.NotNil(t, got.PayeeExtract)
	assert.Equal(t, "SHOP", *got.PayeeExtract)

	pending, err = db.Ledger.ListForExtraction(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLedgerStore_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "owner@example.com")

	e := &LedgerEntry{Date: time.Now(), UserID: u.ID}
	require.NoError(t, db.Ledger.Create(ctx, e))

	junk := StatusJunk
	require.NoError(t, db.Ledger.Update(ctx, e.ID, LedgerUpdate{Status: &junk}))
	got, err := db.Ledger.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusJunk, got.Status)

	bogus := "LOST"
	assert.Error(t, db.Ledger.Update(ctx, e.ID, LedgerUpdate{Status: &bogus}))

	require.NoError(t, db.Ledger.Delete(ctx, e.ID))
	_, err = db.Ledger.GetByID(ctx, e.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, db.Ledger.Delete(ctx, e.ID), sql.ErrNoRows)
}

func TestCategoryStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Categories.Create(ctx, &Category{Name: "Travel", ColorCode: "#00f"}))
	require.NoError(t, db.Categories.Create(ctx, &Category{Name: "Food"}))

	err := db.Categories.Create(ctx, &Category{Name: "Food"})
	assert.True(t, IsUniqueViolation(err))

	cats, err := db.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
}
