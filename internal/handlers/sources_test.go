package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"finance-ledger/internal/database"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSource(t *testing.T) {
	db := setupTestDB(t)
	defer teardownTestDB(db)
	user := insertTestUser(t, db, "owner@example.com")
	handler := NewSourceHandler(db, testLogger())

	t.Run("BuildsQueryFromParts", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"user_id": %d,
			"source_name": "  HDFC Alerts ",
			"from_email": "alerts@hdfc.com",
			"subject": "debited",
			"amount_regex": "/Rs\\. ([\\d,]+\\.\\d{2})/"
		}`, user.ID)
		w := do(t, "POST", "/api/sources", "/api/sources", body, handler.CreateSource)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		src := decode[database.Source](t, w)
		assert.NotZero(t, src.ID)
		assert.Equal(t, "HDFC Alerts", src.SourceName)
		assert.Equal(t, `subject:"debited" from:alerts@hdfc.com`, src.Query)
		assert.Equal(t, database.SourceActive, src.Status)
		assert.Equal(t, database.SourceTypeMail, src.SourceType)
		assert.Equal(t, database.TransactionDebit, src.DefaultType)
	})

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{`},
		{"missing name", fmt.Sprintf(`{"user_id": %d, "query": "from:a@b.com"}`, user.ID)},
		{"missing user", `{"source_name": "x", "query": "from:a@b.com"}`},
		{"unknown user", `{"user_id": 999, "source_name": "x", "query": "from:a@b.com"}`},
		{"unsupported type", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "source_type": "SMS"}`, user.ID)},
		{"bad default type", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "default_type": "REFUND"}`, user.ID)},
		{"negative priority", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "rule_priority": -1}`, user.ID)},
		{"no query", fmt.Sprintf(`{"user_id": %d, "source_name": "x"}`, user.ID)},
		{"broken amount pattern", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "amount_regex": "([0-9"}`, user.ID)},
		{"broken payee pattern", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "payee_regex": "*"}`, user.ID)},
		{"unknown category", fmt.Sprintf(`{"user_id": %d, "source_name": "x", "query": "q", "default_category_id": 77}`, user.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, "POST", "/api/sources", "/api/sources", tt.body, handler.CreateSource)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	sources, err := db.Sources.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestListSources(t *testing.T) {
	db := setupTestDB(t)
	defer teardownTestDB(db)
	handler := NewSourceHandler(db, testLogger())

	w := do(t, "GET", "/api/sources", "/api/sources", "", handler.ListSources)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	a := insertTestUser(t, db, "a@example.com")
	b := insertTestUser(t, db, "b@example.com")
	insertTestSource(t, db, database.Source{UserID: a.ID, SourceName: "A", Query: "from:a"})
	insertTestSource(t, db, database.Source{UserID: b.ID, SourceName: "B", Query: "from:b"})

	w = do(t, "GET", "/api/sources", fmt.Sprintf("/api/sources?user_id=%d", b.ID), "", handler.ListSources)
	require.Equal(t, http.StatusOK, w.Code)
	sources := decode[[]database.Source](t, w)
	require.Len(t, sources, 1)
	assert.Equal(t, "B", sources[0].SourceName)

	w = do(t, "GET", "/api/sources", "/api/sources?user_id=x", "", handler.ListSources)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateSource(t *testing.T) {
	db := setupTestDB(t)
	defer teardownTestDB(db)
	user := insertTestUser(t, db, "owner@example.com")
	src := insertTestSource(t, db, database.Source{
		UserID: user.ID, SourceName: "Card", Query: "from:card", DefaultType: database.TransactionCredit, RulePriority: 3,
	})
	require.NoError(t, db.Sources.SetStatus(context.Background(), src.ID, database.SourceInactive))
	handler := NewSourceHandler(db, testLogger())
	path := fmt.Sprintf("/api/sources/%d", src.ID)

	w := do(t, "PUT", "/api/sources/{id}", path,
		`{"source_name": "Card v2", "query": "from:card", "amount_regex": "INR ([0-9.]+)", "user_id": 999}`,
		handler.UpdateSource)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := db.Sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, "Card v2", stored.SourceName)
	assert.Equal(t, "INR ([0-9.]+)", stored.AmountRegex)
	assert.Equal(t, user.ID, stored.UserID)
	assert.Equal(t, database.TransactionCredit, stored.DefaultType)
	assert.Equal(t, 3, stored.RulePriority)
	assert.Equal(t, database.SourceInactive, stored.Status)

	w = do(t, "PUT", "/api/sources/{id}", path, `{"source_name": "Card", "query": "q", "amount_regex": "("}`, handler.UpdateSource)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, "PUT", "/api/sources/{id}", "/api/sources/404", `{"source_name": "x", "query": "q"}`, handler.UpdateSource)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetSourceStatus(t *testing.T) {
	db := setupTestDB(t)
	defer teardownTestDB(db)
	user := insertTestUser(t, db, "owner@example.com")
	src := insertTestSource(t, db, database.Source{UserID: user.ID, SourceName: "Card", Query: "from:card"})
	handler := NewSourceHandler(db, testLogger())
	path := fmt.Sprintf("/api/sources/%d/status", src.ID)

	w := do(t, "PATCH", "/api/sources/{id}/status", path, `{"status": "INACTIVE"}`, handler.SetSourceStatus)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := db.Sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SourceInactive, stored.Status)

	w = do(t, "PATCH", "/api/sources/{id}/status", path, `{"status": "PAUSED"}`, handler.SetSourceStatus)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, "PATCH", "/api/sources/{id}/status", "/api/sources/404/status", `{"status": "ACTIVE"}`, handler.SetSourceStatus)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddTransaction(t *testing.T) {
	db := setupTestDB(t)
	defer teardownTestDB(db)
	user := insertTestUser(t, db, "owner@example.com")
	src := insertTestSource(t, db, database.Source{
		UserID:      user.ID,
		SourceName:  "Bank SMS",
		Query:       "from:bank",
		AmountRegex: `Rs\. ([\d,]+\.\d{2})`,
		PayeeRegex:  `[A-Z]{3,}$`,
	})
	handler := NewSourceHandler(db, testLogger())
	path := fmt.Sprintf("/api/sources/%d/transactions", src.ID)

	t.Run("Extracted", func(t *testing.T) {
		w := do(t, "POST", "/api/sources/{id}/transactions", path,
			`{"text": "Rs. 2,500.00 spent at AMAZON", "date": "2024-03-01T10:00:00Z"}`, handler.AddTransaction)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[AddTransactionResponse](t, w)
		require.NotNil(t, resp.Results.Amount)
		assert.Equal(t, "2,500.00", *resp.Results.Amount)
		require.NotNil(t, resp.Results.Payee)
		assert.Equal(t, "AMAZON", *resp.Results.Payee)

		entry, err := db.Ledger.GetByID(context.Background(), resp.Entry.ID)
		require.NoError(t, err)
		assert.Equal(t, database.StatusExtracted, entry.Status)
		assert.True(t, entry.AmountExtract.Decimal.Equal(decimal.RequireFromString("2500")))
		assert.Nil(t, entry.EmailID)
		assert.Equal(t, "Bank SMS", entry.EmailSubject)
		assert.Equal(t, "Rs. 2,500.00 spent at AMAZON", entry.Body)
	})

	t.Run("Unmatched", func(t *testing.T) {
		w := do(t, "POST", "/api/sources/{id}/transactions", path, `{"text": "hello there"}`, handler.AddTransaction)
		require.Equal(t, http.StatusCreated, w.Code)

		resp := decode[AddTransactionResponse](t, w)
		assert.Nil(t, resp.Results.Amount)
		assert.Equal(t, database.StatusCreated, resp.Entry.Status)
		assert.False(t, resp.Entry.AmountExtract.Valid)
	})

	t.Run("Validation", func(t *testing.T) {
		w := do(t, "POST", "/api/sources/{id}/transactions", path, `{"text": "  "}`, handler.AddTransaction)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, "POST", "/api/sources/{id}/transactions", "/api/sources/404/transactions", `{"text": "x"}`, handler.AddTransaction)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("BrokenStoredPattern", func(t *testing.T) {
		broken := insertTestSource(t, db, database.Source{UserID: user.ID, SourceName: "Broken", Query: "q", AmountRegex: "(["})
		w := do(t, "POST", "/api/sources/{id}/transactions", fmt.Sprintf("/api/sources/%d/transactions", broken.ID),
			`{"text": "Rs. 1.00"}`, handler.AddTransaction)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
