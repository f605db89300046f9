package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"finance-ledger/internal/database"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *database.DB {
	tmpfile, err := os.CreateTemp("", "handlers_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	db, err := database.Open(database.DriverSQLite, tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return db
}

func teardownTestDB(db *database.DB) {
	db.Close()
}

func insertTestUser(t *testing.T, db *database.DB, email string) *database.User {
	t.Helper()
	u := &database.User{Email: email, Name: "Test", AccessToken: "token", RefreshToken: "refresh"}
	require.NoError(t, db.Users.UpsertByEmail(context.Background(), u))
	return u
}

func insertTestSource(t *testing.T, db *database.DB, src database.Source) *database.Source {
	t.Helper()
	require.NoError(t, db.Sources.Create(context.Background(), &src))
	return &src
}

// do routes a single request through a chi router so URL parameters resolve
func do(t *testing.T, method, pattern, path, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}
