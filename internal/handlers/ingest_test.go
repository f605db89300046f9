package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"finance-ledger/internal/workers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIngestor struct {
	result   workers.SourceResult
	sourceID int64
	days     int
}

func (m *mockIngestor) IngestSource(ctx context.Context, sourceID int64, days int) *workers.SourceResult {
	m.sourceID = sourceID
	m.days = days
	res := m.result
	res.SourceID = sourceID
	return &res
}

type mockReextractor struct {
	ledgerID *int64
	called   bool
	err      error
}

func (m *mockReextractor) Run(ctx context.Context, ledgerID *int64) (*workers.ReextractSummary, error) {
	m.called = true
	m.ledgerID = ledgerID
	if m.err != nil {
		return nil, m.err
	}
	return &workers.ReextractSummary{Scanned: 3, Extracted: 2, Unmatched: 1}, nil
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		result   workers.SourceResult
		expected int
	}{
		{"success", `{"source_id": 4, "days": 7}`, workers.SourceResult{Ingested: 2}, http.StatusOK},
		{"default days", `{"source_id": 4}`, workers.SourceResult{}, http.StatusOK},
		{"source not found", `{"source_id": 4}`, workers.SourceResult{NotFound: true, Error: "source not found"}, http.StatusNotFound},
		{"locked", `{"source_id": 4}`, workers.SourceResult{Locked: true}, http.StatusConflict},
		{"mailbox failure", `{"source_id": 4}`, workers.SourceResult{Error: "failed to refresh token"}, http.StatusBadGateway},
		{"missing source", `{"days": 1}`, workers.SourceResult{}, http.StatusBadRequest},
		{"negative source", `{"source_id": -1}`, workers.SourceResult{}, http.StatusBadRequest},
		{"negative days", `{"source_id": 4, "days": -2}`, workers.SourceResult{}, http.StatusBadRequest},
		{"invalid JSON", `{"source_id": "four"}`, workers.SourceResult{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor := &mockIngestor{result: tt.result}
			handler := NewIngestHandler(ingestor, &mockReextractor{}, testLogger())

			w := do(t, "POST", "/api/ingest", "/api/ingest", tt.body, handler.Ingest)
			assert.Equal(t, tt.expected, w.Code, w.Body.String())

			if tt.expected == http.StatusBadRequest {
				assert.Zero(t, ingestor.sourceID)
				return
			}
			assert.Equal(t, int64(4), ingestor.sourceID)
			res := decode[workers.SourceResult](t, w)
			assert.Equal(t, int64(4), res.SourceID)
			assert.Equal(t, tt.result.Ingested, res.Ingested)
		})
	}
}

func TestIngest_PassesDays(t *testing.T) {
	ingestor := &mockIngestor{}
	handler := NewIngestHandler(ingestor, &mockReextractor{}, testLogger())

	w := do(t, "POST", "/api/ingest", "/api/ingest", `{"source_id": 9, "days": 30}`, handler.Ingest)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, ingestor.days)
}

func TestExtract(t *testing.T) {
	t.Run("EmptyBodyExtractsAll", func(t *testing.T) {
		re := &mockReextractor{}
		handler := NewIngestHandler(&mockIngestor{}, re, testLogger())

		w := do(t, "POST", "/api/extract", "/api/extract", "", handler.Extract)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, re.called)
		assert.Nil(t, re.ledgerID)

		summary := decode[workers.ReextractSummary](t, w)
		assert.Equal(t, 3, summary.Scanned)
		assert.Equal(t, 2, summary.Extracted)
	})

	t.Run("SingleEntry", func(t *testing.T) {
		re := &mockReextractor{}
		handler := NewIngestHandler(&mockIngestor{}, re, testLogger())

		w := do(t, "POST", "/api/extract", "/api/extract", `{"ledger_id": 12}`, handler.Extract)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, re.ledgerID)
		assert.Equal(t, int64(12), *re.ledgerID)
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name     string
			body     string
			err      error
			expected int
		}{
			{"invalid ledger id", `{"ledger_id": 0}`, nil, http.StatusBadRequest},
			{"invalid JSON", `{"ledger_id":`, nil, http.StatusBadRequest},
			{"missing entry", `{"ledger_id": 5}`, sql.ErrNoRows, http.StatusNotFound},
			{"store failure", `{}`, errors.New("disk full"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				handler := NewIngestHandler(&mockIngestor{}, &mockReextractor{err: tt.err}, testLogger())
				w := do(t, "POST", "/api/extract", "/api/extract", tt.body, handler.Extract)
				assert.Equal(t, tt.expected, w.Code)
			})
		}
	})
}

type slowIngestor struct {
	delay       time.Duration
	hadDeadline atomic.Bool
}

func (s *slowIngestor) IngestSource(ctx context.Context, sourceID int64, days int) *workers.SourceResult {
	_, ok := ctx.Deadline()
	s.hadDeadline.Store(ok)
	time.Sleep(s.delay)
	return &workers.SourceResult{SourceID: sourceID, Ingested: 3}
}

func TestIngest_OutlivesServerWriteTimeout(t *testing.T) {
	ingestor := &slowIngestor{delay: 300 * time.Millisecond}
	handler := NewIngestHandler(ingestor, &mockReextractor{}, testLogger())
	handler.SetRunTimeout(2 * time.Second)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(handler.Ingest))
	srv.Config.WriteTimeout = 150 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"source_id": 4}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res workers.SourceResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, int64(4), res.SourceID)
	assert.Equal(t, 3, res.Ingested)
	assert.True(t, ingestor.hadDeadline.Load())
}

func TestIngest_NoRunTimeoutKeepsRequestContext(t *testing.T) {
	ingestor := &slowIngestor{}
	handler := NewIngestHandler(ingestor, &mockReextractor{}, testLogger())

	w := do(t, "POST", "/api/ingest", "/api/ingest", `{"source_id": 4}`, handler.Ingest)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ingestor.hadDeadline.Load())
}
