package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"finance-ledger/internal/workers"
)

// SourceIngestor runs the ingestion pipeline for one source
type SourceIngestor interface {
	IngestSource(ctx context.Context, sourceID int64, days int) *workers.SourceResult
}

// Reextractor re-runs extraction over stored entries
type Reextractor interface {
	Run(ctx context.Context, ledgerID *int64) (*workers.ReextractSummary, error)
}

// IngestHandler handles manual ingestion and re-extraction triggers
type IngestHandler struct {
	ingestor    SourceIngestor
	reextractor Reextractor
	runTimeout  time.Duration
	logger      *slog.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestor SourceIngestor, reextractor Reextractor, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, reextractor: reextractor, logger: logger}
}

// SetRunTimeout bounds synchronous runs. The response write deadline is
// pushed past it so a long run still delivers its result.
func (h *IngestHandler) SetRunTimeout(d time.Duration) {
	h.runTimeout = d
}

// writeGrace is how long the response may take to write once a run ends
const writeGrace = 10 * time.Second

// runContext derives the context for a synchronous run and extends the
// connection's write deadline to cover it
func (h *IngestHandler) runContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc) {
	if h.runTimeout <= 0 {
		return r.Context(), func() {}
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(h.runTimeout + writeGrace)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Failed to extend write deadline", "error", err)
	}
	return context.WithTimeout(r.Context(), h.runTimeout)
}

// IngestRequest is the body of POST /api/ingest
type IngestRequest struct {
	SourceID int64 `json:"source_id"`
	Days     int   `json:"days,omitempty"`
}

// Ingest handles POST /api/ingest. The run is synchronous and bound to the
// request context.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SourceID <= 0 {
		http.Error(w, "source_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if req.Days < 0 {
		http.Error(w, "days must not be negative", http.StatusBadRequest)
		return
	}

	h.logger.Info("Manual ingestion requested", "source_id", req.SourceID, "days", req.Days)
	ctx, cancel := h.runContext(w, r)
	defer cancel()
	res := h.ingestor.IngestSource(ctx, req.SourceID, req.Days)

	status := http.StatusOK
	switch {
	case res.NotFound:
		status = http.StatusNotFound
	case res.Locked:
		status = http.StatusConflict
	case res.Error != "":
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// ExtractRequest is the body of POST /api/extract
type ExtractRequest struct {
	LedgerID *int64 `json:"ledger_id,omitempty"`
}

// Extract handles POST /api/extract. An empty body re-extracts every
// CREATED entry.
func (h *IngestHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.LedgerID != nil && *req.LedgerID <= 0 {
		http.Error(w, "ledger_id must be a positive integer", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.runContext(w, r)
	defer cancel()
	summary, err := h.reextractor.Run(ctx, req.LedgerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Ledger entry not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Re-extraction failed", "error", err)
		http.Error(w, "Re-extraction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
