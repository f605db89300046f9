package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finance-ledger/internal/database"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// LedgerHandler handles ledger requests
type LedgerHandler struct {
	db     *database.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(db *database.DB, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{db: db, logger: logger, now: time.Now}
}

// parseLedgerFilter reads start, end (inclusive days), status, user_id,
// source_id and limit. Without dates the current month is listed; without
// status the visible statuses are.
func (h *LedgerHandler) parseLedgerFilter(r *http.Request) (database.LedgerFilter, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	f := database.LedgerFilter{
		Start:    time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		Statuses: database.VisibleStatuses,
	}
	f.End = f.Start.AddDate(0, 1, 0)

	if raw := q.Get("start"); raw != "" {
		start, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, errors.New("start must be YYYY-MM-DD")
		}
		f.Start = start
	}
	if raw := q.Get("end"); raw != "" {
		end, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, errors.New("end must be YYYY-MM-DD")
		}
		f.End = end.AddDate(0, 0, 1)
	}
	if !f.End.After(f.Start) {
		return f, errors.New("end must not be before start")
	}

	if raw := q.Get("status"); raw != "" {
		if raw == "all" {
			f.Statuses = nil
		} else {
			f.Statuses = nil
			for _, s := range strings.Split(raw, ",") {
				s = strings.ToUpper(strings.TrimSpace(s))
				if !database.ValidLedgerStatus(s) {
					return f, errors.New("unknown status " + s)
				}
				f.Statuses = append(f.Statuses, s)
			}
		}
	}

	for _, p := range []struct {
		name string
		dest **int64
	}{{"user_id", &f.UserID}, {"source_id", &f.SourceID}} {
		if raw := q.Get(p.name); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return f, errors.New("invalid " + p.name)
			}
			*p.dest = &id
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = limit
	}
	return f, nil
}

// ListLedger handles GET /api/ledger
func (h *LedgerHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseLedgerFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.db.Ledger.List(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to list ledger", "error", err)
		http.Error(w, "Failed to list ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []database.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) lookup(w http.ResponseWriter, r *http.Request) (*database.LedgerEntry, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid ledger ID", http.StatusBadRequest)
		return nil, false
	}
	entry, err := h.db.Ledger.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Ledger entry not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("Failed to get ledger entry", "ledger_id", id, "error", err)
		http.Error(w, "Failed to get ledger entry", http.StatusInternalServerError)
		return nil, false
	}
	return entry, true
}

// GetLedgerEntry handles GET /api/ledger/{id}; the body is left out
func (h *LedgerHandler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entry.Body = ""
	writeJSON(w, http.StatusOK, entry)
}

// GetLedgerBody handles GET /api/ledger/{id}/body
func (h *LedgerHandler) GetLedgerBody(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(entry.Body))
}

// UpdateLedgerRequest is the body of PATCH /api/ledger/{id}
type UpdateLedgerRequest struct {
	Status     *string `json:"status,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
}

// UpdateLedgerEntry handles PATCH /api/ledger/{id}
func (h *LedgerHandler) UpdateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid ledger ID", http.StatusBadRequest)
		return
	}

	var req UpdateLedgerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Status == nil && req.CategoryID == nil {
		http.Error(w, "status or category_id is required", http.StatusBadRequest)
		return
	}
	if req.Status != nil {
		upper := strings.ToUpper(*req.Status)
		if !database.ValidLedgerStatus(upper) {
			http.Error(w, "unknown status "+*req.Status, http.StatusBadRequest)
			return
		}
		req.Status = &upper
	}
	if req.CategoryID != nil {
		if _, err := h.db.Categories.GetByID(r.Context(), *req.CategoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "Category not found", http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to check category", http.StatusInternalServerError)
			return
		}
	}

	err = h.db.Ledger.Update(r.Context(), id, database.LedgerUpdate{Status: req.Status, CategoryID: req.CategoryID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Ledger entry not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update ledger entry", "ledger_id", id, "error", err)
		http.Error(w, "Failed to update ledger entry", http.StatusInternalServerError)
		return
	}

	h.GetLedgerEntry(w, r)
}

// DeleteLedgerEntry handles DELETE /api/ledger/{id}
func (h *LedgerHandler) DeleteLedgerEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid ledger ID", http.StatusBadRequest)
		return
	}

	if err := h.db.Ledger.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Ledger entry not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to delete ledger entry", "ledger_id", id, "error", err)
		http.Error(w, "Failed to delete ledger entry", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ManualEntryRequest is the body of POST /api/manual
type ManualEntryRequest struct {
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Payee      string          `json:"payee"`
	Type       string          `json:"type"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Date       *time.Time      `json:"date,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// CreateManualEntry handles POST /api/manual
func (h *LedgerHandler) CreateManualEntry(w http.ResponseWriter, r *http.Request) {
	var req ManualEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = database.TransactionDebit
	}
	req.Type = strings.ToUpper(req.Type)
	if !database.ValidTransactionType(req.Type) {
		http.Error(w, "type must be DEBIT or CREDIT", http.StatusBadRequest)
		return
	}
	if _, err := h.db.Users.GetByID(r.Context(), req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to check user", http.StatusInternalServerError)
		return
	}
	if req.CategoryID != nil {
		if _, err := h.db.Categories.GetByID(r.Context(), *req.CategoryID); err != nil {
			http.Error(w, "Category not found", http.StatusBadRequest)
			return
		}
	}

	date := h.now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	entry := &database.LedgerEntry{
		Date:                   date,
		UserID:                 req.UserID,
		EmailSubject:           "Manual entry",
		Body:                   req.Note,
		AmountExtract:          decimal.NewNullDecimal(req.Amount),
		TransactionTypeExtract: req.Type,
		CategoryID:             req.CategoryID,
		Status:                 database.StatusManual,
	}
	if payee := strings.TrimSpace(req.Payee); payee != "" {
		entry.PayeeExtract = &payee
	}

	if err := h.db.Ledger.Create(r.Context(), entry); err != nil {
		h.logger.Error("Failed to create manual entry", "user_id", req.UserID, "error", err)
		http.Error(w, "Failed to create manual entry", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}
