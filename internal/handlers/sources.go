package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finance-ledger/internal/database"
	"finance-ledger/internal/extract"
)

// SourceHandler handles source registry requests
type SourceHandler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewSourceHandler creates a new source handler
func NewSourceHandler(db *database.DB, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{db: db, logger: logger}
}

// validateSource checks a source before it is stored. Patterns are compiled
// here so a broken pattern never reaches ingestion.
func (h *SourceHandler) validateSource(ctx context.Context, src *database.Source) error {
	src.SourceName = strings.TrimSpace(src.SourceName)
	if src.SourceName == "" {
		return fmt.Errorf("source_name is required")
	}
	if src.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if _, err := h.db.Users.GetByID(ctx, src.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %d not found", src.UserID)
		}
		return err
	}

	if src.SourceType != "" && src.SourceType != database.SourceTypeMail {
		return fmt.Errorf("unsupported source_type %q", src.SourceType)
	}
	if src.DefaultType != "" && !database.ValidTransactionType(src.DefaultType) {
		return fmt.Errorf("default_type must be %s or %s", database.TransactionDebit, database.TransactionCredit)
	}
	if src.RulePriority < 0 {
		return fmt.Errorf("rule_priority must be non-negative")
	}

	src.Query = strings.TrimSpace(src.Query)
	if src.Query == "" {
		src.Query = database.BuildSourceQuery(src.Subject, src.Label, src.FromEmail)
	}
	if src.Query == "" {
		return fmt.Errorf("query or one of subject, label, from_email is required")
	}

	if _, err := extract.CompileRules(src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex, src.PayeeRegexBackup); err != nil {
		return err
	}

	if src.DefaultCategoryID != nil {
		if _, err := h.db.Categories.GetByID(ctx, *src.DefaultCategoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("category %d not found", *src.DefaultCategoryID)
			}
			return err
		}
	}
	return nil
}

// ListSources handles GET /api/sources[?user_id=]
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid user_id", http.StatusBadRequest)
			return
		}
		userID = &id
	}

	sources, err := h.db.Sources.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list sources", "error", err)
		http.Error(w, "Failed to list sources", http.StatusInternalServerError)
		return
	}
	if sources == nil {
		sources = []database.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// CreateSource handles POST /api/sources
func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var src database.Source
	if err := decodeJSON(w, r, &src); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	src.Status = ""
	if err := h.validateSource(r.Context(), &src); err != nil {
		h.logger.Warn("Source validation failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.Sources.Create(r.Context(), &src); err != nil {
		h.logger.Error("Failed to create source", "source_name", src.SourceName, "error", err)
		http.Error(w, "Failed to create source", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Source created", "source_id", src.ID, "query", src.Query)
	writeJSON(w, http.StatusCreated, src)
}

// GetSource handles GET /api/sources/{id}
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	src, err := h.db.Sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get source", "source_id", id, "error", err)
		http.Error(w, "Failed to get source", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// UpdateSource handles PUT /api/sources/{id}. The owner and status are kept.
func (h *SourceHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	existing, err := h.db.Sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get source", "source_id", id, "error", err)
		http.Error(w, "Failed to get source", http.StatusInternalServerError)
		return
	}

	var src database.Source
	if err := decodeJSON(w, r, &src); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	src.UserID = existing.UserID
	src.SourceType = existing.SourceType
	if src.DefaultType == "" {
		src.DefaultType = existing.DefaultType
	}
	if src.RulePriority == 0 {
		src.RulePriority = existing.RulePriority
	}
	if err := h.validateSource(r.Context(), &src); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.Sources.Update(r.Context(), id, &src); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update source", "source_id", id, "error", err)
		http.Error(w, "Failed to update source", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Source updated", "source_id", id)
	writeJSON(w, http.StatusOK, src)
}

// SourceStatusRequest is the body of PATCH /api/sources/{id}/status
type SourceStatusRequest struct {
	Status string `json:"status"`
}

// SetSourceStatus handles PATCH /api/sources/{id}/status
func (h *SourceHandler) SetSourceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	var req SourceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Status != database.SourceActive && req.Status != database.SourceInactive {
		http.Error(w, "status must be ACTIVE or INACTIVE", http.StatusBadRequest)
		return
	}

	if err := h.db.Sources.SetStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to set source status", "source_id", id, "error", err)
		http.Error(w, "Failed to set source status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// AddTransactionRequest is the body of POST /api/sources/{id}/transactions
type AddTransactionRequest struct {
	Text string     `json:"text"`
	Date *time.Time `json:"date,omitempty"`
}

// AddTransactionResponse echoes what the source rules extracted
type AddTransactionResponse struct {
	Results extract.Result        `json:"results"`
	Entry   *database.LedgerEntry `json:"entry"`
}

// AddTransaction handles POST /api/sources/{id}/transactions: pasted text is
// run through the source rules and stored as a ledger entry without an email ID.
func (h *SourceHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	var req AddTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	src, err := h.db.Sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get source", "source_id", id, "error", err)
		http.Error(w, "Failed to get source", http.StatusInternalServerError)
		return
	}

	rules, err := extract.CompileRules(src.AmountRegex, src.AmountRegexBackup, src.PayeeRegex, src.PayeeRegexBackup)
	if err != nil {
		http.Error(w, fmt.Sprintf("Source patterns are invalid: %v", err), http.StatusUnprocessableEntity)
		return
	}
	out := rules.Evaluate(req.Text)

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	sourceID := src.ID
	entry := &database.LedgerEntry{
		Date:                   date,
		UserID:                 src.UserID,
		SourceID:               &sourceID,
		EmailSubject:           src.SourceName,
		Body:                   req.Text,
		PayeeExtract:           out.Result.Payee,
		TransactionTypeExtract: src.DefaultType,
		CategoryID:             src.DefaultCategoryID,
		Status:                 database.StatusCreated,
	}
	if out.HasAmount && out.ParseErr == nil {
		entry.AmountExtract.Decimal = out.Value
		entry.AmountExtract.Valid = true
		entry.Status = database.StatusExtracted
	}

	if err := h.db.Ledger.Create(r.Context(), entry); err != nil {
		h.logger.Error("Failed to store pasted transaction", "source_id", id, "error", err)
		http.Error(w, "Failed to store transaction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, AddTransactionResponse{Results: out.Result, Entry: entry})
}
