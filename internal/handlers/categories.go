package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"finance-ledger/internal/database"
)

// CategoryHandler handles category requests
type CategoryHandler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(db *database.DB, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{db: db, logger: logger}
}

// ListCategories handles GET /api/categories
func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.Categories.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", "error", err)
		http.Error(w, "Failed to list categories", http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []database.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// CreateCategory handles POST /api/categories
func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c database.Category
	if err := decodeJSON(w, r, &c); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.db.Categories.Create(r.Context(), &c); err != nil {
		if database.IsUniqueViolation(err) {
			http.Error(w, "Category already exists", http.StatusConflict)
			return
		}
		h.logger.Error("Failed to create category", "name", c.Name, "error", err)
		http.Error(w, "Failed to create category", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}
