package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports storage health
type HealthChecker interface {
	IsHealthy(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Message  string `json:"message,omitempty"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.IsHealthy(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: "error",
			Message:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok"})
}
