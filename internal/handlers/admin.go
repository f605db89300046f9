package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"finance-ledger/internal/workers"
)

// IngestScheduler is the scheduler surface exposed to administrators
type IngestScheduler interface {
	IsRunning() bool
	IsPaused() bool
	Pause()
	Resume()
	Metrics() workers.MetricsSnapshot
	LastRun() *workers.RunSummary
	RunNow(ctx context.Context) *workers.RunSummary
}

// AdminHandler handles administrative operations
type AdminHandler struct {
	scheduler IngestScheduler
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(scheduler IngestScheduler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{scheduler: scheduler, logger: logger}
}

// SchedulerStatusResponse represents the status of the ingestion scheduler
type SchedulerStatusResponse struct {
	Running bool                    `json:"running"`
	Paused  bool                    `json:"paused"`
	Metrics workers.MetricsSnapshot `json:"metrics"`
	LastRun *workers.RunSummary     `json:"last_run,omitempty"`
	Totals  *workers.RunTotals      `json:"last_run_totals,omitempty"`
}

// GetStatus handles GET /api/admin/status
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := SchedulerStatusResponse{
		Running: h.scheduler.IsRunning(),
		Paused:  h.scheduler.IsPaused(),
		Metrics: h.scheduler.Metrics(),
		LastRun: h.scheduler.LastRun(),
	}
	if status.LastRun != nil {
		totals := status.LastRun.Totals()
		status.Totals = &totals
	}
	writeJSON(w, http.StatusOK, status)
}

// Pause handles POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Pause()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "paused",
		"message": "Ingestion scheduler has been paused",
	})
}

// Resume handles POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Resume()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "resumed",
		"message": "Ingestion scheduler has been resumed",
	})
}

// RunNow handles POST /api/admin/run. The run continues in the background
// after the response; GET /api/admin/status shows its summary.
func (h *AdminHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if summary := h.scheduler.RunNow(ctx); summary == nil {
			h.logger.Info("Admin run skipped, a run is already in progress")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Ingestion run started",
	})
}
