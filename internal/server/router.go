package server

import (
	"log/slog"
	"net/http"

	"finance-ledger/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds the HTTP handlers mounted under /api. Auth and Admin may be
// nil when OAuth or the scheduler are not configured; their routes are
// skipped.
type Handlers struct {
	Health     *handlers.HealthHandler
	Categories *handlers.CategoryHandler
	Sources    *handlers.SourceHandler
	Ledger     *handlers.LedgerHandler
	Ingest     *handlers.IngestHandler
	Auth       *handlers.AuthHandler
	Admin      *handlers.AdminHandler
}

// RouterConfig controls admin authentication
type RouterConfig struct {
	AdminAPIKey      string
	DisableAdminAuth bool
}

// NewRouter builds the chi router with the middleware stack and all API routes
func NewRouter(h Handlers, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(SecurityMiddleware)

	RegisterRoutes(r, h, cfg, logger)
	return r
}

// RegisterRoutes registers all routes with a chi router
func RegisterRoutes(r chi.Router, h Handlers, cfg RouterConfig, logger *slog.Logger) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HealthCheck)

		r.Get("/categories", h.Categories.ListCategories)
		r.Post("/categories", h.Categories.CreateCategory)

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", h.Sources.ListSources)
			r.Post("/", h.Sources.CreateSource)
			r.Get("/{id}", h.Sources.GetSource)
			r.Put("/{id}", h.Sources.UpdateSource)
			r.Patch("/{id}/status", h.Sources.SetSourceStatus)
			r.Post("/{id}/transactions", h.Sources.AddTransaction)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.Ledger.ListLedger)
			r.Get("/{id}", h.Ledger.GetLedgerEntry)
			r.Patch("/{id}", h.Ledger.UpdateLedgerEntry)
			r.Delete("/{id}", h.Ledger.DeleteLedgerEntry)
			r.Get("/{id}/body", h.Ledger.GetLedgerBody)
		})
		r.Post("/manual", h.Ledger.CreateManualEntry)

		r.Post("/ingest", h.Ingest.Ingest)
		r.Post("/extract", h.Ingest.Extract)

		if h.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Get("/url", h.Auth.AuthURL)
				r.Post("/token", h.Auth.ExchangeToken)
				r.Post("/refresh", h.Auth.RefreshToken)
			})
		}

		if h.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				if !cfg.DisableAdminAuth {
					r.Use(AuthMiddleware(cfg.AdminAPIKey, logger))
				}
				r.Get("/status", h.Admin.GetStatus)
				r.Post("/pause", h.Admin.Pause)
				r.Post("/resume", h.Admin.Resume)
				r.Post("/run", h.Admin.RunNow)
			})
		}
	})
}
