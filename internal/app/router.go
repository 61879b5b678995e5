package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/trustledger/internal/audit/http"
	"github.com/odyssey-erp/trustledger/internal/documents"
	"github.com/odyssey-erp/trustledger/internal/observability"
	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/signers"
	"github.com/odyssey-erp/trustledger/internal/verification"
	"github.com/odyssey-erp/trustledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Registry *Registry
	Metrics  *observability.Metrics

	// JobHandler is nil when no Redis is configured.
	JobHandler *jobs.Handler
	// Health reports storage readiness for /healthz; nil means always ready.
	Health func(r *http.Request) error
}

// NewRouter constructs the chi.Router with trustledger defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Health != nil {
			if err := params.Health(r); err != nil {
				logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if reg := params.Registry; reg != nil {
		guard := rbac.Middleware{Roles: reg.Roles, Logger: logger}
		documents.NewHandler(logger, reg.Documents).MountRoutes(r)
		verification.NewHandler(logger, reg.Verification).MountRoutes(r)
		rbac.NewHandler(logger, reg.Roles).MountRoutes(r)
		signers.NewHandler(logger, reg.Signers).MountRoutes(r)
		audithttp.NewHandler(logger, reg.Audit, guard).MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
