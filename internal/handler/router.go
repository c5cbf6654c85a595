package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const readinessTimeout = 2 * time.Second

// NewRouter creates the HTTP router with all routes and middleware.
// store may be nil; when it implements port.Pinger it backs /readyz.
func NewRouter(
	registrations *service.RegistrationService,
	sessions *service.SessionService,
	campaigns *service.CampaignService,
	repairs *service.RepairService,
	store port.KVStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store))
	r.Get("/readyz", readyzHandler(store, logger))
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Registration (public)
		// =============================================
		r.Post("/registrations/company", startCompanyRegistrationHandler(registrations, logger))
		r.Post("/registrations/company/confirm", confirmCompanyRegistrationHandler(registrations, logger))
		r.Delete("/registrations/company", cancelCompanyRegistrationHandler(registrations, logger))
		r.Post("/registrations/influencer", registerInfluencerHandler(registrations, logger))

		// =============================================
		// 2. Login (public)
		// =============================================
		r.Post("/auth/login", loginHandler(sessions, logger))

		// =============================================
		// 3. Authenticated routes
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(sessions, logger))

			r.Post("/auth/logout", logoutHandler(sessions, logger))
			r.Get("/session", currentSessionHandler())
			r.Get("/me/view", roleViewHandler(sessions, logger))

			r.Get("/campaigns", listCampaignsHandler(sessions, logger))
			r.Post("/campaigns", createCampaignHandler(campaigns, logger))
			r.Post("/campaigns/{id}/requests", applyToCampaignHandler(campaigns, logger))
			r.Put("/requests/{id}/status", updateRequestStatusHandler(campaigns, logger))

			// =============================================
			// 4. Admin
			// =============================================
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(domain.UserTypeAdmin))
				r.Get("/diagnostics", diagnosticsHandler(repairs, metrics, logger))
				r.Post("/repair", repairHandler(repairs, logger))
			})
		})
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(store port.KVStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := []domain.ServiceHealth{
			{Name: "influmatch-api", Status: "healthy", LastChecked: time.Now().Format(time.RFC3339)},
		}
		if store != nil {
			services = append(services, checkStore(r.Context(), store))
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store port.KVStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		health := checkStore(r.Context(), store)
		if health.Status != "healthy" {
			logger.Warn("readiness check failed", zap.String("error", health.Error))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": health.Error})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// checkStore pings remote backends and lists keys on local ones.
func checkStore(ctx context.Context, store port.KVStore) domain.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	start := time.Now()
	var err error
	if p, ok := store.(port.Pinger); ok {
		err = p.Ping(ctx)
	} else {
		_, err = store.Keys(ctx)
	}

	h := domain.ServiceHealth{
		Name:        "kvstore",
		Status:      "healthy",
		LatencyMs:   time.Since(start).Milliseconds(),
		LastChecked: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
	}
	return h
}
