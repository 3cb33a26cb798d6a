package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vetting/internal/platform/metrics"
	"vetting/internal/platform/middleware"
	adminmw "vetting/pkg/platform/middleware/admin"
	"vetting/pkg/platform/middleware/auth"
	"vetting/pkg/platform/middleware/metadata"
)

// Revocations checks and records revoked access tokens.
type Revocations interface {
	auth.TokenRevocationChecker
	TokenRevoker
}

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Handler   *Handler
	Validator auth.JWTValidator
	// Revocations may be nil, which disables revocation checks and the
	// admin revocation route.
	Revocations Revocations
	AdminToken  string
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// NewRouter builds the full HTTP surface: probes and metrics at the root,
// the authenticated API under /v1 and operator routes under /admin.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(metadata.ClientMetadata)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	var checker auth.TokenRevocationChecker
	if cfg.Revocations != nil {
		checker = cfg.Revocations
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, checker, cfg.Logger))
		cfg.Handler.Register(r)
	})

	if cfg.AdminToken != "" && cfg.Revocations != nil {
		admin := &adminHandler{revoker: cfg.Revocations, logger: cfg.Logger}
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(cfg.AdminToken, cfg.Logger))
			admin.register(r)
		})
	}
	return r
}
