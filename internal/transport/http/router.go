// Package httptransport assembles the HTTP surface: middleware, probes,
// metrics, the public verification endpoint and the admin-guarded issuer API.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/platform/middleware"
	"certledger/pkg/platform/validation"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Routes groups the handlers served by the router. Nil entries are skipped.
type Routes struct {
	Health      Registrar
	Verify      Registrar
	Mint        Registrar
	Credentials Registrar
}

// Config carries transport-level settings.
type Config struct {
	AdminToken     string
	RequestTimeout time.Duration
	IssuerTimeout  time.Duration // admin requests may wait for mint confirmation
	TrustedProxies []netip.Prefix
	Latency        middleware.EndpointObserver // nil disables per-route latency
}

// NewRouter wires all endpoints with middleware.
func NewRouter(routes Routes, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.IssuerTimeout <= 0 {
		cfg.IssuerTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata(cfg.TrustedProxies...))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	if cfg.Latency != nil {
		r.Use(middleware.Latency(cfg.Latency, routePattern))
	}

	if routes.Health != nil {
		routes.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Use(middleware.BodyLimit(validation.MaxBatchBodySize))

		if routes.Verify != nil {
			api.With(middleware.Timeout(cfg.RequestTimeout)).Group(routes.Verify.Register)
		}

		api.Group(func(admin chi.Router) {
			admin.Use(middleware.Timeout(cfg.IssuerTimeout))
			admin.Use(middleware.RequireAdminToken(cfg.AdminToken, logger))
			if routes.Mint != nil {
				routes.Mint.Register(admin)
			}
			if routes.Credentials != nil {
				routes.Credentials.Register(admin)
			}
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
