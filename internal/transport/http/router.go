// Package httptransport assembles the public HTTP surface: middleware chain,
// definition and entity routes, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	defhandler "schemaregistry/internal/definition/handler"
	enthandler "schemaregistry/internal/entity/handler"
	jwttoken "schemaregistry/internal/jwt_token"
	"schemaregistry/internal/platform/middleware"
	"schemaregistry/pkg/platform/httputil"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs. A nil Validator disables bearer
// authentication: callers are identified by the X-Actor header and hold
// every scope.
type Deps struct {
	Definitions defhandler.Service
	Entities    enthandler.Service
	Validator   middleware.JWTValidator
	Gatherer    prometheus.Gatherer
	Health      map[string]HealthCheck
	Logger      *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.AccessLog(d.Logger))

	r.Get("/healthz", healthz(d.Health, d.Logger))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if d.Validator != nil {
			r.Use(middleware.RequireAuth(d.Validator, d.Logger))
		} else {
			r.Use(middleware.Unauthenticated("anonymous", []string{
				jwttoken.ScopeDefinitionsWrite,
				jwttoken.ScopeEntitiesWrite,
			}))
		}
		defhandler.New(d.Definitions, d.Logger).Register(r)
		enthandler.New(d.Entities, d.Logger).Register(r)
	})
	return r
}

func healthz(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "dependency", name, "error", err)
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
