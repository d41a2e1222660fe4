package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"registry/internal/platform/metrics"
	"registry/internal/platform/middleware"
	"registry/internal/transport/http/shared"
)

// Registrar mounts a group of routes on the API router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthFunc reports whether the service can serve requests.
type HealthFunc func(ctx context.Context) error

// Options configures the API router.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	MaxBodySize    int64
	Health         HealthFunc
	// Gatherer exposes /metrics on the API router when set. Leave nil when a
	// separate monitoring listener serves the metrics.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the API router with the shared middleware stack and mounts
// every registrar under it.
func NewRouter(opts Options, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.StripServerHeader)
	if opts.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(opts.Metrics))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if opts.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(opts.MaxBodySize))
	}

	r.Get("/health", healthHandler(opts.Health))
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}

// NewMonitoringRouter serves /metrics and /health for the monitoring listener.
func NewMonitoringRouter(gatherer prometheus.Gatherer, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", healthHandler(health))
	return r
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
