// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/ManuGH/streamrec/internal/health"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/platform"
)

// statusRateLimit bounds /status requests per client IP per minute.
const statusRateLimit = 120

// RouterDeps are the views exposed by the ops server.
type RouterDeps struct {
	Health   *health.Manager
	Status   func() map[string][]platform.Status
	Gatherer prometheus.Gatherer
	// TracingService enables otelhttp spans for non-probe routes.
	TracingService string
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Platforms map[string][]platform.Status `json:"platforms"`
	Active    int                          `json:"active"`
	Timestamp time.Time                    `json:"timestamp"`
}

// NewRouter builds the ops handler.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.ServeHealth)
		r.Get("/readyz", deps.Health.ServeReady)
	}

	if deps.Status != nil {
		r.With(rateLimit(statusRateLimit, time.Minute)).Get("/status", statusHandler(deps.Status))
	}

	if deps.TracingService == "" {
		return r
	}
	return otelhttp.NewHandler(r, deps.TracingService,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.URL.Path
		}),
	)
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

func statusHandler(status func() map[string][]platform.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platforms := status()
		resp := StatusResponse{Platforms: platforms, Timestamp: time.Now().UTC()}
		for _, list := range platforms {
			resp.Active += len(list)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger := xglog.WithComponentFromContext(r.Context(), "ops")
			logger.Error().Err(err).Msg("failed to encode status response")
		}
	}
}
