package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pickbatch/internal/controller"
	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
	"pickbatch/internal/sink"
)

// Controller is the decision loop the API feeds.
type Controller interface {
	Submit(ctx context.Context, o model.Order) error
	Finish(ctx context.Context, o model.Order) error
	PickerAvailable()
	Snapshot(ctx context.Context) (controller.Snapshot, error)
}

// Enricher positions order items.
type Enricher interface {
	Enrich(o model.Order) (model.Order, error)
}

type Server struct {
	Ctrl    Controller
	Catalog Enricher
	Stream  sink.Stream
	// Limiter throttles order intake; nil disables it.
	Limiter *rate.Limiter
}

func NewServer(ctrl Controller, cat Enricher, stream sink.Stream, limiter *rate.Limiter) *Server {
	return &Server{Ctrl: ctrl, Catalog: cat, Stream: stream, Limiter: limiter}
}

var routes = []string{
	"/v1/orders",
	"/v1/orders/last",
	"/v1/plan",
	"/v1/picker/available",
	"/v1/releases/stream",
	"/v1/admin/ils-metrics",
	"/healthz",
	"/readyz",
	"/metrics",
}

// Handler wires every route behind the logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Orders
	mux.HandleFunc("/v1/orders", s.OrdersHandler)
	mux.HandleFunc("/v1/orders/last", s.LastOrderHandler)

	// Picker and plan
	mux.HandleFunc("/v1/plan", s.PlanHandler)
	mux.HandleFunc("/v1/picker/available", s.PickerAvailableHandler)
	mux.HandleFunc("/v1/releases/stream", s.ReleaseStreamHandler)

	// Admin
	mux.HandleFunc("/v1/admin/ils-metrics", s.ILSMetricsHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return logMiddleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logMiddleware(next http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, p := range routes {
		known[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		path := r.URL.Path
		if !known[path] {
			path = "other"
		}
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
		log.Debug().
			Str("remote", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", dur).
			Msg("http request")
	})
}
