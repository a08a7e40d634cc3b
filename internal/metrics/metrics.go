package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pickbatch/internal/buildinfo"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Decisions counts decision-point evaluations by trigger
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pickbatch_decisions_total", Help: "Decision-point evaluations by trigger."},
		[]string{"trigger"},
	)
	// ILSIterations counts perturbation iterations across all ILS runs
	ILSIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pickbatch_ils_iterations_total", Help: "ILS perturbation iterations."},
	)
	// ILSImprovements counts iterations that lowered the best total tour length
	ILSImprovements = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pickbatch_ils_improvements_total", Help: "ILS iterations that improved the best solution."},
	)
	// ILSDuration records ILS wall time in seconds
	ILSDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pickbatch_ils_duration_seconds", Help: "ILS run duration in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"trigger"},
	)
	// TourLength records tour lengths of released batches in warehouse units
	TourLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pickbatch_batch_tour_length", Help: "Tour length of released batches.", Buckets: prometheus.ExponentialBuckets(10, 2, 10)},
	)
	// ReleaseDelay records single-batch release delays in seconds
	ReleaseDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pickbatch_release_delay_seconds", Help: "Single-batch release delay in seconds.", Buckets: []float64{0, 1, 2, 5, 10, 30, 60, 120, 300}},
	)
	// ReleasedBatches counts batches handed to the picker
	ReleasedBatches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pickbatch_released_batches_total", Help: "Batches released to the picker."},
	)
	// ReleasedOrders counts orders handed to the picker
	ReleasedOrders = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pickbatch_released_orders_total", Help: "Orders released to the picker."},
	)
	// PendingOrders is the number of known but unreleased orders
	PendingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pickbatch_pending_orders", Help: "Orders known but not yet released."},
	)

	// SinkDeliveries counts sink delivery outcomes by sink and status
	SinkDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pickbatch_sink_deliveries_total", Help: "Release deliveries by sink and status."},
		[]string{"sink", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pickbatch_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"status"},
	)
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pickbatch_build_info", Help: "Build information, always 1."},
		[]string{"version", "commit", "goversion"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Decisions, ILSIterations, ILSImprovements, ILSDuration)
		Registry.MustRegister(TourLength, ReleaseDelay, ReleasedBatches, ReleasedOrders, PendingOrders)
		Registry.MustRegister(SinkDeliveries, WebhookLatency, BuildInfo)
		bi := buildinfo.Get()
		BuildInfo.WithLabelValues(bi.Version, bi.Commit, bi.Go).Set(1)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
