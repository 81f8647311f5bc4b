// Package metrics exposes drover's monitor-loop instrumentation. Collectors
// are registered on a private registry so tests can read them without
// fighting the global default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketmill/drover/internal/queue"
)

// Metrics holds all drover collectors.
type Metrics struct {
	registry *prometheus.Registry

	QueueDepth      *prometheus.GaugeVec
	DiscoveryCycles *prometheus.CounterVec
	Fallbacks       prometheus.Counter
	Solves          *prometheus.CounterVec
}

// New builds and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drover_queue_items",
			Help: "Items per queue state.",
		}, []string{"state"}),
		DiscoveryCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_discovery_cycles_total",
			Help: "Discovery cycles by result.",
		}, []string{"result"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drover_discovery_fallbacks_total",
			Help: "Per-repository fallback enumerations triggered by rate limiting.",
		}),
		Solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_solves_total",
			Help: "Solve attempts by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.QueueDepth, m.DiscoveryCycles, m.Fallbacks, m.Solves)
	return m
}

// ObserveQueue updates the per-state gauges from a queue snapshot.
func (m *Metrics) ObserveQueue(st queue.Stats) {
	m.QueueDepth.WithLabelValues("queued").Set(float64(st.Queued))
	m.QueueDepth.WithLabelValues("processing").Set(float64(st.Processing))
	m.QueueDepth.WithLabelValues("completed").Set(float64(st.Completed))
	m.QueueDepth.WithLabelValues("failed").Set(float64(st.Failed))
}

// Serve exposes /metrics on addr in a background goroutine. Errors from the
// listener are reported through errf; a metrics endpoint failing must never
// take the monitor down.
func (m *Metrics) Serve(addr string, errf func(format string, args ...interface{})) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && errf != nil {
			errf("metrics listener on %s failed: %v", addr, err)
		}
	}()
}
