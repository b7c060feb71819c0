// Package metrics exposes Prometheus instrumentation for the sweep and
// delivery paths.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one server instance. Registered on a
// private registry so tests can construct as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	SweepDuration   prometheus.Histogram
	Transitions     *prometheus.CounterVec
	SweepFailures   prometheus.Counter
	DeliveryClamped prometheus.Counter
}

// Transition label values.
const (
	TransitionActivated = "activated"
	TransitionDelayed   = "delayed"
	TransitionCompleted = "completed"
	TransitionSkipped   = "skipped"
)

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logistics",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of one full transport lifecycle sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logistics",
			Subsystem: "sweep",
			Name:      "transitions_total",
			Help:      "Transport state transitions applied by the sweep, by kind.",
		}, []string{"kind"}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logistics",
			Subsystem: "sweep",
			Name:      "record_failures_total",
			Help:      "Per-record transition failures skipped by the sweep.",
		}),
		DeliveryClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logistics",
			Subsystem: "fulfillment",
			Name:      "delivery_clamped_total",
			Help:      "Deliveries whose quantity was clamped at item capacity.",
		}),
	}

	reg.MustRegister(m.SweepDuration, m.Transitions, m.SweepFailures, m.DeliveryClamped)
	return m
}

// Handler returns the Prometheus exposition endpoint for this instance.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
