// Package metric holds the Prometheus collectors for rehook.
//
// A nil *Metrics is valid and records nothing, so the engine and host can
// run without a registry (tests, the stdio transport).
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all collectors.
type Metrics struct {
	Cycles         *prometheus.CounterVec   // by app, outcome
	CycleDuration  *prometheus.HistogramVec // by app
	Events         *prometheus.CounterVec   // by app, kind
	EventsDropped  *prometheus.CounterVec   // by app, reason
	Effects        *prometheus.CounterVec   // by app, kind
	Requeues       *prometheus.CounterVec   // by app
	HandlerErrors  *prometheus.CounterVec   // by app
	Loaders        *prometheus.CounterVec   // by app, outcome
	LoaderDuration *prometheus.HistogramVec // by app
	Instances      prometheus.Gauge
	Timers         prometheus.Gauge
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Total number of cycles processed",
		}, []string{"app", "outcome"}), // outcome: ok, render_error, interrupted

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Cycle duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"app"}),

		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Total number of events dispatched",
		}, []string{"app", "kind"}),

		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "events_dropped_total",
			Help:      "Events dropped as stale, duplicate or unroutable",
		}, []string{"app", "reason"}),

		Effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "effects_total",
			Help:      "Effects returned to hosts after coalescing",
		}, []string{"app", "kind"}),

		Requeues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "requeues_total",
			Help:      "Asynchronous loads requested by cycles",
		}, []string{"app"}),

		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "engine",
			Name:      "handler_errors_total",
			Help:      "Errors returned by event handlers",
		}, []string{"app"}),

		Loaders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rehook",
			Subsystem: "host",
			Name:      "loaders_total",
			Help:      "Loader executions by outcome",
		}, []string{"app", "outcome"}), // outcome: ok, error, stale, cancelled

		LoaderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rehook",
			Subsystem: "host",
			Name:      "loader_duration_seconds",
			Help:      "Loader execution time in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"app"}),

		Instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rehook",
			Subsystem: "host",
			Name:      "instances",
			Help:      "Component instances known to the host",
		}),

		Timers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rehook",
			Subsystem: "host",
			Name:      "timers_armed",
			Help:      "Repeating timers currently armed",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Cycles, m.CycleDuration, m.Events, m.EventsDropped, m.Effects,
		m.Requeues, m.HandlerErrors, m.Loaders, m.LoaderDuration, m.Instances, m.Timers,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistered creates collectors and registers them on a fresh registry.
func NewRegistered() (*Metrics, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		return nil, nil, err
	}
	return m, reg, nil
}

func (m *Metrics) RecordCycle(app, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(app, outcome).Inc()
	m.CycleDuration.WithLabelValues(app).Observe(d.Seconds())
}

func (m *Metrics) RecordEvent(app, kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(app, kind).Inc()
}

func (m *Metrics) RecordDrop(app, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(app, reason).Inc()
}

func (m *Metrics) RecordEffect(app, kind string) {
	if m == nil {
		return
	}
	m.Effects.WithLabelValues(app, kind).Inc()
}

func (m *Metrics) RecordRequeues(app string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Requeues.WithLabelValues(app).Add(float64(n))
}

func (m *Metrics) RecordHandlerErrors(app string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.HandlerErrors.WithLabelValues(app).Add(float64(n))
}

func (m *Metrics) RecordLoader(app, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Loaders.WithLabelValues(app, outcome).Inc()
	m.LoaderDuration.WithLabelValues(app).Observe(d.Seconds())
}

func (m *Metrics) SetInstances(n int) {
	if m == nil {
		return
	}
	m.Instances.Set(float64(n))
}

func (m *Metrics) AddTimers(delta int) {
	if m == nil {
		return
	}
	m.Timers.Add(float64(delta))
}
