package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the render counters. A nil *Metrics records nothing.
type Metrics struct {
	renders            *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	backgroundFailures *prometheus.CounterVec
	inFlight           prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banner",
			Name:      "renders_total",
			Help:      "Banner renders by template and outcome",
		}, []string{"template", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "banner",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a banner",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		backgroundFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banner",
			Name:      "background_failures_total",
			Help:      "Background images that could not be fetched and were skipped",
		}, []string{"template"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "banner",
			Name:      "renders_in_flight",
			Help:      "Renders currently running",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.renders, m.duration, m.backgroundFailures, m.inFlight)
	}
	return m
}

// Start marks a render as running and returns the func that records its
// outcome.
func (m *Metrics) Start() func(template, outcome string) {
	if m == nil {
		return func(string, string) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(template, outcome string) {
		m.inFlight.Dec()
		if template == "" {
			template = "unknown"
		}
		m.renders.WithLabelValues(template, outcome).Inc()
		m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) BackgroundFailed(template string) {
	if m == nil {
		return
	}
	m.backgroundFailures.WithLabelValues(template).Inc()
}

// Renders exposes the render counter for tests and dashboards.
func (m *Metrics) Renders() *prometheus.CounterVec { return m.renders }

// BackgroundFailures exposes the background failure counter.
func (m *Metrics) BackgroundFailures() *prometheus.CounterVec { return m.backgroundFailures }
