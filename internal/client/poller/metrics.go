package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeCanceled = "canceled"

	skipGated    = "gated"
	skipBusy     = "busy"
	skipDropTick = "dropped_tick"
)

// Metrics are the per-channel polling metrics.
type Metrics struct {
	registry *prometheus.Registry

	Fetches  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
	Skipped  *prometheus.CounterVec
}

// NewMetrics creates the polling metrics on their own registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_fetches_total",
				Help:      "Completed polls by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Poll duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "poll_in_flight",
				Help:      "Polls currently running (0 or 1 per channel)",
			},
			[]string{"channel"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_skipped_total",
				Help:      "Polls not run, by channel and reason",
			},
			[]string{"channel", "reason"},
		),
	}
	m.registry.MustRegister(m.Fetches, m.Duration, m.InFlight, m.Skipped)
	return m
}

// Registry exposes the registry for Gather in the CLI stats command.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observe(ch Channel, outcome string, d time.Duration) {
	m.Fetches.WithLabelValues(string(ch), outcome).Inc()
	m.Duration.WithLabelValues(string(ch)).Observe(d.Seconds())
}

func (m *Metrics) skip(ch Channel, reason string) {
	m.Skipped.WithLabelValues(string(ch), reason).Inc()
}
