package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts transfer outcomes and times engine calls.
type Metrics struct {
	transfers *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the transfer collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "transfer_api",
				Name:      "transfers_total",
				Help:      "Transfers handled by the engine, by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "transfer_api",
				Name:      "transfer_duration_seconds",
				Help:      "Time spent in the transfer engine",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"stage"},
		),
	}
	reg.MustRegister(m.transfers, m.duration)
	return m
}

func (m *Metrics) observe(outcome string, stage Stage, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}
