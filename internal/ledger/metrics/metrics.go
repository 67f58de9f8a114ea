// Package metrics provides observability for the ledger module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger operation outcomes and critical path durations.
type Metrics struct {
	Operations        *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	FeesCollected     prometheus.Counter
	TransferDuration  prometheus.Histogram
	VestingReleases   prometheus.Counter
	EventsPublished   prometheus.Counter
	ReentrancyTripped prometheus.Counter
}

// New registers the ledger metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the ledger metrics on the given registry. Tests pass a
// fresh registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "braza_ledger_operations_total",
			Help: "Ledger operations by name and outcome",
		}, []string{"operation", "outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "braza_compliance_rejections_total",
			Help: "Transfers rejected by the compliance gate, by reason",
		}, []string{"reason"}),
		FeesCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "braza_fees_collected_bra_total",
			Help: "Total transfer fees routed to the collector, in bra",
		}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "braza_transfer_duration_seconds",
			Help:    "Duration of transfer operations end to end",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		VestingReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "braza_vesting_releases_total",
			Help: "Successful vesting release operations",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "braza_events_published_total",
			Help: "Ledger events delivered to the external publisher",
		}),
		ReentrancyTripped: factory.NewCounter(prometheus.CounterOpts{
			Name: "braza_reentrancy_guard_trips_total",
			Help: "Invocations rejected by the re-entrancy guard",
		}),
	}
}

// RecordOperation counts one completed operation.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordRejection counts one compliance rejection.
func (m *Metrics) RecordRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

// ObserveTransfer records the duration of a transfer. Call with time.Now()
// at the start of the operation.
func (m *Metrics) ObserveTransfer(start time.Time) {
	m.TransferDuration.Observe(time.Since(start).Seconds())
}
