// Package metrics provides the Prometheus implementation of the
// engine.Metrics and bus.Metrics instrumentation seams, grounded on the
// promauto-registered CounterVec/HistogramVec/Gauge pattern used across
// ipiton-alert-history-service's internal/infrastructure/publishing and
// handlers metrics files.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ocs-lab/governor/internal/engine"
)

// Metrics is the process-wide Prometheus registration for both the
// engine and bus instrumentation seams.
type Metrics struct {
	transitionsTotal    *prometheus.CounterVec
	transitionDuration  *prometheus.HistogramVec
	faultsTotal         *prometheus.CounterVec
	statusGauge         *prometheus.GaugeVec

	busConnections prometheus.Gauge
	busEventsTotal *prometheus.CounterVec
	busDropped     *prometheus.CounterVec
	busBroadcast   prometheus.Histogram
}

// New registers every governor metric under namespace (cmd/governor
// passes "governor").
func New(namespace string) *Metrics {
	return &Metrics{
		transitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total number of transition attempts, by governor and outcome.",
		}, []string{"governor", "outcome"}),

		transitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transition_duration_seconds",
			Help:      "Duration of transition attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"governor", "destination"}),

		faultsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "faults_total",
			Help:      "Total number of fault events observed, by governor and kind.",
		}, []string{"governor", "kind"}),

		statusGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "status",
			Help:      "Current engine status (0=Idle,1=Busy,2=Disabled,3=Fault) per governor.",
		}, []string{"governor"}),

		busConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "connections_active",
			Help:      "Current number of active bus subscribers.",
		}),

		busEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Total number of events published, by channel.",
		}, []string{"channel"}),

		busDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to a full queue, by channel.",
		}, []string{"channel"}),

		busBroadcast: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of one broadcast fan-out to subscribers.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
}

// --- engine.Metrics ---

func (m *Metrics) TransitionStarted(governor string) {}

func (m *Metrics) TransitionCompleted(governor, dest string, d time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.transitionsTotal.WithLabelValues(governor, outcome).Inc()
	m.transitionDuration.WithLabelValues(governor, dest).Observe(d.Seconds())
}

func (m *Metrics) FaultObserved(governor string, kind engine.EventKind) {
	m.faultsTotal.WithLabelValues(governor, string(kind)).Inc()
}

func (m *Metrics) StatusChanged(governor string, status engine.Status) {
	m.statusGauge.WithLabelValues(governor).Set(float64(status))
}

// --- bus.Metrics ---

func (m *Metrics) ConnectionsActive(n int) { m.busConnections.Set(float64(n)) }

func (m *Metrics) EventPublished(channel string) { m.busEventsTotal.WithLabelValues(channel).Inc() }

func (m *Metrics) EventDropped(channel string) { m.busDropped.WithLabelValues(channel).Inc() }

func (m *Metrics) BroadcastDuration(d time.Duration) { m.busBroadcast.Observe(d.Seconds()) }
