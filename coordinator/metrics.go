package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the leading part of all published metrics.
const namespace = "occ"

const coordinatorSubsystem = "coordinator"

// Metrics holds the Prometheus collectors of a Coordinator.
type Metrics struct {
	// These metrics have an extra label result = {"ok", <FailureKind>}
	Invocations *prometheus.CounterVec // Number of ApplyMutation calls.
	Duration    *prometheus.HistogramVec

	// This metric has an extra label outcome = {"ok", "version_mismatch", "not_found", "error"}
	WriteAttempts *prometheus.CounterVec // Number of conditional writes issued.

	CreationConflicts *prometheus.CounterVec // Number of create races that fell back to a read.
}

// NewMetrics initialises the coordinator metrics. labels are attached to
// every series as constant labels.
func NewMetrics(labels prometheus.Labels) *Metrics {
	return &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   coordinatorSubsystem,
			Name:        "invocations_total",
			Help:        "Total number of read-modify-write invocations by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   coordinatorSubsystem,
			Name:        "duration_seconds",
			Help:        "Time taken by read-modify-write invocations.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
			ConstLabels: labels,
		}, []string{"result"}),
		WriteAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   coordinatorSubsystem,
			Name:        "write_attempts_total",
			Help:        "Total number of conditional writes issued by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		CreationConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   coordinatorSubsystem,
			Name:        "creation_conflicts_total",
			Help:        "Total number of creates that lost a race to a concurrent creator.",
			ConstLabels: labels,
		}, nil),
	}
}

// PrometheusCollectors returns the collectors for registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Invocations,
		m.Duration,
		m.WriteAttempts,
		m.CreationConflicts,
	}
}

func (m *Metrics) observeInvocation(kind FailureKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if kind != None {
		result = kind.String()
	}
	m.Invocations.WithLabelValues(result).Inc()
	m.Duration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) observeWrite(outcome string) {
	if m == nil {
		return
	}
	m.WriteAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeCreationConflict() {
	if m == nil {
		return
	}
	m.CreationConflicts.WithLabelValues().Inc()
}
