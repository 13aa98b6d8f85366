// Package metrics exposes Prometheus instrumentation for the fatigue fusion
// pipeline: fusion-tick latency, stage transitions, and state-manager
// rejections.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all FFE Prometheus metrics.
type Metrics struct {
	FusionTicksTotal      *prometheus.CounterVec
	FusionTickDuration    prometheus.Histogram
	FusionCriticalEvents  prometheus.Counter
	FusionSkippedSamples  *prometheus.CounterVec

	StageTransitionsTotal *prometheus.CounterVec
	StageCurrentGauge     *prometheus.GaugeVec

	StateTransitionsTotal *prometheus.CounterVec
	StateRejectedTotal    prometheus.Counter
	StateHistorySize      prometheus.Gauge
	SubscriberFailures    prometheus.Counter
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Get returns the process-wide metrics instance, creating it on first use.
func Get() *Metrics {
	globalOnce.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.FusionTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "fusion",
			Name:      "ticks_total",
			Help:      "Total fusion core evaluations, labeled by outcome",
		},
		[]string{"outcome"}, // ok, insufficient_modalities
	)

	m.FusionTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ffe",
			Subsystem: "fusion",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one VFE->BFE->FC->SC->SM tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	m.FusionCriticalEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "fusion",
			Name:      "critical_events_total",
			Help:      "Total ticks classified as a critical event",
		},
	)

	m.FusionSkippedSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "fusion",
			Name:      "samples_skipped_total",
			Help:      "Samples dropped before fusion, labeled by reason",
		},
		[]string{"reason"}, // stale, invalid (out-of-order samples are dropped uncounted)
	)

	m.StageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "stage",
			Name:      "transitions_total",
			Help:      "Fatigue stage transitions, labeled by path",
		},
		[]string{"path"}, // normal, critical
	)

	m.StageCurrentGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ffe",
			Subsystem: "stage",
			Name:      "current",
			Help:      "1 for the currently active fatigue stage, 0 otherwise",
		},
		[]string{"stage"},
	)

	m.StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "state",
			Name:      "transitions_total",
			Help:      "Committed SystemState transitions, labeled by target",
		},
		[]string{"to"},
	)

	m.StateRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "state",
			Name:      "rejected_total",
			Help:      "Transitions rejected as illegal by the state manager",
		},
	)

	m.StateHistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ffe",
			Subsystem: "state",
			Name:      "history_size",
			Help:      "Current number of snapshots retained in SM history",
		},
	)

	m.SubscriberFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ffe",
			Subsystem: "state",
			Name:      "subscriber_failures_total",
			Help:      "State subscriber callbacks that errored or timed out",
		},
	)

	return m
}
