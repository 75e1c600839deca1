// Package metrics holds the Prometheus collectors of the messaging client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskflow_chat"

// Drop reasons for push frames.
const (
	ReasonMalformed = "malformed"
	ReasonIgnored   = "ignored"
)

// Send outcomes.
const (
	OutcomePersisted  = "persisted"
	OutcomeRolledBack = "rolled_back"
)

type Metrics struct {
	PushFramesReceived prometheus.Counter
	PushFramesDropped  *prometheus.CounterVec
	PushReconnects     prometheus.Counter
	PushApplied        prometheus.Counter
	PushDuplicates     prometheus.Counter
	Sends              *prometheus.CounterVec
	StaleFetches       prometheus.Counter
	StaleSearches      prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
	RequestErrors      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PushFramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "frames_received_total",
			Help:      "Frames read from the push socket.",
		}),
		PushFramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the push channel, by reason.",
		}, []string{"reason"}),
		PushReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "reconnects_total",
			Help:      "Successful push socket reconnections.",
		}),
		PushApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "push_applied_total",
			Help:      "Push messages merged into the store.",
		}),
		PushDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "push_duplicates_total",
			Help:      "Push messages already present in the displayed list.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sends_total",
			Help:      "Optimistic sends by outcome.",
		}, []string{"outcome"}),
		StaleFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "stale_fetches_total",
			Help:      "History fetches discarded because the selection changed.",
		}),
		StaleSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "stale_searches_total",
			Help:      "Search results discarded because a newer search was issued.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_errors_total",
			Help:      "Backend request failures by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PushFramesReceived,
			m.PushFramesDropped,
			m.PushReconnects,
			m.PushApplied,
			m.PushDuplicates,
			m.Sends,
			m.StaleFetches,
			m.StaleSearches,
			m.RequestDuration,
			m.RequestErrors,
		)
	}
	return m
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.PushFramesReceived.Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.PushFramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.PushReconnects.Inc()
}

func (m *Metrics) Applied() {
	if m == nil {
		return
	}
	m.PushApplied.Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.PushDuplicates.Inc()
}

func (m *Metrics) Sent(outcome string) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StaleFetch() {
	if m == nil {
		return
	}
	m.StaleFetches.Inc()
}

func (m *Metrics) StaleSearch() {
	if m == nil {
		return
	}
	m.StaleSearches.Inc()
}

func (m *Metrics) ObserveRequest(method string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) RequestFailed(kind string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(kind).Inc()
}
