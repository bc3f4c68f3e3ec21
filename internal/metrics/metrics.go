// Package metrics registers the prometheus collectors FTL2 exposes as its
// ambient observability surface: module call counts,
// fan-out duration, and gate lifecycle counters. Registration happens
// against prometheus's default registry so a caller can serve /metrics
// with promhttp if it wants to; this module never starts an HTTP server
// itself (out of scope, CLI front-end is a separate collaborator).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ModuleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ftl2_module_calls_total",
		Help: "Total module calls dispatched, labeled by module and outcome.",
	}, []string{"module", "outcome"})

	FanoutDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ftl2_fanout_duration_seconds",
		Help:    "Duration of a fan-out call across all targeted hosts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"module"})

	GateRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ftl2_gate_restarts_total",
		Help: "Number of times a gate was restarted after transport loss.",
	}, []string{"host"})

	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ftl2_events_emitted_total",
		Help: "Events delivered on the event bus, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(ModuleCalls, FanoutDuration, GateRestarts, EventsEmitted)
}
