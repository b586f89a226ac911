// Package metrics exposes Prometheus collectors for the swarm service.
// Collectors register on the default registry; the API server serves
// them on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events fanned out to at least one subscriber.
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total events published to session subscribers",
	})

	// EventsDropped counts events lost to full subscriber queues.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total events dropped due to slow subscribers",
	})

	// SwarmRuns counts full pipeline runs by terminal status.
	// Labels: status (completed, error)
	SwarmRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Total swarm pipeline runs by status",
	}, []string{"status"})

	// AgentRuns counts individual agent executions.
	// Labels: agent, status (completed, timeout, error)
	AgentRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "agents",
		Name:      "runs_total",
		Help:      "Total agent executions by agent and status",
	}, []string{"agent", "status"})

	// AgentDuration observes wall-clock agent run time.
	// Labels: agent
	AgentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swarm",
		Subsystem: "agents",
		Name:      "duration_seconds",
		Help:      "Agent run duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"agent"})

	// LifecycleTransitions counts experiment state transitions.
	// Labels: to (target status)
	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total hypothesis experiment status transitions",
	}, []string{"to"})

	// CompareRequests counts comparison requests received.
	CompareRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "lifecycle",
		Name:      "compare_requests_total",
		Help:      "Total experiment comparison requests",
	})

	// CompareCompleted counts comparisons that produced a result.
	CompareCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "lifecycle",
		Name:      "compare_completed_total",
		Help:      "Total experiment comparisons completed",
	})

	// RehydrationRuns counts rehydration attempts before swarm runs.
	RehydrationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "rehydration",
		Name:      "runs_total",
		Help:      "Total rehydration attempts",
	})

	// RehydrationHits counts rehydrations that injected prior context.
	RehydrationHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "rehydration",
		Name:      "hits_total",
		Help:      "Total rehydrations that selected at least one candidate",
	})
)
