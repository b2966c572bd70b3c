// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowpilot_step_executions_total",
		Help: "Step executions by step kind and terminal status.",
	}, []string{"kind", "status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowpilot_step_duration_seconds",
		Help:    "Wall-clock duration of completed step executions.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
	}, []string{"kind"})

	aiTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowpilot_ai_tokens_total",
		Help: "Tokens consumed by AI step executions.",
	})

	aiCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowpilot_ai_cost_total",
		Help: "Accumulated AI cost in currency units.",
	})

	validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowpilot_client_validations_total",
		Help: "Client validation lifecycle transitions.",
	}, []string{"event"})
)

func ObserveStepExecution(kind, status string, seconds float64) {
	stepExecutions.WithLabelValues(kind, status).Inc()
	if seconds >= 0 {
		stepDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func ObserveAIUsage(tokens int, cost float64) {
	aiTokens.Add(float64(tokens))
	aiCost.Add(cost)
}

func ObserveValidation(event string) {
	validations.WithLabelValues(event).Inc()
}
