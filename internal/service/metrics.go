package service

import (
	"time"

	"flowpilot/internal/domain"
)

// IndustryAverage is an external benchmark for one workflow category.
type IndustryAverage struct {
	TotalExecutionTimeMs int64   `json:"total_execution_time_ms"`
	TotalCost            float64 `json:"total_cost"`
}

// MetricsSummary is derived from an instance's accumulated metrics. Shares
// are fractions of total wall-clock time attributed to each executor kind;
// savings percentages are relative to the industry average and may be
// negative when the instance performed worse.
type MetricsSummary struct {
	TotalExecutionTimeMs int64   `json:"total_execution_time_ms"`
	HumanTimeSpentMs     int64   `json:"human_time_spent_ms"`
	AIProcessingTimeMs   int64   `json:"ai_processing_time_ms"`
	ClientWaitTimeMs     int64   `json:"client_wait_time_ms"`
	TotalCost            float64 `json:"total_cost"`

	HumanShare  float64 `json:"human_share"`
	AIShare     float64 `json:"ai_share"`
	ClientShare float64 `json:"client_share"`

	TimeSavingsPct *float64 `json:"time_savings_pct,omitempty"`
	CostSavingsPct *float64 `json:"cost_savings_pct,omitempty"`
}

// SummarizeInstance derives the metrics view of an instance. For in-progress
// instances the denominator is wall-clock-so-far, so shares are defined
// before completion and never divide by zero.
func SummarizeInstance(instance *domain.WorkflowInstance, now time.Time, industry *IndustryAverage) MetricsSummary {
	total := instance.TotalExecutionTimeMs
	if !instance.IsFinished() {
		total = now.Sub(instance.StartedAt).Milliseconds()
	}

	summary := MetricsSummary{
		TotalExecutionTimeMs: total,
		HumanTimeSpentMs:     instance.HumanTimeSpentMs,
		AIProcessingTimeMs:   instance.AIProcessingTimeMs,
		ClientWaitTimeMs:     instance.ClientWaitTimeMs,
		TotalCost:            instance.TotalCost,
	}

	if total > 0 {
		summary.HumanShare = float64(instance.HumanTimeSpentMs) / float64(total)
		summary.AIShare = float64(instance.AIProcessingTimeMs) / float64(total)
		summary.ClientShare = float64(instance.ClientWaitTimeMs) / float64(total)
	}

	if industry != nil {
		if industry.TotalExecutionTimeMs > 0 {
			pct := (float64(industry.TotalExecutionTimeMs) - float64(total)) /
				float64(industry.TotalExecutionTimeMs) * 100
			summary.TimeSavingsPct = &pct
		}
		if industry.TotalCost > 0 {
			pct := (industry.TotalCost - instance.TotalCost) / industry.TotalCost * 100
			summary.CostSavingsPct = &pct
		}
	}

	return summary
}
