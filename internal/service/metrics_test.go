package service

import (
	"testing"
	"time"

	"flowpilot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeInstanceCompleted(t *testing.T) {
	instance := &domain.WorkflowInstance{
		Status:               domain.InstanceCompleted,
		TotalExecutionTimeMs: 10_000,
		HumanTimeSpentMs:     5_000,
		AIProcessingTimeMs:   3_000,
		ClientWaitTimeMs:     2_000,
		TotalCost:            0.25,
	}

	summary := SummarizeInstance(instance, time.Now(), nil)

	assert.Equal(t, int64(10_000), summary.TotalExecutionTimeMs)
	assert.InDelta(t, 0.5, summary.HumanShare, 1e-9)
	assert.InDelta(t, 0.3, summary.AIShare, 1e-9)
	assert.InDelta(t, 0.2, summary.ClientShare, 1e-9)
	assert.Nil(t, summary.TimeSavingsPct)
	assert.Nil(t, summary.CostSavingsPct)
}

func TestSummarizeInstanceInProgressUsesWallClock(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	instance := &domain.WorkflowInstance{
		Status:           domain.InstanceInProgress,
		StartedAt:        started,
		HumanTimeSpentMs: 30_000,
	}

	summary := SummarizeInstance(instance, started.Add(time.Minute), nil)

	assert.Equal(t, int64(60_000), summary.TotalExecutionTimeMs)
	assert.InDelta(t, 0.5, summary.HumanShare, 1e-9)
}

func TestSummarizeInstanceZeroTotal(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	instance := &domain.WorkflowInstance{
		Status:    domain.InstanceInProgress,
		StartedAt: started,
	}

	// Queried at the very instant it started: shares stay zero, no division.
	summary := SummarizeInstance(instance, started, nil)

	assert.Zero(t, summary.TotalExecutionTimeMs)
	assert.Zero(t, summary.HumanShare)
	assert.Zero(t, summary.AIShare)
	assert.Zero(t, summary.ClientShare)
}

func TestSummarizeInstanceSavings(t *testing.T) {
	instance := &domain.WorkflowInstance{
		Status:               domain.InstanceCompleted,
		TotalExecutionTimeMs: 5_000,
		TotalCost:            1.0,
	}

	summary := SummarizeInstance(instance, time.Now(), &IndustryAverage{
		TotalExecutionTimeMs: 10_000,
		TotalCost:            4.0,
	})

	require.NotNil(t, summary.TimeSavingsPct)
	require.NotNil(t, summary.CostSavingsPct)
	assert.InDelta(t, 50.0, *summary.TimeSavingsPct, 1e-9)
	assert.InDelta(t, 75.0, *summary.CostSavingsPct, 1e-9)
}

func TestSummarizeInstanceNegativeSavings(t *testing.T) {
	instance := &domain.WorkflowInstance{
		Status:               domain.InstanceCompleted,
		TotalExecutionTimeMs: 20_000,
		TotalCost:            8.0,
	}

	summary := SummarizeInstance(instance, time.Now(), &IndustryAverage{
		TotalExecutionTimeMs: 10_000,
		TotalCost:            4.0,
	})

	require.NotNil(t, summary.TimeSavingsPct)
	require.NotNil(t, summary.CostSavingsPct)
	assert.InDelta(t, -100.0, *summary.TimeSavingsPct, 1e-9)
	assert.InDelta(t, -100.0, *summary.CostSavingsPct, 1e-9)
}

func TestSummarizeInstanceZeroBenchmarkOmitsSavings(t *testing.T) {
	instance := &domain.WorkflowInstance{
		Status:               domain.InstanceCompleted,
		TotalExecutionTimeMs: 5_000,
	}

	summary := SummarizeInstance(instance, time.Now(), &IndustryAverage{})

	assert.Nil(t, summary.TimeSavingsPct)
	assert.Nil(t, summary.CostSavingsPct)
}
