package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobConfig_Normalized_ClampsConcurrency(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero gets default", 0, DefaultConcurrency},
		{"negative gets default", -3, DefaultConcurrency},
		{"within bounds unchanged", 3, 3},
		{"above max clamped", 50, MaxConcurrency},
		{"min allowed", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JobConfig{Concurrency: tt.in}.Normalized()
			assert.Equal(t, tt.want, got.Concurrency)
		})
	}
}

func TestJobConfig_Normalized_Defaults(t *testing.T) {
	cfg := JobConfig{}.Normalized()
	assert.InDelta(t, DefaultSuccessThreshold, cfg.SuccessThreshold, 1e-9)
	assert.Equal(t, PauseDrain, cfg.PausePolicy)
	assert.Equal(t, StageOrder, cfg.EnabledStages)
}

func TestCounters_Progress_DerivedFromProcessed(t *testing.T) {
	assert.Equal(t, 0, Counters{}.Progress())
	assert.Equal(t, 50, Counters{Total: 10, Processed: 5}.Progress())
	assert.Equal(t, 33, Counters{Total: 3, Processed: 1}.Progress())
	assert.Equal(t, 67, Counters{Total: 3, Processed: 2}.Progress())
	assert.Equal(t, 100, Counters{Total: 3, Processed: 3}.Progress())
}

func TestCounters_Consistent(t *testing.T) {
	assert.True(t, Counters{Total: 10, Processed: 7, Succeeded: 4, Failed: 2, Duplicates: 1}.Consistent())
	assert.False(t, Counters{Total: 10, Processed: 7, Succeeded: 4, Failed: 2}.Consistent())
	assert.False(t, Counters{Total: 5, Processed: 6, Succeeded: 6}.Consistent())

	// negative components must not cancel out through the sum identity
	assert.False(t, Counters{Total: 3, Processed: 1, Succeeded: 2, Failed: -1}.Consistent())
	assert.False(t, Counters{Total: 3, Processed: 0, Succeeded: 1, Failed: -2, Duplicates: 1}.Consistent())
	assert.False(t, Counters{Total: 3, Processed: -1, Failed: -1}.Consistent())
}

func TestCounters_SuccessRate_ExcludesDuplicates(t *testing.T) {
	c := Counters{Total: 10, Processed: 10, Succeeded: 7, Failed: 1, Duplicates: 2}
	assert.InDelta(t, 7.0/8.0, c.SuccessRate(), 1e-9)

	// All duplicates: no denominator, rate is zero.
	assert.Zero(t, Counters{Total: 3, Processed: 3, Duplicates: 3}.SuccessRate())
}

func TestTerminalStatus_ThresholdPolicy(t *testing.T) {
	tests := []struct {
		name string
		c    Counters
		want JobStatus
	}{
		{"all succeed", Counters{Total: 5, Processed: 5, Succeeded: 5}, JobStatusCompleted},
		{"none succeed", Counters{Total: 10, Processed: 10, Failed: 10}, JobStatusFailed},
		{"seventy percent", Counters{Total: 10, Processed: 10, Succeeded: 7, Failed: 3}, JobStatusCompletedWithErrors},
		{"boundary inclusive at eighty", Counters{Total: 10, Processed: 10, Succeeded: 8, Failed: 2}, JobStatusCompleted},
		{"single success below threshold", Counters{Total: 10, Processed: 10, Succeeded: 1, Failed: 9}, JobStatusCompletedWithErrors},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TerminalStatus(tt.c, DefaultSuccessThreshold))
		})
	}
}

func TestTerminalStatus_CustomThreshold(t *testing.T) {
	c := Counters{Total: 10, Processed: 10, Succeeded: 6, Failed: 4}
	assert.Equal(t, JobStatusCompleted, TerminalStatus(c, 0.5))
	assert.Equal(t, JobStatusCompletedWithErrors, TerminalStatus(c, 0.8))
}

func TestJobStatus_Terminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusPaused} {
		assert.False(t, s.Terminal(), string(s))
	}
}
