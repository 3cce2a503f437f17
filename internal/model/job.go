package model

import (
	"math"
	"time"
)

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusRunning             JobStatus = "running"
	JobStatusPaused              JobStatus = "paused"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// PausePolicy decides what happens to in-flight pipelines when a job is paused.
type PausePolicy string

const (
	// PauseDrain lets in-flight pipelines finish and keeps their results.
	PauseDrain PausePolicy = "drain"
	// PauseAbandon cancels in-flight pipelines; their results are discarded.
	PauseAbandon PausePolicy = "abandon"
)

// Concurrency bounds and the default terminal-status policy threshold.
const (
	MinConcurrency          = 1
	MaxConcurrency          = 10
	DefaultConcurrency      = 5
	DefaultSuccessThreshold = 0.8
)

// JobConfig is the per-batch processing configuration.
type JobConfig struct {
	Concurrency      int         `json:"concurrency"`
	EnabledStages    []string    `json:"enabled_stages,omitempty"`
	Provider         string      `json:"provider,omitempty"`
	RetryBudget      int         `json:"retry_budget"`
	SuccessThreshold float64     `json:"success_threshold"`
	PausePolicy      PausePolicy `json:"pause_policy,omitempty"`
}

// Normalized returns a copy with concurrency clamped to [MinConcurrency,
// MaxConcurrency] and defaults applied to unset fields.
func (c JobConfig) Normalized() JobConfig {
	if c.Concurrency < MinConcurrency {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency > MaxConcurrency {
		c.Concurrency = MaxConcurrency
	}
	if c.SuccessThreshold <= 0 || c.SuccessThreshold > 1 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.PausePolicy == "" {
		c.PausePolicy = PauseDrain
	}
	if len(c.EnabledStages) == 0 {
		c.EnabledStages = append([]string(nil), StageOrder...)
	}
	return c
}

// StageEnabled reports whether a stage is in the enabled set.
func (c JobConfig) StageEnabled(stage string) bool {
	for _, s := range c.EnabledStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Counters tracks batch-level aggregation. Duplicates count toward Processed
// but are excluded from the success-rate arithmetic on both sides.
type Counters struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Progress derives the 0-100 batch progress from the counters. It is never
// stored independently.
func (c Counters) Progress() int {
	if c.Total == 0 {
		return 0
	}
	return int(math.Round(float64(c.Processed) / float64(c.Total) * 100))
}

// SuccessRate is succeeded over total minus duplicates. Returns 0 when the
// denominator is empty.
func (c Counters) SuccessRate() float64 {
	denom := c.Total - c.Duplicates
	if denom <= 0 {
		return 0
	}
	return float64(c.Succeeded) / float64(denom)
}

// Consistent checks the counter invariants. Every component must be
// non-negative; the sum identity alone would accept offsetting drift.
func (c Counters) Consistent() bool {
	return c.Processed == c.Succeeded+c.Failed+c.Duplicates &&
		c.Succeeded >= 0 && c.Failed >= 0 && c.Duplicates >= 0 &&
		c.Processed <= c.Total
}

// Done reports whether every prospect has reached a terminal outcome.
func (c Counters) Done() bool {
	return c.Total > 0 && c.Processed == c.Total
}

// BatchJob is the orchestration unit grouping prospects under one
// concurrency/config policy.
type BatchJob struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaign_id"`
	Config      JobConfig  `json:"config"`
	Counters    Counters   `json:"counters"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TerminalStatus applies the success-rate threshold policy to finished
// counters: no successes at all means failed; at or above the threshold means
// completed; anything in between completed with errors.
func TerminalStatus(c Counters, threshold float64) JobStatus {
	if c.Succeeded == 0 {
		return JobStatusFailed
	}
	if c.SuccessRate() >= threshold {
		return JobStatusCompleted
	}
	return JobStatusCompletedWithErrors
}
