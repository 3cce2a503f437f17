// Package pipeline runs the per-prospect enrichment stages in fixed order and
// reduces their outcomes to a terminal prospect status.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
)

// StageStatus classifies a stage run.
type StageStatus int

const (
	// StageSucceeded means the stage produced usable data.
	StageSucceeded StageStatus = iota
	// StageSkipped means a prerequisite was missing; not counted against the
	// prospect.
	StageSkipped
	// StageFailed means the prerequisite was present but the call failed after
	// retries.
	StageFailed
)

// StageOutcome is the result of one stage run.
type StageOutcome struct {
	Status     StageStatus
	Data       json.RawMessage
	SkipReason string
	Err        error
}

// Succeeded builds a successful outcome carrying the stage's output.
func Succeeded(data json.RawMessage) StageOutcome {
	return StageOutcome{Status: StageSucceeded, Data: data}
}

// Skipped builds an outcome for a stage whose prerequisite is absent.
func Skipped(reason string) StageOutcome {
	return StageOutcome{Status: StageSkipped, SkipReason: reason}
}

// Failed builds an outcome for a stage that errored after retries.
func Failed(err error) StageOutcome {
	return StageOutcome{Status: StageFailed, Err: err}
}

// StageContext carries the prospect and shared per-run inputs into each stage.
type StageContext struct {
	Prospect *model.Prospect
	// Domain is derived once per run from the website or email address.
	// Empty when no business domain could be derived.
	Domain string
	Retry  resilience.RetryConfig
}

// Stage is one enrichment step. Implementations own their external-call
// timeout and transient retry; they never mutate shared state beyond the
// returned outcome.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *StageContext) StageOutcome
}
