package model

import "time"

// EventType identifies the closed set of progress event variants.
type EventType string

const (
	EventQueued         EventType = "queued"
	EventStageProgress  EventType = "stage_progress"
	EventEntityTerminal EventType = "entity_terminal"
	EventBatchProgress  EventType = "batch_progress"
	EventBatchTerminal  EventType = "batch_terminal"
	EventHeartbeat      EventType = "heartbeat"
)

// ProgressEvent is a single observer-channel event. Only the fields relevant
// to the variant are populated; observers treat the stream as partially
// ordered, keyed by ProspectID.
type ProgressEvent struct {
	Type        EventType     `json:"type"`
	JobID       string        `json:"job_id,omitempty"`
	ProspectID  string        `json:"prospect_id,omitempty"`
	Stage       string        `json:"stage,omitempty"`
	Pct         int           `json:"pct,omitempty"`
	Outcome     EntityOutcome `json:"outcome,omitempty"`
	Status      JobStatus     `json:"status,omitempty"`
	Progress    int           `json:"progress,omitempty"`
	SuccessRate float64       `json:"success_rate,omitempty"`
	Message     string        `json:"message,omitempty"`
	At          time.Time     `json:"at"`
}

// QueuedEvent announces that a prospect has been accepted for processing.
func QueuedEvent(jobID, prospectID string) ProgressEvent {
	return ProgressEvent{Type: EventQueued, JobID: jobID, ProspectID: prospectID, At: time.Now().UTC()}
}

// StageProgressEvent reports a per-prospect checkpoint after a stage.
func StageProgressEvent(jobID, prospectID, stage string, pct int) ProgressEvent {
	return ProgressEvent{Type: EventStageProgress, JobID: jobID, ProspectID: prospectID, Stage: stage, Pct: pct, At: time.Now().UTC()}
}

// EntityTerminalEvent reports a prospect's final outcome.
func EntityTerminalEvent(jobID, prospectID string, outcome EntityOutcome) ProgressEvent {
	return ProgressEvent{Type: EventEntityTerminal, JobID: jobID, ProspectID: prospectID, Outcome: outcome, At: time.Now().UTC()}
}

// BatchProgressEvent reports aggregate counters after a prospect finishes.
func BatchProgressEvent(jobID string, c Counters) ProgressEvent {
	return ProgressEvent{Type: EventBatchProgress, JobID: jobID, Progress: c.Progress(), At: time.Now().UTC()}
}

// BatchTerminalEvent reports the batch's terminal status and success rate.
func BatchTerminalEvent(jobID string, status JobStatus, successRate float64) ProgressEvent {
	return ProgressEvent{Type: EventBatchTerminal, JobID: jobID, Status: status, SuccessRate: successRate, At: time.Now().UTC()}
}

// HeartbeatEvent keeps long-lived observer connections alive.
func HeartbeatEvent() ProgressEvent {
	return ProgressEvent{Type: EventHeartbeat, At: time.Now().UTC()}
}
