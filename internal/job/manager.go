package job

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

// Manager mediates lifecycle requests against running batches. All
// transitions are guarded; an invalid request returns a PreconditionError
// synchronously and changes nothing.
type Manager struct {
	registry *Registry
	store    store.Store
	orch     *Orchestrator
	bus      Publisher
}

// NewManager wires the lifecycle manager.
func NewManager(registry *Registry, st store.Store, orch *Orchestrator, bus Publisher) *Manager {
	return &Manager{registry: registry, store: st, orch: orch, bus: bus}
}

// Get returns the job record, preferring the live in-memory state and falling
// back to storage for evicted jobs.
func (m *Manager) Get(ctx context.Context, jobID string) (*model.BatchJob, error) {
	if state, ok := m.registry.get(jobID); ok {
		job := state.snapshot()
		return &job, nil
	}
	job, err := m.store.GetBatch(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns jobs matching the filter from storage.
func (m *Manager) List(ctx context.Context, filter store.BatchFilter) ([]model.BatchJob, error) {
	return m.store.ListBatches(ctx, filter)
}

// Pause halts new dispatch for a running job. In-flight pipelines continue
// under the drain policy; under abandon their context is cancelled and they
// land as failed.
func (m *Manager) Pause(ctx context.Context, jobID string) error {
	state, ok := m.registry.get(jobID)
	if !ok {
		return ErrNotFound
	}

	state.mu.Lock()
	if state.job.Status != model.JobStatusRunning {
		defer state.mu.Unlock()
		return precondition("pause", state.job.Status, "")
	}
	state.job.Status = model.JobStatusPaused
	state.job.UpdatedAt = time.Now().UTC()
	abandon := state.job.Config.PausePolicy == model.PauseAbandon
	if abandon {
		state.runCancel()
	}
	state.mu.Unlock()

	if err := m.store.UpdateBatchStatus(ctx, jobID, model.JobStatusPaused); err != nil {
		zap.L().Error("persist paused status failed", zap.String("job_id", jobID), zap.Error(err))
	}
	zap.L().Info("batch paused", zap.String("job_id", jobID), zap.Bool("abandon_in_flight", abandon))
	return nil
}

// Resume restarts dispatch for a paused job.
func (m *Manager) Resume(ctx context.Context, jobID string) error {
	state, ok := m.registry.get(jobID)
	if !ok {
		return ErrNotFound
	}

	state.mu.Lock()
	if state.job.Status != model.JobStatusPaused {
		defer state.mu.Unlock()
		return precondition("resume", state.job.Status, "")
	}
	state.job.Status = model.JobStatusRunning
	state.job.UpdatedAt = time.Now().UTC()
	if state.runCtx.Err() != nil {
		state.runCtx, state.runCancel = context.WithCancel(state.ctx)
	}
	state.cond.Broadcast()
	state.mu.Unlock()

	if err := m.store.UpdateBatchStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		zap.L().Error("persist running status failed", zap.String("job_id", jobID), zap.Error(err))
	}
	zap.L().Info("batch resumed", zap.String("job_id", jobID))
	return nil
}

// Cancel terminally stops a pending, running, or paused job. Not-yet-started
// prospects are never dispatched; in-flight pipelines finish cooperatively
// and their outcomes are discarded.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	state, ok := m.registry.get(jobID)
	if !ok {
		return ErrNotFound
	}

	state.mu.Lock()
	switch state.job.Status {
	case model.JobStatusPending, model.JobStatusRunning, model.JobStatusPaused:
	default:
		defer state.mu.Unlock()
		return precondition("cancel", state.job.Status, "")
	}
	state.job.Status = model.JobStatusCancelled
	now := time.Now().UTC()
	state.job.UpdatedAt = now
	state.job.CompletedAt = &now
	state.completedAt = now
	state.cond.Broadcast()
	state.mu.Unlock()
	state.cancel()

	if err := m.store.UpdateBatchStatus(ctx, jobID, model.JobStatusCancelled); err != nil {
		zap.L().Error("persist cancelled status failed", zap.String("job_id", jobID), zap.Error(err))
	}
	m.bus.Publish(jobID, model.BatchTerminalEvent(jobID, model.JobStatusCancelled, 0))
	zap.L().Info("batch cancelled", zap.String("job_id", jobID))
	return nil
}

// Retry resets the failed prospects of a terminal batch to pending and
// re-dispatches exactly that subset. Completed and duplicate prospects are
// untouched. Cancelled batches are not retryable: cancel discards in-flight
// outcomes and leaves never-dispatched prospects pending, so the failed
// subset no longer matches the counters.
func (m *Manager) Retry(ctx context.Context, jobID string) error {
	state, ok := m.registry.get(jobID)
	if !ok {
		return ErrNotFound
	}

	state.mu.Lock()
	if !state.job.Status.Terminal() || state.job.Status == model.JobStatusCancelled {
		defer state.mu.Unlock()
		return precondition("retry", state.job.Status, "")
	}
	if state.job.Counters.Failed == 0 {
		defer state.mu.Unlock()
		return precondition("retry", state.job.Status, "no failed prospects")
	}

	var subset []*model.Prospect
	var ids []string
	for _, p := range state.prospects {
		if p.Status != model.ProspectStatusFailed {
			continue
		}
		p.Status = model.ProspectStatusPending
		p.Progress = 0
		p.Errors = nil
		p.RetryCount++
		p.UpdatedAt = time.Now().UTC()
		subset = append(subset, p)
		ids = append(ids, p.ID)
	}

	n := len(subset)
	state.job.Counters.Failed -= n
	state.job.Counters.Processed -= n
	state.job.Status = model.JobStatusRunning
	state.job.UpdatedAt = time.Now().UTC()
	state.job.CompletedAt = nil
	state.completedAt = time.Time{}
	state.exported.Store(false)

	// an abandon-policy pause spends the dispatch context; give the retry a
	// fresh one
	if state.runCtx.Err() != nil {
		state.runCtx, state.runCancel = context.WithCancel(state.ctx)
	}

	cfg := state.job.Config
	counters := state.job.Counters
	state.mu.Unlock()

	if err := m.store.ResetProspects(ctx, jobID, ids); err != nil {
		return err
	}
	if err := m.store.UpdateBatchCounters(ctx, jobID, counters); err != nil {
		zap.L().Error("persist counters failed", zap.String("job_id", jobID), zap.Error(err))
	}
	if err := m.store.UpdateBatchStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		zap.L().Error("persist running status failed", zap.String("job_id", jobID), zap.Error(err))
	}

	zap.L().Info("batch retry", zap.String("job_id", jobID), zap.Int("reset", n))
	go m.orch.dispatch(state, subset, cfg)
	return nil
}
