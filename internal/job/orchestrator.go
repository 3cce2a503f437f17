package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

// EntityRunner executes the enrichment pipeline for one prospect. Satisfied
// by pipeline.Runner.
type EntityRunner interface {
	Run(ctx context.Context, jobID string, p *model.Prospect, cfg model.JobConfig) model.EntityOutcome
}

// Publisher is the progress fan-out surface. Satisfied by
// broadcast.Broadcaster.
type Publisher interface {
	Publish(jobID string, event model.ProgressEvent)
}

// ExportFunc produces the downstream artifact for a terminal batch. Invoked
// exactly once per terminal batch.
type ExportFunc func(ctx context.Context, job model.BatchJob, prospects []model.Prospect) (string, error)

// Orchestrator fans a batch out into bounded-concurrency per-prospect
// pipelines and aggregates their outcomes into the batch terminal status.
type Orchestrator struct {
	store    store.Store
	bus      Publisher
	runner   EntityRunner
	registry *Registry
	export   ExportFunc
}

// NewOrchestrator wires the orchestrator. export may be nil when no
// downstream artifact is wanted.
func NewOrchestrator(st store.Store, bus Publisher, runner EntityRunner, registry *Registry, export ExportFunc) *Orchestrator {
	return &Orchestrator{store: st, bus: bus, runner: runner, registry: registry, export: export}
}

// Submit creates the batch job in pending, persists it with its prospects,
// and starts dispatch in the background. Returns the job ID immediately.
func (o *Orchestrator) Submit(ctx context.Context, campaignID string, prospects []model.Prospect, cfg model.JobConfig) (string, error) {
	if len(prospects) == 0 {
		return "", eris.New("job: empty batch")
	}
	cfg = cfg.Normalized()

	now := time.Now().UTC()
	jobID := uuid.NewString()
	batch := &model.BatchJob{
		ID:         jobID,
		CampaignID: campaignID,
		Config:     cfg,
		Status:     model.JobStatusPending,
		Counters:   model.Counters{Total: len(prospects)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	refs := make([]*model.Prospect, len(prospects))
	for i := range prospects {
		prospects[i].BatchID = jobID
		if prospects[i].CampaignID == "" {
			prospects[i].CampaignID = campaignID
		}
		if prospects[i].ID == "" {
			prospects[i].ID = uuid.NewString()
		}
		prospects[i].Status = model.ProspectStatusPending
		if prospects[i].CreatedAt.IsZero() {
			prospects[i].CreatedAt = now
		}
		prospects[i].UpdatedAt = now
		refs[i] = &prospects[i]
	}

	if err := o.store.CreateBatch(ctx, batch); err != nil {
		return "", err
	}
	if err := o.store.CreateProspects(ctx, prospects); err != nil {
		return "", err
	}

	state := newJobState(batch, refs)
	o.registry.add(state)

	zap.L().Info("batch submitted",
		zap.String("job_id", jobID),
		zap.String("campaign_id", campaignID),
		zap.Int("total", len(prospects)),
		zap.Int("concurrency", cfg.Concurrency))

	go o.run(state, refs)
	return jobID, nil
}

// run flips the job to running and dispatches every pending prospect.
func (o *Orchestrator) run(state *jobState, prospects []*model.Prospect) {
	state.mu.Lock()
	if state.job.Status != model.JobStatusPending && state.job.Status != model.JobStatusRunning {
		state.mu.Unlock()
		return
	}
	state.job.Status = model.JobStatusRunning
	now := time.Now().UTC()
	if state.job.StartedAt == nil {
		state.job.StartedAt = &now
	}
	state.job.UpdatedAt = now
	jobID := state.job.ID
	cfg := state.job.Config
	state.mu.Unlock()

	if err := o.store.UpdateBatchStatus(state.ctx, jobID, model.JobStatusRunning); err != nil {
		zap.L().Error("persist running status failed", zap.String("job_id", jobID), zap.Error(err))
	}

	o.dispatch(state, prospects, cfg)
}

// dispatch runs the given prospects through the concurrency gate. It blocks
// until every launched pipeline has returned. Used for both the initial batch
// and the retry subset.
func (o *Orchestrator) dispatch(state *jobState, prospects []*model.Prospect, cfg model.JobConfig) {
	jobID := state.job.ID

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)

	for _, p := range prospects {
		p := p
		g.Go(func() error {
			// the pause/terminal gate sits inside the concurrency slot so a
			// pause can never let an extra pipeline start
			runCtx, ok := state.waitDispatch()
			if !ok {
				return nil
			}
			outcome := o.runner.Run(runCtx, jobID, p, cfg)
			o.recordOutcome(state, outcome)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// recordOutcome folds one pipeline result into the batch counters under the
// job mutex, publishes batch progress, and finalizes the batch when the last
// prospect lands. Outcomes arriving after the job went terminal (cancel
// races) are discarded.
func (o *Orchestrator) recordOutcome(state *jobState, outcome model.EntityOutcome) {
	state.mu.Lock()
	if state.job.Status.Terminal() {
		state.mu.Unlock()
		return
	}

	c := &state.job.Counters
	c.Processed++
	switch outcome {
	case model.OutcomeCompleted:
		c.Succeeded++
	case model.OutcomeDuplicate:
		c.Duplicates++
	default:
		c.Failed++
	}
	state.job.UpdatedAt = time.Now().UTC()

	jobID := state.job.ID
	counters := *c
	done := c.Done()
	state.mu.Unlock()

	if err := o.store.UpdateBatchCounters(state.ctx, jobID, counters); err != nil {
		zap.L().Error("persist counters failed", zap.String("job_id", jobID), zap.Error(err))
	}
	o.bus.Publish(jobID, model.BatchProgressEvent(jobID, counters))

	if done {
		o.finalize(state)
	}
}

// finalize applies the terminal-status policy, persists it, publishes the
// terminal event, and invokes the export callback exactly once.
func (o *Orchestrator) finalize(state *jobState) {
	state.mu.Lock()
	if state.job.Status.Terminal() {
		state.mu.Unlock()
		return
	}
	status := model.TerminalStatus(state.job.Counters, state.job.Config.SuccessThreshold)
	state.job.Status = status
	now := time.Now().UTC()
	state.job.UpdatedAt = now
	state.job.CompletedAt = &now
	state.completedAt = now

	jobID := state.job.ID
	rate := state.job.Counters.SuccessRate()
	jobCopy := *state.job
	state.cond.Broadcast()
	state.mu.Unlock()

	if err := o.store.UpdateBatchStatus(state.ctx, jobID, status); err != nil {
		zap.L().Error("persist terminal status failed", zap.String("job_id", jobID), zap.Error(err))
	}

	zap.L().Info("batch terminal",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		zap.Float64("success_rate", rate))

	o.runExport(state, jobCopy)
	o.bus.Publish(jobID, model.BatchTerminalEvent(jobID, status, rate))
}

// runExport invokes the export callback, guarded so two pipelines completing
// simultaneously as the last of a batch can never trigger it twice.
func (o *Orchestrator) runExport(state *jobState, jobCopy model.BatchJob) {
	if o.export == nil {
		return
	}
	if !state.exported.CompareAndSwap(false, true) {
		return
	}

	state.mu.Lock()
	prospects := make([]model.Prospect, 0, len(state.prospects))
	for _, p := range state.prospects {
		prospects = append(prospects, *p)
	}
	state.mu.Unlock()

	location, err := o.export(context.Background(), jobCopy, prospects)
	if err != nil {
		zap.L().Error("export callback failed", zap.String("job_id", jobCopy.ID), zap.Error(err))
		return
	}
	zap.L().Info("batch exported",
		zap.String("job_id", jobCopy.ID),
		zap.String("artifact", location))
}
