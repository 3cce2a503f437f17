package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

// Publisher is the progress fan-out surface the runner needs. Satisfied by
// broadcast.Broadcaster; publishing is fire-and-forget.
type Publisher interface {
	Publish(jobID string, event model.ProgressEvent)
}

// Runner executes the stage sequence for one prospect and writes the terminal
// prospect state. One Runner is shared by all workers of a batch.
type Runner struct {
	store  store.Store
	bus    Publisher
	stages []Stage
	policy *Policy
	retry  resilience.RetryConfig
}

// NewRunner builds a Runner over the given stage sequence.
func NewRunner(st store.Store, bus Publisher, stages []Stage, policy *Policy, retry resilience.RetryConfig) *Runner {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Runner{store: st, bus: bus, stages: stages, policy: policy, retry: retry}
}

// Run executes the pipeline for one prospect and returns its terminal
// outcome. A stage failure records an error and moves on to the next stage;
// only the final reduction decides the prospect status. Storage errors are
// fatal to this prospect alone.
func (r *Runner) Run(ctx context.Context, jobID string, p *model.Prospect, cfg model.JobConfig) model.EntityOutcome {
	log := zap.L().With(zap.String("job_id", jobID), zap.String("prospect_id", p.ID))

	dup, err := r.store.FindProspectByKey(ctx, p.CampaignID, model.EmailKey(p.Email))
	if err != nil {
		log.Error("natural key lookup failed", zap.Error(err))
		p.RecordError("pipeline", err)
		return r.finish(ctx, jobID, p, model.OutcomeFailed)
	}
	if dup != nil && dup.ID != p.ID {
		log.Info("duplicate prospect short-circuited",
			zap.String("existing_id", dup.ID),
			zap.String("existing_batch_id", dup.BatchID))
		return r.finish(ctx, jobID, p, model.OutcomeDuplicate)
	}

	r.bus.Publish(jobID, model.QueuedEvent(jobID, p.ID))
	p.Status = model.ProspectStatusProcessing
	p.Progress = r.policy.Checkpoints.Start
	r.write(ctx, p, log)

	sc := &StageContext{
		Prospect: p,
		Domain:   DeriveDomain(p),
		Retry:    r.retry.WithAttempts(cfg.RetryBudget),
	}

	succeeded := make(map[string]bool, len(r.stages))
	for _, stage := range r.stages {
		if ctx.Err() != nil {
			p.RecordError(stage.Name(), ctx.Err())
			log.Warn("pipeline cancelled mid-run", zap.String("stage", stage.Name()))
			return r.finish(ctx, jobID, p, model.OutcomeFailed)
		}
		if !cfg.StageEnabled(stage.Name()) {
			log.Debug("stage disabled by config", zap.String("stage", stage.Name()))
		} else {
			started := time.Now()
			out := stage.Run(ctx, sc)
			switch out.Status {
			case StageSucceeded:
				p.SetResult(stage.Name(), out.Data)
				succeeded[stage.Name()] = true
				log.Debug("stage succeeded",
					zap.String("stage", stage.Name()),
					zap.Duration("took", time.Since(started)))
			case StageSkipped:
				log.Debug("stage skipped",
					zap.String("stage", stage.Name()),
					zap.String("reason", out.SkipReason))
			case StageFailed:
				p.RecordError(stage.Name(), out.Err)
				log.Warn("stage failed",
					zap.String("stage", stage.Name()),
					zap.Duration("took", time.Since(started)),
					zap.Error(out.Err))
			}
		}

		p.Progress = r.policy.Checkpoint(stage.Name())
		r.write(ctx, p, log)
		r.bus.Publish(jobID, model.StageProgressEvent(jobID, p.ID, stage.Name(), p.Progress))
	}

	outcome := model.OutcomeFailed
	if cfg.StageEnabled(model.StageSynthesis) {
		if succeeded[model.StageSynthesis] {
			outcome = model.OutcomeCompleted
		}
	} else if len(succeeded) > 0 {
		outcome = model.OutcomeCompleted
	}
	return r.finish(ctx, jobID, p, outcome)
}

// finish sets the terminal prospect state, persists it, and publishes the
// terminal event.
func (r *Runner) finish(ctx context.Context, jobID string, p *model.Prospect, outcome model.EntityOutcome) model.EntityOutcome {
	log := zap.L().With(zap.String("job_id", jobID), zap.String("prospect_id", p.ID))

	switch outcome {
	case model.OutcomeCompleted:
		p.Status = model.ProspectStatusCompleted
		p.Progress = 100
	case model.OutcomeDuplicate:
		p.Status = model.ProspectStatusDuplicate
	default:
		p.Status = model.ProspectStatusFailed
		p.Progress = 100
	}
	r.write(ctx, p, log)
	r.bus.Publish(jobID, model.EntityTerminalEvent(jobID, p.ID, outcome))
	return outcome
}

// write persists the prospect, logging rather than propagating failures so a
// storage blip never corrupts the stage sequence. The terminal write is what
// matters; it goes through here as well and its loss is logged loudly.
func (r *Runner) write(ctx context.Context, p *model.Prospect, log *zap.Logger) {
	if err := r.store.UpdateProspect(ctx, p); err != nil {
		log.Error("prospect write failed",
			zap.String("status", string(p.Status)),
			zap.Error(err))
	}
}
