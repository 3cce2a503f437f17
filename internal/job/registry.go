package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// jobState is the authoritative in-memory record of one batch job. All field
// access goes through mu; the pause gate is a condition variable on the same
// mutex.
type jobState struct {
	mu   sync.Mutex
	cond *sync.Cond

	job       *model.BatchJob
	prospects []*model.Prospect

	// ctx spans the job's lifetime; cancel is the Cancel operation.
	ctx    context.Context
	cancel context.CancelFunc

	// runCtx is the context handed to in-flight pipelines. Under the abandon
	// pause policy it is cancelled on Pause and replaced on Resume.
	runCtx    context.Context
	runCancel context.CancelFunc

	exported    atomic.Bool
	completedAt time.Time
}

func newJobState(job *model.BatchJob, prospects []*model.Prospect) *jobState {
	ctx, cancel := context.WithCancel(context.Background())
	runCtx, runCancel := context.WithCancel(ctx)
	s := &jobState{
		job:       job,
		prospects: prospects,
		ctx:       ctx,
		cancel:    cancel,
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// snapshot returns a copy of the job record for read-only callers.
func (s *jobState) snapshot() model.BatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.job
}

// waitDispatch blocks while the job is paused and returns the context to run
// the next pipeline under. It returns false when the job reached a terminal
// status and dispatch must stop.
func (s *jobState) waitDispatch() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.job.Status == model.JobStatusPaused {
		s.cond.Wait()
	}
	if s.job.Status.Terminal() {
		return nil, false
	}
	return s.runCtx, true
}

// Registry tracks live job states and evicts terminal jobs after a retention
// window.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*jobState
	retention time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a Registry whose janitor evicts terminal jobs once they
// have been terminal for the retention window.
func NewRegistry(retention time.Duration) *Registry {
	r := &Registry{
		jobs:      make(map[string]*jobState),
		retention: retention,
		stop:      make(chan struct{}),
	}
	if retention > 0 {
		r.wg.Add(1)
		go r.janitor()
	}
	return r
}

func (r *Registry) add(state *jobState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[state.job.ID] = state
}

func (r *Registry) get(jobID string) (*jobState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.jobs[jobID]
	return state, ok
}

// List returns snapshots of every tracked job.
func (r *Registry) List() []model.BatchJob {
	r.mu.Lock()
	states := make([]*jobState, 0, len(r.jobs))
	for _, s := range r.jobs {
		states = append(states, s)
	}
	r.mu.Unlock()

	jobs := make([]model.BatchJob, 0, len(states))
	for _, s := range states {
		jobs = append(jobs, s.snapshot())
	}
	return jobs
}

// Close stops the janitor.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Registry) janitor() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictExpired(time.Now())
		}
	}
}

func (r *Registry) evictExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, state := range r.jobs {
		state.mu.Lock()
		expired := state.job.Status.Terminal() &&
			!state.completedAt.IsZero() &&
			now.Sub(state.completedAt) >= r.retention
		state.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			zap.L().Info("evicted terminal job from registry", zap.String("job_id", id))
		}
	}
}
