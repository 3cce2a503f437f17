package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

// fakeStore stubs the two Store methods the runner touches. Calls to any
// other Store method panic via the embedded nil interface.
type fakeStore struct {
	store.Store
	mu       sync.Mutex
	existing *model.Prospect
	findErr  error
	updates  []model.Prospect
}

func (f *fakeStore) FindProspectByKey(ctx context.Context, campaignID, emailKey string) (*model.Prospect, error) {
	return f.existing, f.findErr
}

func (f *fakeStore) UpdateProspect(ctx context.Context, p *model.Prospect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *p)
	return nil
}

// fakeBus records published events.
type fakeBus struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (f *fakeBus) Publish(jobID string, ev model.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeBus) byType(t model.EventType) []model.ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ProgressEvent
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// scriptedStage returns a fixed outcome and counts its runs.
type scriptedStage struct {
	name    string
	outcome StageOutcome
	runs    int
}

func (s *scriptedStage) Name() string { return s.name }
func (s *scriptedStage) Run(ctx context.Context, sc *StageContext) StageOutcome {
	s.runs++
	return s.outcome
}

func fullStageSet(synthesisOutcome StageOutcome) []*scriptedStage {
	return []*scriptedStage{
		{name: model.StageProfile, outcome: Succeeded(json.RawMessage(`{"headline":"CTO"}`))},
		{name: model.StageOrganization, outcome: Succeeded(json.RawMessage(`{"summary":"builds things"}`))},
		{name: model.StageTechnology, outcome: Skipped("no technology data for domain")},
		{name: model.StageSynthesis, outcome: synthesisOutcome},
	}
}

func newTestRunner(st store.Store, bus Publisher, scripted []*scriptedStage) *Runner {
	stages := make([]Stage, len(scripted))
	for i, s := range scripted {
		stages[i] = s
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	return NewRunner(st, bus, stages, DefaultPolicy(), retry)
}

func testProspect() *model.Prospect {
	return &model.Prospect{
		ID:         "p-1",
		BatchID:    "batch-1",
		CampaignID: "camp-1",
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@acme.com",
		Status:     model.ProspectStatusPending,
	}
}

func TestRunner_AllStagesSucceed(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{"narrative":"a briefing"}`)))
	r := newTestRunner(st, bus, stages)

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeCompleted, outcome)
	assert.Equal(t, model.ProspectStatusCompleted, p.Status)
	assert.Equal(t, 100, p.Progress)
	assert.Contains(t, p.Results, model.StageProfile)
	assert.Contains(t, p.Results, model.StageSynthesis)
	assert.NotContains(t, p.Results, model.StageTechnology) // skipped
	assert.Empty(t, p.Errors)

	// checkpoints published in stage order
	progress := bus.byType(model.EventStageProgress)
	require.Len(t, progress, 4)
	assert.Equal(t, []int{25, 45, 65, 85}, []int{progress[0].Pct, progress[1].Pct, progress[2].Pct, progress[3].Pct})

	terminal := bus.byType(model.EventEntityTerminal)
	require.Len(t, terminal, 1)
	assert.Equal(t, model.OutcomeCompleted, terminal[0].Outcome)
}

func TestRunner_StageFailureDoesNotAbortRemainingStages(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{"narrative":"partial briefing"}`)))
	stages[0].outcome = Failed(eris.New("profile lookup exploded"))
	r := newTestRunner(st, bus, stages)

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	// synthesis still ran and succeeded, so the prospect completes
	assert.Equal(t, model.OutcomeCompleted, outcome)
	assert.Equal(t, 1, stages[3].runs)
	require.Len(t, p.Errors, 1)
	assert.Contains(t, p.Errors[0], "profile")
}

func TestRunner_SynthesisFailureFailsProspect(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Failed(eris.New("model unavailable")))
	r := newTestRunner(st, bus, stages)

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeFailed, outcome)
	assert.Equal(t, model.ProspectStatusFailed, p.Status)
	// partial results from earlier stages are retained
	assert.Contains(t, p.Results, model.StageProfile)
	require.NotEmpty(t, p.Errors)
}

func TestRunner_DuplicateShortCircuit(t *testing.T) {
	st := &fakeStore{existing: &model.Prospect{ID: "p-0", BatchID: "batch-0", Email: "jane@acme.com"}}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeDuplicate, outcome)
	assert.Equal(t, model.ProspectStatusDuplicate, p.Status)
	for _, s := range stages {
		assert.Zero(t, s.runs, "stage %s must not run for a duplicate", s.name)
	}

	terminal := bus.byType(model.EventEntityTerminal)
	require.Len(t, terminal, 1)
	assert.Equal(t, model.OutcomeDuplicate, terminal[0].Outcome)
}

func TestRunner_OwnRecordIsNotADuplicate(t *testing.T) {
	p := testProspect()
	st := &fakeStore{existing: p} // natural key lookup finds the prospect itself
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeCompleted, outcome)
	assert.Equal(t, 1, stages[0].runs)
}

func TestRunner_DisabledStageSkipped(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	cfg := model.JobConfig{
		EnabledStages: []string{model.StageProfile, model.StageSynthesis},
	}.Normalized()

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, cfg)

	assert.Equal(t, model.OutcomeCompleted, outcome)
	assert.Equal(t, 1, stages[0].runs)
	assert.Zero(t, stages[1].runs)
	assert.Zero(t, stages[2].runs)
	assert.Equal(t, 1, stages[3].runs)
}

func TestRunner_SynthesisDisabledAnySuccessCompletes(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	cfg := model.JobConfig{
		EnabledStages: []string{model.StageProfile},
	}.Normalized()

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, cfg)

	assert.Equal(t, model.OutcomeCompleted, outcome)
	assert.Zero(t, stages[3].runs)
}

func TestRunner_StorageLookupErrorFailsProspect(t *testing.T) {
	st := &fakeStore{findErr: eris.New("connection refused by database")}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	p := testProspect()
	outcome := r.Run(context.Background(), "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeFailed, outcome)
	for _, s := range stages {
		assert.Zero(t, s.runs)
	}
}

func TestRunner_CancelledContextFailsProspect(t *testing.T) {
	st := &fakeStore{}
	bus := &fakeBus{}
	stages := fullStageSet(Succeeded(json.RawMessage(`{}`)))
	r := newTestRunner(st, bus, stages)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testProspect()
	outcome := r.Run(ctx, "job-1", p, model.JobConfig{}.Normalized())

	assert.Equal(t, model.OutcomeFailed, outcome)
	for _, s := range stages {
		assert.Zero(t, s.runs)
	}
}
