package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/anthropic"
)

type fakeLLM struct {
	response *anthropic.MessageResponse
	err      error
	lastReq  anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	return f.response, f.err
}

func synthesisStage(llm anthropic.Client) *SynthesisStage {
	return NewSynthesisStage(llm, SynthesisConfig{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Timeout:   30 * time.Second,
		Prompt:    "write a briefing",
	})
}

func TestSynthesisStage_CombinesPartialResults(t *testing.T) {
	llm := &fakeLLM{response: &anthropic.MessageResponse{Text: "a solid briefing", Model: "claude-haiku-4-5-20251001"}}
	stage := synthesisStage(llm)

	p := &model.Prospect{
		ID:        "p-1",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@acme.com",
		Company:   "Acme",
	}
	p.SetResult(model.StageProfile, json.RawMessage(`{"headline":"CTO"}`))
	p.SetResult(model.StageOrganization, json.RawMessage(`{"summary":"builds things"}`))

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	out := stage.Run(context.Background(), &StageContext{Prospect: p, Retry: retry})

	require.Equal(t, StageSucceeded, out.Status)

	var result SynthesisResult
	require.NoError(t, json.Unmarshal(out.Data, &result))
	assert.Equal(t, "a solid briefing", result.Narrative)

	// the model saw the bare fields and both partial results
	input := llm.lastReq.Messages[0].Content
	assert.Contains(t, input, "Jane Doe")
	assert.Contains(t, input, "profile research")
	assert.Contains(t, input, "organization research")
	assert.Contains(t, input, "builds things")
}

func TestSynthesisStage_RunsOnBareFieldsOnly(t *testing.T) {
	llm := &fakeLLM{response: &anthropic.MessageResponse{Text: "thin briefing"}}
	stage := synthesisStage(llm)

	p := &model.Prospect{ID: "p-1", Email: "jane@acme.com"}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	out := stage.Run(context.Background(), &StageContext{Prospect: p, Retry: retry})

	assert.Equal(t, StageSucceeded, out.Status)
}

func TestSynthesisStage_NothingToSynthesizeIsSkipped(t *testing.T) {
	llm := &fakeLLM{}
	stage := synthesisStage(llm)

	p := &model.Prospect{ID: "p-1"}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	out := stage.Run(context.Background(), &StageContext{Prospect: p, Retry: retry})

	assert.Equal(t, StageSkipped, out.Status)
}

func TestSynthesisStage_EmptyResponseFails(t *testing.T) {
	llm := &fakeLLM{response: &anthropic.MessageResponse{Text: ""}}
	stage := synthesisStage(llm)

	p := &model.Prospect{ID: "p-1", Email: "jane@acme.com"}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	out := stage.Run(context.Background(), &StageContext{Prospect: p, Retry: retry})

	assert.Equal(t, StageFailed, out.Status)
}
