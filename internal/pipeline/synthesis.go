package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/anthropic"
)

// SynthesisResult is the persisted output of the synthesis stage.
type SynthesisResult struct {
	Narrative string `json:"narrative"`
	Model     string `json:"model"`
}

// SynthesisConfig tunes the synthesis stage.
type SynthesisConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Prompt    string
}

// SynthesisStage joins the accumulated partial results and the bare prospect
// fields into one outreach narrative. It requires only the core fields, never
// a successful prior stage.
type SynthesisStage struct {
	llm anthropic.Client
	cfg SynthesisConfig
}

// NewSynthesisStage builds the synthesis stage executor.
func NewSynthesisStage(llm anthropic.Client, cfg SynthesisConfig) *SynthesisStage {
	return &SynthesisStage{llm: llm, cfg: cfg}
}

func (s *SynthesisStage) Name() string { return model.StageSynthesis }

func (s *SynthesisStage) Run(ctx context.Context, sc *StageContext) StageOutcome {
	input := buildSynthesisInput(sc.Prospect)
	if input == "" {
		return Skipped("no prospect fields to synthesize from")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	retry := sc.Retry
	retry.OnRetry = resilience.RetryLogger("anthropic", "synthesize")

	msg, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.Model,
			MaxTokens: s.cfg.MaxTokens,
			System:    s.cfg.Prompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: input},
			},
		})
	})
	if err != nil {
		return Failed(eris.Wrap(err, "synthesize narrative"))
	}
	if msg.Text == "" {
		return Failed(eris.New("empty synthesis response"))
	}
	msg.Usage.LogCost(msg.Model, "synthesis")

	data, err := json.Marshal(SynthesisResult{Narrative: msg.Text, Model: msg.Model})
	if err != nil {
		return Failed(eris.Wrap(err, "marshal synthesis result"))
	}
	return Succeeded(data)
}

// buildSynthesisInput renders the bare prospect fields plus every accumulated
// stage result as a text block for the model.
func buildSynthesisInput(p *model.Prospect) string {
	var sb strings.Builder

	writeField := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", label, value)
		}
	}
	writeField("Name", p.FullName())
	writeField("Email", p.Email)
	writeField("Title", p.Title)
	writeField("Company", p.Company)
	writeField("Website", p.Website)

	if sb.Len() == 0 && len(p.Results) == 0 {
		return ""
	}

	for _, stage := range model.StageOrder {
		if stage == model.StageSynthesis {
			continue
		}
		raw, ok := p.Results[stage]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s research\n%s\n", stage, string(raw))
	}
	return sb.String()
}
