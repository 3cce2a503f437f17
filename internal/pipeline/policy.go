package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// Policy holds the tunable stage behavior: progress checkpoint weights,
// per-stage timeout overrides, and prompt templates. Loaded from a YAML file;
// everything has a working default.
type Policy struct {
	Checkpoints Checkpoints    `yaml:"checkpoints"`
	Timeouts    map[string]int `yaml:"timeouts"` // stage name -> seconds
	Prompts     Prompts        `yaml:"prompts"`
}

// Checkpoints are the per-stage progress values. They reflect stage cost
// weighting, not equal division.
type Checkpoints struct {
	Start        int `yaml:"start"`
	Profile      int `yaml:"profile"`
	Organization int `yaml:"organization"`
	Technology   int `yaml:"technology"`
	Synthesis    int `yaml:"synthesis"`
}

// Prompts are the generative-text templates used by the organization and
// synthesis stages.
type Prompts struct {
	OrganizationSummary string `yaml:"organization_summary"`
	Synthesis           string `yaml:"synthesis"`
}

const defaultOrganizationPrompt = `Summarize what this company does in 3-4 sentences for a sales representative preparing cold outreach. Focus on the product, the market served, and anything suggesting company size or maturity. Website content follows:`

const defaultSynthesisPrompt = `Write a short briefing (5-8 sentences) about this prospect for a sales representative, combining the partial research below. Cover who they are, what their company does, and any technology signals relevant to outreach. Be factual; say nothing the data does not support.`

// DefaultPolicy returns the built-in stage policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Checkpoints: Checkpoints{
			Start:        10,
			Profile:      25,
			Organization: 45,
			Technology:   65,
			Synthesis:    85,
		},
		Timeouts: map[string]int{
			model.StageProfile:      30,
			model.StageOrganization: 120,
			model.StageTechnology:   60,
			model.StageSynthesis:    120,
		},
		Prompts: Prompts{
			OrganizationSummary: defaultOrganizationPrompt,
			Synthesis:           defaultSynthesisPrompt,
		},
	}
}

// LoadPolicy reads a YAML policy file and merges it over the defaults. An
// empty path returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read policy %s", path)
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse policy %s", path)
	}

	if override.Checkpoints.Start > 0 {
		policy.Checkpoints.Start = override.Checkpoints.Start
	}
	if override.Checkpoints.Profile > 0 {
		policy.Checkpoints.Profile = override.Checkpoints.Profile
	}
	if override.Checkpoints.Organization > 0 {
		policy.Checkpoints.Organization = override.Checkpoints.Organization
	}
	if override.Checkpoints.Technology > 0 {
		policy.Checkpoints.Technology = override.Checkpoints.Technology
	}
	if override.Checkpoints.Synthesis > 0 {
		policy.Checkpoints.Synthesis = override.Checkpoints.Synthesis
	}
	for stage, secs := range override.Timeouts {
		if secs > 0 {
			policy.Timeouts[stage] = secs
		}
	}
	if override.Prompts.OrganizationSummary != "" {
		policy.Prompts.OrganizationSummary = override.Prompts.OrganizationSummary
	}
	if override.Prompts.Synthesis != "" {
		policy.Prompts.Synthesis = override.Prompts.Synthesis
	}
	return policy, nil
}

// Checkpoint returns the progress value to set after the named stage.
func (p *Policy) Checkpoint(stage string) int {
	switch stage {
	case model.StageProfile:
		return p.Checkpoints.Profile
	case model.StageOrganization:
		return p.Checkpoints.Organization
	case model.StageTechnology:
		return p.Checkpoints.Technology
	case model.StageSynthesis:
		return p.Checkpoints.Synthesis
	default:
		return p.Checkpoints.Start
	}
}

// Timeout returns the stage timeout, falling back to the given default when
// the policy has no entry.
func (p *Policy) Timeout(stage string, fallback time.Duration) time.Duration {
	if secs, ok := p.Timeouts[stage]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
