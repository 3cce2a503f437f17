package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/builtwith"
)

// maxTechnologies caps how many detected technologies are persisted.
const maxTechnologies = 50

// TechnologyResult is the persisted output of the technology stage.
type TechnologyResult struct {
	Domain       string           `json:"domain"`
	Technologies []TechnologyItem `json:"technologies"`
}

// TechnologyItem is one detected technology.
type TechnologyItem struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// TechnologyStage looks up the organization's technology footprint.
type TechnologyStage struct {
	client  builtwith.Client
	timeout time.Duration
}

// NewTechnologyStage builds the technology stage executor.
func NewTechnologyStage(client builtwith.Client, timeout time.Duration) *TechnologyStage {
	return &TechnologyStage{client: client, timeout: timeout}
}

func (s *TechnologyStage) Name() string { return model.StageTechnology }

func (s *TechnologyStage) Run(ctx context.Context, sc *StageContext) StageOutcome {
	if sc.Domain == "" {
		return Skipped("no organization domain derivable")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	retry := sc.Retry
	retry.OnRetry = resilience.RetryLogger("builtwith", "lookup")

	footprint, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*builtwith.Footprint, error) {
		return s.client.Lookup(ctx, sc.Domain)
	})
	if errors.Is(err, builtwith.ErrNotFound) {
		return Skipped("no technology data for domain")
	}
	if err != nil {
		return Failed(eris.Wrap(err, "technology lookup"))
	}

	result := TechnologyResult{Domain: sc.Domain}
	for _, tech := range footprint.Technologies {
		result.Technologies = append(result.Technologies, TechnologyItem{
			Name:     tech.Name,
			Category: tech.Category,
		})
		if len(result.Technologies) >= maxTechnologies {
			break
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return Failed(eris.Wrap(err, "marshal technology result"))
	}
	return Succeeded(data)
}
