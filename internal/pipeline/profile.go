package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/proxycurl"
)

// ProfileResult is the persisted output of the profile stage.
type ProfileResult struct {
	FullName    string   `json:"full_name,omitempty"`
	Headline    string   `json:"headline,omitempty"`
	Occupation  string   `json:"occupation,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Location    string   `json:"location,omitempty"`
	CurrentRole string   `json:"current_role,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	ProfileURL  string   `json:"profile_url,omitempty"`
}

// ProfileStage looks up the prospect's person profile. When no profile URL is
// known it first tries to resolve one from the work email.
type ProfileStage struct {
	client  proxycurl.Client
	timeout time.Duration
}

// NewProfileStage builds the profile stage executor.
func NewProfileStage(client proxycurl.Client, timeout time.Duration) *ProfileStage {
	return &ProfileStage{client: client, timeout: timeout}
}

func (s *ProfileStage) Name() string { return model.StageProfile }

func (s *ProfileStage) Run(ctx context.Context, sc *StageContext) StageOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	retry := sc.Retry
	retry.OnRetry = resilience.RetryLogger("proxycurl", "profile")

	profileURL := sc.Prospect.LinkedInURL
	if profileURL == "" {
		res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*proxycurl.EmailResolution, error) {
			return s.client.ResolveByEmail(ctx, sc.Prospect.Email)
		})
		if errors.Is(err, proxycurl.ErrNotFound) {
			return Skipped("no profile reference")
		}
		if err != nil {
			return Failed(eris.Wrap(err, "resolve profile by email"))
		}
		profileURL = res.URL
		zap.L().Debug("resolved profile from email",
			zap.String("prospect_id", sc.Prospect.ID),
			zap.String("profile_url", profileURL))
	}

	profile, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*proxycurl.Profile, error) {
		return s.client.GetProfile(ctx, profileURL)
	})
	if errors.Is(err, proxycurl.ErrNotFound) {
		return Skipped("profile not found")
	}
	if err != nil {
		return Failed(eris.Wrap(err, "fetch profile"))
	}

	result := ProfileResult{
		FullName:   profile.FullName,
		Headline:   profile.Headline,
		Occupation: profile.Occupation,
		Summary:    profile.Summary,
		Skills:     profile.Skills,
		ProfileURL: profileURL,
	}
	if profile.City != "" || profile.Country != "" {
		result.Location = joinNonEmpty(", ", profile.City, profile.Country)
	}
	if len(profile.Experiences) > 0 {
		exp := profile.Experiences[0]
		result.CurrentRole = joinNonEmpty(" at ", exp.Title, exp.Company)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return Failed(eris.Wrap(err, "marshal profile result"))
	}
	return Succeeded(data)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
