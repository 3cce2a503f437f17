package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/proxycurl"
)

type fakeProxycurl struct {
	profile    *proxycurl.Profile
	profileErr error
	resolution *proxycurl.EmailResolution
	resolveErr error

	profileCalls int
	resolveCalls int
}

func (f *fakeProxycurl) GetProfile(ctx context.Context, linkedinURL string) (*proxycurl.Profile, error) {
	f.profileCalls++
	return f.profile, f.profileErr
}

func (f *fakeProxycurl) ResolveByEmail(ctx context.Context, email string) (*proxycurl.EmailResolution, error) {
	f.resolveCalls++
	return f.resolution, f.resolveErr
}

func profileStageContext(p *model.Prospect) *StageContext {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	return &StageContext{Prospect: p, Retry: retry}
}

func TestProfileStage_WithLinkedInURL(t *testing.T) {
	client := &fakeProxycurl{
		profile: &proxycurl.Profile{
			FullName: "Jane Doe",
			Headline: "CTO at Acme",
			City:     "Berlin",
			Country:  "Germany",
			Experiences: []proxycurl.Experience{
				{Company: "Acme", Title: "CTO"},
			},
		},
	}
	stage := NewProfileStage(client, 30*time.Second)

	p := &model.Prospect{ID: "p-1", Email: "jane@acme.com", LinkedInURL: "https://linkedin.com/in/jane"}
	out := stage.Run(context.Background(), profileStageContext(p))

	require.Equal(t, StageSucceeded, out.Status)
	assert.Zero(t, client.resolveCalls)

	var result ProfileResult
	require.NoError(t, json.Unmarshal(out.Data, &result))
	assert.Equal(t, "Jane Doe", result.FullName)
	assert.Equal(t, "Berlin, Germany", result.Location)
	assert.Equal(t, "CTO at Acme", result.CurrentRole)
}

func TestProfileStage_ResolvesFromEmail(t *testing.T) {
	client := &fakeProxycurl{
		resolution: &proxycurl.EmailResolution{URL: "https://linkedin.com/in/jane"},
		profile:    &proxycurl.Profile{FullName: "Jane Doe"},
	}
	stage := NewProfileStage(client, 30*time.Second)

	p := &model.Prospect{ID: "p-1", Email: "jane@acme.com"}
	out := stage.Run(context.Background(), profileStageContext(p))

	require.Equal(t, StageSucceeded, out.Status)
	assert.Equal(t, 1, client.resolveCalls)
	assert.Equal(t, 1, client.profileCalls)
}

func TestProfileStage_NoReferenceIsSkipped(t *testing.T) {
	client := &fakeProxycurl{resolveErr: proxycurl.ErrNotFound}
	stage := NewProfileStage(client, 30*time.Second)

	p := &model.Prospect{ID: "p-1", Email: "jane@acme.com"}
	out := stage.Run(context.Background(), profileStageContext(p))

	assert.Equal(t, StageSkipped, out.Status)
	assert.Zero(t, client.profileCalls)
}

func TestProfileStage_ProviderErrorFails(t *testing.T) {
	client := &fakeProxycurl{profileErr: eris.New("provider melted")}
	stage := NewProfileStage(client, 30*time.Second)

	p := &model.Prospect{ID: "p-1", LinkedInURL: "https://linkedin.com/in/jane"}
	out := stage.Run(context.Background(), profileStageContext(p))

	require.Equal(t, StageFailed, out.Status)
	assert.Error(t, out.Err)
}
