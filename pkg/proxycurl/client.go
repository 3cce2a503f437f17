// Package proxycurl provides a client for the Proxycurl person-profile API.
package proxycurl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/giada-tronca/cold-outreach/internal/resilience"
)

// Client defines the Proxycurl operations used by the profile stage.
type Client interface {
	// GetProfile fetches a person profile by LinkedIn URL.
	GetProfile(ctx context.Context, linkedinURL string) (*Profile, error)
	// ResolveByEmail resolves a work email to a LinkedIn profile URL.
	ResolveByEmail(ctx context.Context, email string) (*EmailResolution, error)
}

// Profile is the parsed person-profile response.
type Profile struct {
	Publicidentifier string       `json:"public_identifier"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	FullName         string       `json:"full_name"`
	Headline         string       `json:"headline"`
	Occupation       string       `json:"occupation"`
	Summary          string       `json:"summary"`
	Country          string       `json:"country_full_name"`
	City             string       `json:"city"`
	Experiences      []Experience `json:"experiences"`
	Educations       []Education  `json:"education"`
	Skills           []string     `json:"skills"`
}

// Experience is a single position in a profile's work history.
type Experience struct {
	Company     string `json:"company"`
	CompanyURL  string `json:"company_linkedin_profile_url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Education is a single entry in a profile's education history.
type Education struct {
	School       string `json:"school"`
	DegreeName   string `json:"degree_name"`
	FieldOfStudy string `json:"field_of_study"`
}

// EmailResolution maps a work email to a profile URL.
type EmailResolution struct {
	URL             string `json:"url"`
	LastUpdated     string `json:"last_updated"`
	SimilarityScore float64 `json:"similarity_score"`
}

// ErrNotFound is returned when the API has no profile for the input.
var ErrNotFound = eris.New("proxycurl: profile not found")

// Option configures the Proxycurl client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (2 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Proxycurl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://nubela.co/proxycurl",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "proxycurl: rate limit")
		}
	}

	reqURL := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "proxycurl: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "proxycurl: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "proxycurl: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resilience.RetryableStatus(resp.StatusCode):
		return resilience.Transient(eris.Errorf("proxycurl: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resilience.Permanent(eris.Errorf("proxycurl: status %d", resp.StatusCode), "auth")
	default:
		return eris.Errorf("proxycurl: status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "proxycurl: unmarshal response")
	}
	return nil
}

func (c *httpClient) GetProfile(ctx context.Context, linkedinURL string) (*Profile, error) {
	query := url.Values{}
	query.Set("linkedin_profile_url", linkedinURL)
	query.Set("use_cache", "if-present")

	var profile Profile
	if err := c.get(ctx, "/api/v2/linkedin", query, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *httpClient) ResolveByEmail(ctx context.Context, email string) (*EmailResolution, error) {
	query := url.Values{}
	query.Set("work_email", email)

	var res EmailResolution
	if err := c.get(ctx, "/api/linkedin/profile/resolve/email", query, &res); err != nil {
		return nil, err
	}
	if res.URL == "" {
		return nil, ErrNotFound
	}
	return &res, nil
}
