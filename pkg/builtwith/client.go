// Package builtwith provides a client for the BuiltWith technology-lookup API.
package builtwith

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

// Client defines the BuiltWith operations used by the technology stage.
type Client interface {
	// Lookup fetches the technology footprint for a domain.
	Lookup(ctx context.Context, domain string) (*Footprint, error)
}

// Footprint is the flattened technology profile of a domain.
type Footprint struct {
	Domain       string       `json:"domain"`
	Technologies []Technology `json:"technologies"`
}

// Technology is a single detected technology.
type Technology struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	FirstSeen   int64  `json:"first_detected,omitempty"`
	LastSeen    int64  `json:"last_detected,omitempty"`
}

// apiResponse mirrors the wire shape of the BuiltWith v21 API.
type apiResponse struct {
	Results []struct {
		Result struct {
			Paths []struct {
				Technologies []struct {
					Name          string `json:"Name"`
					Tag           string `json:"Tag"`
					Description   string `json:"Description"`
					FirstDetected int64  `json:"FirstDetected"`
					LastDetected  int64  `json:"LastDetected"`
				} `json:"Technologies"`
			} `json:"Paths"`
		} `json:"Result"`
	} `json:"Results"`
	Errors []struct {
		Message string `json:"Message"`
	} `json:"Errors"`
}

// ErrNotFound is returned when BuiltWith has no data for the domain.
var ErrNotFound = eris.New("builtwith: domain not found")

// Option configures the BuiltWith client.
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

// WithRateLimit overrides the default request rate (1 req/s).
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

// NewClient creates a new BuiltWith client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.builtwith.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, domain string) (*Footprint, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "builtwith: rate limit")
		}
	}

	query := url.Values{}
	query.Set("KEY", c.apiKey)
	query.Set("LOOKUP", domain)
	query.Set("HIDETEXT", "yes")
	reqURL := c.baseURL + "/v21/api.json?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "builtwith: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "builtwith: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "builtwith: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resilience.RetryableStatus(resp.StatusCode):
		return nil, resilience.Transient(eris.Errorf("builtwith: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resilience.Permanent(eris.Errorf("builtwith: status %d", resp.StatusCode), "auth")
	default:
		return nil, eris.Errorf("builtwith: status %d: %s", resp.StatusCode, string(body))
	}

	var raw apiResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "builtwith: unmarshal response")
	}
	if len(raw.Errors) > 0 {
		return nil, eris.Errorf("builtwith: api error: %s", raw.Errors[0].Message)
	}

	fp := &Footprint{Domain: domain}
	for _, res := range raw.Results {
		for _, path := range res.Result.Paths {
			for _, tech := range path.Technologies {
				fp.Technologies = append(fp.Technologies, Technology{
					Name:        tech.Name,
					Category:    tech.Tag,
					Description: tech.Description,
					FirstSeen:   tech.FirstDetected,
					LastSeen:    tech.LastDetected,
				})
			}
		}
	}
	if len(fp.Technologies) == 0 {
		return nil, ErrNotFound
	}
	return fp, nil
}
