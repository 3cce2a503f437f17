package builtwith

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/resilience"
)

const lookupResponse = `{
	"Results": [{
		"Result": {
			"Paths": [{
				"Technologies": [
					{"Name": "HubSpot", "Tag": "analytics", "FirstDetected": 1500000000000},
					{"Name": "Cloudflare", "Tag": "cdn"}
				]
			}]
		}
	}]
}`

func TestLookup_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21/api.json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("KEY"))
		assert.Equal(t, "acme.com", r.URL.Query().Get("LOOKUP"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(lookupResponse))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Lookup(context.Background(), "acme.com")

	require.NoError(t, err)
	assert.Equal(t, "acme.com", got.Domain)
	require.Len(t, got.Technologies, 2)
	assert.Equal(t, "HubSpot", got.Technologies[0].Name)
	assert.Equal(t, "analytics", got.Technologies[0].Category)
	assert.Equal(t, "cdn", got.Technologies[1].Category)
}

func TestLookup_NoTechnologies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Results": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), "unknown.example")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Errors": [{"Message": "lookup quota exceeded"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), "acme.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestLookup_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), "acme.com")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
