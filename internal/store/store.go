// Package store persists batches and prospects behind a driver-agnostic
// interface with Postgres and SQLite implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// ErrNotFound is returned when a batch or prospect does not exist.
var ErrNotFound = eris.New("store: not found")

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	Status     model.JobStatus `json:"status,omitempty"`
	CampaignID string          `json:"campaign_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment orchestrator.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, job *model.BatchJob) error
	GetBatch(ctx context.Context, id string) (*model.BatchJob, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchJob, error)
	UpdateBatchStatus(ctx context.Context, id string, status model.JobStatus) error
	UpdateBatchCounters(ctx context.Context, id string, c model.Counters) error

	// Prospects
	CreateProspects(ctx context.Context, prospects []model.Prospect) error
	// FindProspectByKey looks up a prospect by its natural key (normalized
	// email within a campaign). Returns (nil, nil) when absent.
	FindProspectByKey(ctx context.Context, campaignID, emailKey string) (*model.Prospect, error)
	UpdateProspect(ctx context.Context, p *model.Prospect) error
	ListProspects(ctx context.Context, batchID string) ([]model.Prospect, error)
	// ResetProspects returns the named prospects to pending for a retry,
	// clearing errors and bumping their retry count.
	ResetProspects(ctx context.Context, batchID string, ids []string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
