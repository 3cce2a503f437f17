package model

import (
	"encoding/json"
	"strings"
	"time"
)

// ProspectStatus represents the current state of a prospect within a batch.
type ProspectStatus string

const (
	ProspectStatusPending    ProspectStatus = "pending"
	ProspectStatusProcessing ProspectStatus = "processing"
	ProspectStatusCompleted  ProspectStatus = "completed"
	ProspectStatusFailed     ProspectStatus = "failed"
	ProspectStatusDuplicate  ProspectStatus = "duplicate"
)

// Enrichment stage names, in pipeline execution order.
const (
	StageProfile      = "profile"
	StageOrganization = "organization"
	StageTechnology   = "technology"
	StageSynthesis    = "synthesis"
)

// StageOrder lists the stages in the fixed order the pipeline runs them.
var StageOrder = []string{StageProfile, StageOrganization, StageTechnology, StageSynthesis}

// Prospect is one unit of work inside a batch: a contact undergoing enrichment.
type Prospect struct {
	ID          string                     `json:"id"`
	BatchID     string                     `json:"batch_id"`
	CampaignID  string                     `json:"campaign_id"`
	FirstName   string                     `json:"first_name"`
	LastName    string                     `json:"last_name"`
	Email       string                     `json:"email"`
	Title       string                     `json:"title,omitempty"`
	Company     string                     `json:"company,omitempty"`
	Website     string                     `json:"website,omitempty"`
	LinkedInURL string                     `json:"linkedin_url,omitempty"`
	Status      ProspectStatus             `json:"status"`
	Progress    int                        `json:"progress"`
	RetryCount  int                        `json:"retry_count"`
	Results     map[string]json.RawMessage `json:"results,omitempty"`
	Errors      []string                   `json:"errors,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// FullName joins first and last name, tolerating either being empty.
func (p *Prospect) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// SetResult stores a stage's output on the prospect, allocating the map lazily.
func (p *Prospect) SetResult(stage string, data json.RawMessage) {
	if p.Results == nil {
		p.Results = make(map[string]json.RawMessage, len(StageOrder))
	}
	p.Results[stage] = data
}

// RecordError appends a stage-scoped error message to the prospect's error list.
func (p *Prospect) RecordError(stage string, err error) {
	if err == nil {
		return
	}
	p.Errors = append(p.Errors, stage+": "+err.Error())
}

// Terminal reports whether the prospect has reached a final status.
func (s ProspectStatus) Terminal() bool {
	switch s {
	case ProspectStatusCompleted, ProspectStatusFailed, ProspectStatusDuplicate:
		return true
	default:
		return false
	}
}

// EntityOutcome is the terminal result of running the pipeline for one prospect.
type EntityOutcome string

const (
	OutcomeCompleted EntityOutcome = "completed"
	OutcomeFailed    EntityOutcome = "failed"
	OutcomeDuplicate EntityOutcome = "duplicate"
)
