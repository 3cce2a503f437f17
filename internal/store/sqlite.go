package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	campaign_id  TEXT NOT NULL DEFAULT '',
	config       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS prospects (
	id           TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	campaign_id  TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL,
	email_key    TEXT NOT NULL,
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	progress     INTEGER NOT NULL DEFAULT 0,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	results      TEXT NOT NULL DEFAULT '',
	errors       TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_campaign ON batches(campaign_id);
CREATE INDEX IF NOT EXISTS idx_prospects_batch ON prospects(batch_id);
CREATE INDEX IF NOT EXISTS idx_prospects_key ON prospects(campaign_id, email_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, job *model.BatchJob) error {
	cfg, err := encodeConfig(job.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, campaign_id, config, status, total, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.CampaignID, cfg, string(job.Status), job.Counters.Total, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert batch")
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchSQL(row rowScanner) (*model.BatchJob, error) {
	var (
		job    model.BatchJob
		cfg    string
		status string
	)
	err := row.Scan(
		&job.ID, &job.CampaignID, &cfg, &status,
		&job.Counters.Total, &job.Counters.Processed, &job.Counters.Succeeded,
		&job.Counters.Failed, &job.Counters.Duplicates,
		&job.Error, &job.CreatedAt, &job.StartedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	job.Config, err = decodeConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	job, err := scanBatchSQL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		job, err := scanBatchSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list batches rows")
}

func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, id string, status model.JobStatus) error {
	now := time.Now().UTC()
	var err error
	switch {
	case status == model.JobStatusRunning:
		_, err = s.db.ExecContext(ctx,
			`UPDATE batches SET status = ?, updated_at = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
			string(status), now, now, id)
	case status.Terminal():
		_, err = s.db.ExecContext(ctx,
			`UPDATE batches SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
			string(status), now, now, id)
	default:
		_, err = s.db.ExecContext(ctx,
			`UPDATE batches SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	}
	return eris.Wrapf(err, "sqlite: update batch %s status", id)
}

func (s *SQLiteStore) UpdateBatchCounters(ctx context.Context, id string, c model.Counters) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET total = ?, processed = ?, succeeded = ?, failed = ?, duplicates = ?, updated_at = ? WHERE id = ?`,
		c.Total, c.Processed, c.Succeeded, c.Failed, c.Duplicates, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: update batch %s counters", id)
}

func (s *SQLiteStore) CreateProspects(ctx context.Context, prospects []model.Prospect) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prospects (id, batch_id, campaign_id, email, email_key, first_name, last_name, title, company, website, linkedin_url, status, progress, retry_count, results, errors, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert prospect")
	}
	defer stmt.Close()

	for i := range prospects {
		p := &prospects[i]
		results, err := encodeJSON(p.Results)
		if err != nil {
			return err
		}
		errList, err := encodeJSON(p.Errors)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.BatchID, p.CampaignID, p.Email, model.EmailKey(p.Email), p.FirstName, p.LastName,
			p.Title, p.Company, p.Website, p.LinkedInURL, string(p.Status), p.Progress,
			p.RetryCount, results, errList, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert prospect %s", p.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit prospects")
}

func scanProspectSQL(row rowScanner) (*model.Prospect, error) {
	var (
		p       model.Prospect
		status  string
		results string
		errList string
	)
	err := row.Scan(
		&p.ID, &p.BatchID, &p.CampaignID, &p.Email, &p.FirstName, &p.LastName,
		&p.Title, &p.Company, &p.Website, &p.LinkedInURL, &status, &p.Progress,
		&p.RetryCount, &results, &errList, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProspectStatus(status)
	if p.Results, err = decodeResults(results); err != nil {
		return nil, err
	}
	if p.Errors, err = decodeErrors(errList); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) FindProspectByKey(ctx context.Context, campaignID, emailKey string) (*model.Prospect, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE campaign_id = ? AND email_key = ? ORDER BY created_at LIMIT 1`,
		campaignID, emailKey,
	)
	p, err := scanProspectSQL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find prospect by key")
	}
	return p, nil
}

func (s *SQLiteStore) UpdateProspect(ctx context.Context, p *model.Prospect) error {
	results, err := encodeJSON(p.Results)
	if err != nil {
		return err
	}
	errList, err := encodeJSON(p.Errors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE prospects SET status = ?, progress = ?, retry_count = ?, results = ?, errors = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), p.Progress, p.RetryCount, results, errList, time.Now().UTC(), p.ID,
	)
	return eris.Wrapf(err, "sqlite: update prospect %s", p.ID)
}

func (s *SQLiteStore) ListProspects(ctx context.Context, batchID string) ([]model.Prospect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE batch_id = ? ORDER BY created_at`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close()

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspectSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		prospects = append(prospects, *p)
	}
	return prospects, eris.Wrap(rows.Err(), "sqlite: list prospects rows")
}

func (s *SQLiteStore) ResetProspects(ctx context.Context, batchID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{string(model.ProspectStatusPending), time.Now().UTC(), batchID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET status = ?, progress = 0, errors = '', retry_count = retry_count + 1, updated_at = ? WHERE batch_id = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: reset prospects for batch %s", batchID)
}
