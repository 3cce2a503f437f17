package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each connection.
var preparedStatements = map[string]string{
	"update_batch_counters": `UPDATE batches SET total = $1, processed = $2, succeeded = $3, failed = $4, duplicates = $5, updated_at = $6 WHERE id = $7`,
	"update_prospect":       `UPDATE prospects SET status = $1, progress = $2, retry_count = $3, results = $4, errors = $5, updated_at = $6 WHERE id = $7`,
	"find_prospect_by_key":  `SELECT id, batch_id, campaign_id, email, first_name, last_name, title, company, website, linkedin_url, status, progress, retry_count, results, errors, created_at, updated_at FROM prospects WHERE campaign_id = $1 AND email_key = $2 ORDER BY created_at LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_campaign ON batches(campaign_id);
CREATE INDEX IF NOT EXISTS idx_prospects_batch ON prospects(batch_id);
CREATE INDEX IF NOT EXISTS idx_prospects_key ON prospects(campaign_id, email_key);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, job *model.BatchJob) error {
	cfg, err := encodeConfig(job.Config)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO batches (id, campaign_id, config, status, total, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.CampaignID, cfg, string(job.Status), job.Counters.Total, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert batch")
}

const batchColumns = `id, campaign_id, config, status, total, processed, succeeded, failed, duplicates, error, created_at, started_at, updated_at, completed_at`

func scanBatch(row pgx.Row) (*model.BatchJob, error) {
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

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.BatchJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	job, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.CampaignID != "" {
		args = append(args, filter.CampaignID)
		query += ` AND campaign_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		job, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list batches rows")
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id string, status model.JobStatus) error {
	now := time.Now().UTC()
	var err error
	switch {
	case status == model.JobStatusRunning:
		_, err = s.pool.Exec(ctx,
			`UPDATE batches SET status = $1, updated_at = $2, started_at = COALESCE(started_at, $2) WHERE id = $3`,
			string(status), now, id)
	case status.Terminal():
		_, err = s.pool.Exec(ctx,
			`UPDATE batches SET status = $1, updated_at = $2, completed_at = $2 WHERE id = $3`,
			string(status), now, id)
	default:
		_, err = s.pool.Exec(ctx,
			`UPDATE batches SET status = $1, updated_at = $2 WHERE id = $3`,
			string(status), now, id)
	}
	return eris.Wrapf(err, "postgres: update batch %s status", id)
}

func (s *PostgresStore) UpdateBatchCounters(ctx context.Context, id string, c model.Counters) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE batches SET total = $1, processed = $2, succeeded = $3, failed = $4, duplicates = $5, updated_at = $6 WHERE id = $7`,
		c.Total, c.Processed, c.Succeeded, c.Failed, c.Duplicates, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: update batch %s counters", id)
}

func (s *PostgresStore) CreateProspects(ctx context.Context, prospects []model.Prospect) error {
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
		_, err = s.pool.Exec(ctx,
			`INSERT INTO prospects (id, batch_id, campaign_id, email, email_key, first_name, last_name, title, company, website, linkedin_url, status, progress, retry_count, results, errors, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			p.ID, p.BatchID, p.CampaignID, p.Email, model.EmailKey(p.Email), p.FirstName, p.LastName,
			p.Title, p.Company, p.Website, p.LinkedInURL, string(p.Status), p.Progress,
			p.RetryCount, results, errList, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert prospect %s", p.ID)
		}
	}
	return nil
}

const prospectColumns = `id, batch_id, campaign_id, email, first_name, last_name, title, company, website, linkedin_url, status, progress, retry_count, results, errors, created_at, updated_at`

func scanProspect(row pgx.Row) (*model.Prospect, error) {
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

func (s *PostgresStore) FindProspectByKey(ctx context.Context, campaignID, emailKey string) (*model.Prospect, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE campaign_id = $1 AND email_key = $2 ORDER BY created_at LIMIT 1`,
		campaignID, emailKey,
	)
	p, err := scanProspect(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find prospect by key")
	}
	return p, nil
}

func (s *PostgresStore) UpdateProspect(ctx context.Context, p *model.Prospect) error {
	results, err := encodeJSON(p.Results)
	if err != nil {
		return err
	}
	errList, err := encodeJSON(p.Errors)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE prospects SET status = $1, progress = $2, retry_count = $3, results = $4, errors = $5, updated_at = $6 WHERE id = $7`,
		string(p.Status), p.Progress, p.RetryCount, results, errList, time.Now().UTC(), p.ID,
	)
	return eris.Wrapf(err, "postgres: update prospect %s", p.ID)
}

func (s *PostgresStore) ListProspects(ctx context.Context, batchID string) ([]model.Prospect, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE batch_id = $1 ORDER BY created_at`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		prospects = append(prospects, *p)
	}
	return prospects, eris.Wrap(rows.Err(), "postgres: list prospects rows")
}

func (s *PostgresStore) ResetProspects(ctx context.Context, batchID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE prospects SET status = $1, progress = 0, errors = '', retry_count = retry_count + 1, updated_at = $2 WHERE batch_id = $3 AND id = ANY($4)`,
		string(model.ProspectStatusPending), time.Now().UTC(), batchID, ids,
	)
	return eris.Wrapf(err, "postgres: reset prospects for batch %s", batchID)
}

