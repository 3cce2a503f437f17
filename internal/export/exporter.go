// Package export builds the downstream artifact for a terminal batch: an
// XLSX workbook on disk, optionally pushed to an FTP drop, a Notion
// database, and Salesforce leads. The workbook is the batch artifact; the
// optional destinations are best-effort and never fail the export.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/pipeline"
	"github.com/giada-tronca/cold-outreach/pkg/notion"
	"github.com/giada-tronca/cold-outreach/pkg/salesforce"
)

// Exporter writes batch artifacts. The zero destinations case still produces
// the local workbook.
type Exporter struct {
	dir string

	ftp      *Uploader
	notion   notion.Client
	notionDB string
	sf       salesforce.Client
}

// Option configures optional export destinations.
type Option func(*Exporter)

// WithFTP pushes the workbook to an FTP drop after writing it locally.
func WithFTP(u *Uploader) Option {
	return func(e *Exporter) { e.ftp = u }
}

// WithNotion creates a page per completed prospect in the given database.
func WithNotion(client notion.Client, databaseID string) Option {
	return func(e *Exporter) {
		e.notion = client
		e.notionDB = databaseID
	}
}

// WithSalesforce upserts completed prospects as Leads.
func WithSalesforce(client salesforce.Client) Option {
	return func(e *Exporter) { e.sf = client }
}

// New creates an Exporter writing workbooks under dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes the batch workbook and pushes it to the configured optional
// destinations. Returns the local artifact path. Destination failures are
// logged, not returned; only a failure to produce the workbook itself is an
// error.
func (e *Exporter) Export(ctx context.Context, job model.BatchJob, prospects []model.Prospect) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}

	path := filepath.Join(e.dir, fmt.Sprintf("batch-%s.xlsx", job.ID))
	wb, err := buildWorkbook(job, prospects)
	if err != nil {
		return "", err
	}
	if err := wb.Save(path); err != nil {
		return "", eris.Wrap(err, "export: save workbook")
	}
	zap.L().Info("workbook written",
		zap.String("job_id", job.ID),
		zap.String("path", path),
		zap.Int("prospects", len(prospects)))

	if e.ftp != nil {
		if err := e.ftp.Upload(ctx, path); err != nil {
			zap.L().Error("ftp upload failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if e.notion != nil {
		e.pushNotion(ctx, job, prospects)
	}
	if e.sf != nil {
		e.syncSalesforce(ctx, job, prospects)
	}

	return path, nil
}

// synthesisNarrative extracts the synthesis narrative from a prospect's stage
// results. Empty when the stage never succeeded.
func synthesisNarrative(p *model.Prospect) string {
	raw, ok := p.Results[model.StageSynthesis]
	if !ok {
		return ""
	}
	var res pipeline.SynthesisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		zap.L().Warn("malformed synthesis result",
			zap.String("prospect_id", p.ID), zap.Error(err))
		return ""
	}
	return res.Narrative
}
