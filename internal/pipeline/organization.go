package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/pkg/anthropic"
	"github.com/giada-tronca/cold-outreach/pkg/jina"
)

// maxPageContent bounds how much crawled text is sent to the summarizer.
const maxPageContent = 20000

// OrganizationResult is the persisted output of the organization stage.
type OrganizationResult struct {
	Domain    string `json:"domain"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary"`
	SourceURL string `json:"source_url"`
}

// OrganizationConfig tunes the organization stage.
type OrganizationConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Prompt    string
}

// OrganizationStage crawls the organization's homepage and summarizes it.
type OrganizationStage struct {
	reader jina.Client
	llm    anthropic.Client
	cfg    OrganizationConfig
}

// NewOrganizationStage builds the organization stage executor.
func NewOrganizationStage(reader jina.Client, llm anthropic.Client, cfg OrganizationConfig) *OrganizationStage {
	return &OrganizationStage{reader: reader, llm: llm, cfg: cfg}
}

func (s *OrganizationStage) Name() string { return model.StageOrganization }

func (s *OrganizationStage) Run(ctx context.Context, sc *StageContext) StageOutcome {
	if sc.Domain == "" {
		return Skipped("no organization domain derivable")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	retry := sc.Retry
	retry.OnRetry = resilience.RetryLogger("jina", "read")

	sourceURL := "https://" + sc.Domain
	page, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*jina.ReadResponse, error) {
		return s.reader.Read(ctx, sourceURL)
	})
	if err != nil {
		return Failed(eris.Wrap(err, "crawl homepage"))
	}
	content := page.Data.Content
	if content == "" {
		return Failed(eris.Errorf("empty page content for %s", sc.Domain))
	}
	if about := s.aboutPage(ctx, sc.Domain); about != "" {
		content += "\n\n" + about
	}
	if len(content) > maxPageContent {
		content = content[:maxPageContent]
	}

	retry.OnRetry = resilience.RetryLogger("anthropic", "summarize_organization")
	msg, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.Model,
			MaxTokens: s.cfg.MaxTokens,
			System:    s.cfg.Prompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: content},
			},
		})
	})
	if err != nil {
		return Failed(eris.Wrap(err, "summarize organization"))
	}
	msg.Usage.LogCost(msg.Model, "organization")
	zap.L().Debug("organization summarized",
		zap.String("prospect_id", sc.Prospect.ID),
		zap.String("domain", sc.Domain))

	data, err := json.Marshal(OrganizationResult{
		Domain:    sc.Domain,
		Title:     page.Data.Title,
		Summary:   msg.Text,
		SourceURL: sourceURL,
	})
	if err != nil {
		return Failed(eris.Wrap(err, "marshal organization result"))
	}
	return Succeeded(data)
}

// aboutPage supplements the homepage with the organization's about page found
// via site-filtered search. Best effort: search failures are logged and the
// homepage content stands alone.
func (s *OrganizationStage) aboutPage(ctx context.Context, domain string) string {
	res, err := s.reader.Search(ctx, "about", jina.WithSiteFilter(domain))
	if err != nil {
		zap.L().Debug("about page search failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	for _, hit := range res.Data {
		if hit.Content != "" {
			return hit.Content
		}
	}
	return ""
}
