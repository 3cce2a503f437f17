package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/broadcast"
	"github.com/giada-tronca/cold-outreach/internal/export"
	"github.com/giada-tronca/cold-outreach/internal/job"
	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/pipeline"
	"github.com/giada-tronca/cold-outreach/internal/resilience"
	"github.com/giada-tronca/cold-outreach/internal/store"
	"github.com/giada-tronca/cold-outreach/pkg/anthropic"
	"github.com/giada-tronca/cold-outreach/pkg/builtwith"
	"github.com/giada-tronca/cold-outreach/pkg/jina"
	"github.com/giada-tronca/cold-outreach/pkg/notion"
	"github.com/giada-tronca/cold-outreach/pkg/proxycurl"
	sfpkg "github.com/giada-tronca/cold-outreach/pkg/salesforce"
)

// appEnv holds the wired orchestration components shared by the serve, batch,
// and enrich commands.
type appEnv struct {
	Store    store.Store
	Bus      *broadcast.Broadcaster
	Registry *job.Registry
	Runner   *pipeline.Runner
	Orch     *job.Orchestrator
	Manager  *job.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Registry != nil {
		e.Registry.Close()
	}
	if e.Bus != nil {
		e.Bus.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, provider clients, pipeline, broadcaster, and
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	policy, err := pipeline.LoadPolicy(cfg.Pipeline.PolicyPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	proxycurlClient := proxycurl.NewClient(cfg.Proxycurl.Key,
		proxycurl.WithBaseURL(cfg.Proxycurl.BaseURL))
	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)
	builtwithClient := builtwith.NewClient(cfg.BuiltWith.Key,
		builtwith.WithBaseURL(cfg.BuiltWith.BaseURL))
	llm := anthropic.NewClient(cfg.Anthropic.Key)

	stages := []pipeline.Stage{
		pipeline.NewProfileStage(proxycurlClient,
			policy.Timeout(model.StageProfile, time.Duration(cfg.Pipeline.ProfileTimeoutSecs)*time.Second)),
		pipeline.NewOrganizationStage(jinaClient, llm, pipeline.OrganizationConfig{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
			Timeout:   policy.Timeout(model.StageOrganization, time.Duration(cfg.Pipeline.OrgTimeoutSecs)*time.Second),
			Prompt:    policy.Prompts.OrganizationSummary,
		}),
		pipeline.NewTechnologyStage(builtwithClient,
			policy.Timeout(model.StageTechnology, time.Duration(cfg.Pipeline.TechTimeoutSecs)*time.Second)),
		pipeline.NewSynthesisStage(llm, pipeline.SynthesisConfig{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
			Timeout:   policy.Timeout(model.StageSynthesis, time.Duration(cfg.Pipeline.SynthesisTimeoutSecs)*time.Second),
			Prompt:    policy.Prompts.Synthesis,
		}),
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:     cfg.Retry.Multiplier,
		JitterFraction: cfg.Retry.JitterFraction,
	}

	bus := broadcast.New(cfg.Broadcast.SubscriberBuffer,
		time.Duration(cfg.Broadcast.HeartbeatSecs)*time.Second)
	runner := pipeline.NewRunner(st, bus, stages, policy, retry)
	registry := job.NewRegistry(time.Duration(cfg.Batch.RetentionMinutes) * time.Minute)

	exporter, err := initExporter()
	if err != nil {
		registry.Close()
		bus.Close()
		_ = st.Close()
		return nil, err
	}

	orch := job.NewOrchestrator(st, bus, runner, registry, exporter.Export)
	mgr := job.NewManager(registry, st, orch, bus)

	return &appEnv{
		Store:    st,
		Bus:      bus,
		Registry: registry,
		Runner:   runner,
		Orch:     orch,
		Manager:  mgr,
	}, nil
}

// initExporter builds the artifact exporter with whichever optional
// destinations are configured.
func initExporter() (*export.Exporter, error) {
	var opts []export.Option

	if cfg.Export.FTP.Addr != "" {
		opts = append(opts, export.WithFTP(export.NewUploader(cfg.Export.FTP)))
		zap.L().Info("ftp export enabled", zap.String("addr", cfg.Export.FTP.Addr))
	}

	if cfg.Notion.Token != "" && cfg.Notion.ProspectDB != "" {
		opts = append(opts, export.WithNotion(notion.NewClient(cfg.Notion.Token), cfg.Notion.ProspectDB))
		zap.L().Info("notion export enabled")
	}

	if cfg.Salesforce.ClientID != "" {
		sfClient, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		opts = append(opts, export.WithSalesforce(sfClient))
		zap.L().Info("salesforce export enabled")
	}

	return export.New(cfg.Export.Dir, opts...), nil
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateRPS)), nil
}
