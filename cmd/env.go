package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/audit"
	"github.com/sells-group/lead-finder/internal/config"
	"github.com/sells-group/lead-finder/internal/orchestrator"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/internal/store"
	"github.com/sells-group/lead-finder/pkg/mapsbrowser"
	"github.com/sells-group/lead-finder/pkg/meta"
	"github.com/sells-group/lead-finder/pkg/social"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite", "":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "data/leads.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initScorer(c config.ScoringConfig) (*scoring.Scorer, error) {
	set := scoring.DefaultKeywords()
	if c.KeywordsFile != "" {
		loaded, err := scoring.LoadKeywords(c.KeywordsFile)
		if err != nil {
			return nil, err
		}
		set = loaded
	}
	return scoring.New(set, scoring.Weights{
		Keyword:  c.KeywordWeight,
		Phone:    c.PhoneBonus,
		Website:  c.WebsiteBonus,
		Follower: c.FollowerBonus,
	}), nil
}

func auditConfig(c config.AuditConfig) audit.Config {
	ac := audit.DefaultConfig()
	if c.TimeoutSecs > 0 {
		ac.Timeout = time.Duration(c.TimeoutSecs) * time.Second
	}
	if c.MaxBytes > 0 {
		ac.MaxBytes = c.MaxBytes
	}
	if c.UserAgent != "" {
		ac.UserAgent = c.UserAgent
	}
	return ac
}

// appEnv holds everything the run, import and serve commands share.
type appEnv struct {
	Store    store.Store
	Ingester *pipeline.Ingester
	Orch     *orchestrator.Orchestrator
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp builds the store, adapters, jobs and orchestrator. reg receives
// the metrics; nil skips registration. Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config, reg prometheus.Registerer) (*appEnv, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	scorer, err := initScorer(c.Scoring)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	retry := resilience.NewRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs, c.Retry.Multiplier, c.Retry.JitterFraction)
	ingester := pipeline.NewIngester(st, scorer, pipeline.WithMetrics(pipeline.NewMetrics(reg)))
	auditor := audit.New(auditConfig(c.Audit))

	socialClient := social.NewClient(c.Social.BearerToken, social.WithBaseURL(c.Social.BaseURL))
	metaFor := func(token string) meta.Client {
		return meta.NewClient(token, meta.WithBaseURL(c.Meta.BaseURL), meta.WithAPIVersion(c.Meta.APIVersion))
	}
	session := mapsbrowser.NewSession(c.Maps.ProfileDir)
	maps := source.NewMapsAdapter(session, mapsbrowser.NewChromeScraper(session), source.MapsConfig{
		Headful:  c.Maps.Headful,
		Locale:   c.Maps.Locale,
		Region:   c.Maps.Region,
		MaxTotal: time.Duration(c.Maps.MaxTotalSecs) * time.Second,
	}, retry)

	jobs := pipeline.NewRegistry(
		pipeline.NewDiscoverJob(source.NewSocialAdapter(socialClient, retry, c.Social.PageSize), ingester),
		pipeline.NewInstagramJob(source.NewInstagramAdapter(metaFor, c.Meta.AccessToken, c.Meta.IGUserID, retry), ingester),
		pipeline.NewMapsJob(maps, ingester, st, auditor),
		pipeline.NewAuditJob(st, auditConfig(c.Audit), time.Duration(c.Audit.SleepMs)*time.Millisecond),
	)
	orch := orchestrator.New(st, jobs, orchestrator.Config{
		MaxConcurrent: c.Runs.MaxConcurrent,
		Timeout:       c.Runs.Timeout(),
	}, orchestrator.WithMetrics(orchestrator.NewMetrics(reg)))

	zap.L().Debug("app initialized",
		zap.String("store", c.Store.Driver),
		zap.Int("keywords", len(scorer.Keywords())),
		zap.Int("max_concurrent_runs", c.Runs.MaxConcurrent),
	)
	return &appEnv{Store: st, Ingester: ingester, Orch: orch}, nil
}
