package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/audit"
	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/internal/store"
)

const (
	mapsEmailLimit    = 15
	mapsAuditLimit    = 25
	mapsAuditSleep    = 600 * time.Millisecond
	maxAuditSites     = 500
	maxAuditTimeout   = 120
	maxAuditBodyBytes = 10 << 20
)

// Auditor grades websites and finds contact emails.
type Auditor interface {
	AuditMany(ctx context.Context, targets []model.AuditTarget, maxSites int, sleep time.Duration) iter.Seq2[model.AuditTarget, model.AuditResult]
	FindEmail(ctx context.Context, url string) string
}

// auditInto audits targets and records each result. It returns the number
// of results stored.
func auditInto(ctx context.Context, st store.LeadStore, a Auditor, targets []model.AuditTarget, maxSites int, sleep time.Duration) (int, error) {
	n := 0
	for t, res := range a.AuditMany(ctx, targets, maxSites, sleep) {
		if err := st.UpdateWebsiteAudit(ctx, t.LeadID, res); err != nil {
			return n, eris.Wrapf(err, "pipeline: store audit of lead %d", t.LeadID)
		}
		n++
	}
	if err := ctx.Err(); err != nil {
		return n, eris.Wrap(err, "pipeline: audit interrupted")
	}
	return n, nil
}

// DiscoverJob runs a social search and ingests the post authors.
type DiscoverJob struct {
	adapter  *source.SocialAdapter
	ingester *Ingester
}

// NewDiscoverJob creates a DiscoverJob.
func NewDiscoverJob(adapter *source.SocialAdapter, ingester *Ingester) *DiscoverJob {
	return &DiscoverJob{adapter: adapter, ingester: ingester}
}

type discoverParams struct {
	source.SocialParams
	KeywordsFile string `json:"keywords_file,omitempty"`
}

// Kind implements Job.
func (j *DiscoverJob) Kind() model.RunKind { return model.RunKindDiscover }

// Bind implements Job.
func (j *DiscoverJob) Bind(raw json.RawMessage) (*Bound, error) {
	var p discoverParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}

	scorer := j.ingester.Scorer()
	if p.KeywordsFile = strings.TrimSpace(p.KeywordsFile); p.KeywordsFile != "" {
		set, err := scoring.LoadKeywords(p.KeywordsFile)
		if err != nil {
			return nil, model.Validationf("keywords_file: %v", err)
		}
		scorer = scoring.New(set, scorer.Weights())
	}

	params, err := encodeParams(p)
	if err != nil {
		return nil, err
	}
	return &Bound{Params: params, Task: func(ctx context.Context) (string, error) {
		stream := j.adapter.Discover(ctx, p.SocialParams, scorer.Keywords().Terms())
		sum, err := j.ingester.Ingest(ctx, stream, Options{
			Source:       model.SourceX,
			Cap:          p.MaxLeads,
			MinFollowers: p.MinFollowers,
			Scorer:       scorer,
		})
		return fmt.Sprintf("imported %d x leads", sum.Imported), err
	}}, nil
}

// InstagramJob ingests the comment authors of recent Instagram media.
type InstagramJob struct {
	adapter  *source.InstagramAdapter
	ingester *Ingester
}

// NewInstagramJob creates an InstagramJob.
func NewInstagramJob(adapter *source.InstagramAdapter, ingester *Ingester) *InstagramJob {
	return &InstagramJob{adapter: adapter, ingester: ingester}
}

// Kind implements Job.
func (j *InstagramJob) Kind() model.RunKind { return model.RunKindIGCommenters }

// Bind implements Job.
func (j *InstagramJob) Bind(raw json.RawMessage) (*Bound, error) {
	var p source.InstagramParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := j.adapter.Prepare(&p); err != nil {
		return nil, err
	}
	params, err := encodeParams(p.Redacted())
	if err != nil {
		return nil, err
	}
	return &Bound{Params: params, Task: func(ctx context.Context) (string, error) {
		sum, err := j.ingester.Ingest(ctx, j.adapter.Commenters(ctx, p), Options{
			Source: model.SourceInstagram,
			Cap:    p.MaxUsers,
		})
		return fmt.Sprintf("imported %d instagram leads", sum.Imported), err
	}}, nil
}

// MapsJob scrapes map listings, enriches their emails, ingests them, and
// audits the new websites.
type MapsJob struct {
	adapter  *source.MapsAdapter
	ingester *Ingester
	store    store.LeadStore
	auditor  Auditor
}

// NewMapsJob creates a MapsJob.
func NewMapsJob(adapter *source.MapsAdapter, ingester *Ingester, st store.LeadStore, auditor Auditor) *MapsJob {
	return &MapsJob{adapter: adapter, ingester: ingester, store: st, auditor: auditor}
}

// Kind implements Job.
func (j *MapsJob) Kind() model.RunKind { return model.RunKindMapsScrape }

// Bind implements Job.
func (j *MapsJob) Bind(raw json.RawMessage) (*Bound, error) {
	var p source.MapsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	params, err := encodeParams(p)
	if err != nil {
		return nil, err
	}
	return &Bound{Params: params, Task: func(ctx context.Context) (string, error) {
		stream := source.WithEmails(ctx, j.adapter.Listings(ctx, p), j.auditor, mapsEmailLimit)
		sum, err := j.ingester.Ingest(ctx, stream, Options{
			Source: model.SourceGoogleMaps,
			Cap:    p.MaxResults,
		})
		if err != nil {
			return mapsSummary(sum.Imported, 0), err
		}
		return mapsSummary(sum.Imported, j.autoAudit(ctx, min(mapsAuditLimit, p.MaxResults))), nil
	}}, nil
}

func mapsSummary(imported, audited int) string {
	return fmt.Sprintf("imported %d google_maps leads. website audits: %d.", imported, audited)
}

// autoAudit grades never-audited map leads. Failures only log.
func (j *MapsJob) autoAudit(ctx context.Context, limit int) int {
	log := zap.L().With(zap.String("source", string(model.SourceGoogleMaps)))
	targets, err := j.store.LeadsNeedingAudit(ctx, store.AuditQuery{
		Limit:          limit,
		Source:         model.SourceGoogleMaps,
		RequireWebsite: true,
	})
	if err != nil {
		log.Warn("pipeline: select audit targets", zap.Error(err))
		return 0
	}
	n, err := auditInto(ctx, j.store, j.auditor, targets, limit, mapsAuditSleep)
	if err != nil {
		log.Warn("pipeline: auto audit stopped", zap.Int("audited", n), zap.Error(err))
	}
	return n
}

// AuditParams are the parameters of a website audit run.
type AuditParams struct {
	MaxSites    int          `json:"max_sites"`
	SleepMs     *int         `json:"sleep_ms,omitempty"`
	TimeoutSecs int          `json:"timeout_secs,omitempty"`
	MaxBytes    int64        `json:"max_bytes,omitempty"`
	Source      model.Source `json:"source,omitempty"`
}

// AuditJob grades the websites of leads that were never audited.
type AuditJob struct {
	store      store.LeadStore
	base       audit.Config
	sleep      time.Duration
	newAuditor func(audit.Config) Auditor
}

// NewAuditJob creates an AuditJob. base and sleep are the defaults a run
// may override.
func NewAuditJob(st store.LeadStore, base audit.Config, sleep time.Duration) *AuditJob {
	return &AuditJob{
		store: st,
		base:  base,
		sleep: sleep,
		newAuditor: func(cfg audit.Config) Auditor {
			return audit.New(cfg)
		},
	}
}

// Kind implements Job.
func (j *AuditJob) Kind() model.RunKind { return model.RunKindAuditWebsites }

// Bind implements Job.
func (j *AuditJob) Bind(raw json.RawMessage) (*Bound, error) {
	var p AuditParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MaxSites == 0 {
		p.MaxSites = 25
	}
	if p.SleepMs == nil {
		ms := int(j.sleep / time.Millisecond)
		p.SleepMs = &ms
	}
	p.Source = model.Source(strings.ToLower(strings.TrimSpace(string(p.Source))))
	switch {
	case p.MaxSites < 1 || p.MaxSites > maxAuditSites:
		return nil, model.Validationf("max_sites must be between 1 and %d, got %d", maxAuditSites, p.MaxSites)
	case *p.SleepMs < 0:
		return nil, model.Validationf("sleep_ms must not be negative")
	case p.TimeoutSecs < 0 || p.TimeoutSecs > maxAuditTimeout:
		return nil, model.Validationf("timeout_secs must be between 0 and %d", maxAuditTimeout)
	case p.MaxBytes < 0 || p.MaxBytes > maxAuditBodyBytes:
		return nil, model.Validationf("max_bytes must be between 0 and %d", maxAuditBodyBytes)
	}

	cfg := j.base
	if p.TimeoutSecs > 0 {
		cfg.Timeout = time.Duration(p.TimeoutSecs) * time.Second
	}
	if p.MaxBytes > 0 {
		cfg.MaxBytes = p.MaxBytes
	}
	sleep := time.Duration(*p.SleepMs) * time.Millisecond

	params, err := encodeParams(p)
	if err != nil {
		return nil, err
	}
	return &Bound{Params: params, Task: func(ctx context.Context) (string, error) {
		targets, err := j.store.LeadsNeedingAudit(ctx, store.AuditQuery{Limit: p.MaxSites, Source: p.Source})
		if err != nil {
			return "", eris.Wrap(err, "pipeline: select audit targets")
		}
		n, err := auditInto(ctx, j.store, j.newAuditor(cfg), targets, p.MaxSites, sleep)
		return fmt.Sprintf("audited %d websites", n), err
	}}, nil
}
