// Package pipeline scores source candidates and merges them into the lead
// store, and defines the run jobs built on top of that.
package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/internal/store"
)

// Options controls one ingestion.
type Options struct {
	// Source labels logs and metrics; candidates keep their own source.
	Source model.Source

	// Cap bounds the number of items consumed from the stream. Items that
	// fail validation count toward it. 0 means no cap.
	Cap int

	// MinFollowers is the follower floor for the scoring bonus.
	MinFollowers int

	// Scorer overrides the ingester's scorer for this ingestion.
	Scorer *scoring.Scorer
}

// Summary reports what an ingestion did.
type Summary struct {
	Consumed int `json:"consumed"`
	Imported int `json:"imported"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithMetrics records per-candidate outcomes.
func WithMetrics(m *Metrics) IngesterOption {
	return func(in *Ingester) { in.metrics = m }
}

// Ingester scores candidates and upserts them in stream order.
type Ingester struct {
	store   store.LeadStore
	scorer  *scoring.Scorer
	metrics *Metrics
}

// NewIngester creates an Ingester.
func NewIngester(st store.LeadStore, scorer *scoring.Scorer, opts ...IngesterOption) *Ingester {
	in := &Ingester{store: st, scorer: scorer}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Scorer returns the default scorer.
func (in *Ingester) Scorer() *scoring.Scorer { return in.scorer }

// Ingest consumes s until it ends, a fatal stream error occurs, or the cap
// is reached. Invalid candidates are skipped. The summary is valid even
// when an error is returned: items ingested before the failure stay
// ingested.
func (in *Ingester) Ingest(ctx context.Context, s source.Stream, opts Options) (Summary, error) {
	scorer := in.scorer
	if opts.Scorer != nil {
		scorer = opts.Scorer
	}
	label := string(opts.Source)
	log := zap.L().With(zap.String("source", label))

	var sum Summary
	capped := func() bool { return opts.Cap > 0 && sum.Consumed >= opts.Cap }

	for c, err := range s {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, eris.Wrap(ctxErr, "pipeline: ingest cancelled")
		}
		if err != nil {
			if !source.IsItemError(err) {
				return sum, err
			}
			sum.Consumed++
			in.skip(&sum, label, log, err)
			if capped() {
				break
			}
			continue
		}

		sum.Consumed++
		if err := in.ingestOne(ctx, scorer, c, opts, &sum, label); err != nil {
			if !errors.Is(err, model.ErrValidation) {
				return sum, err
			}
			in.skip(&sum, label, log, err)
		}
		if capped() {
			break
		}
	}

	log.Info("pipeline: ingest complete",
		zap.Int("consumed", sum.Consumed),
		zap.Int("imported", sum.Imported),
		zap.Int("created", sum.Created),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (in *Ingester) ingestOne(ctx context.Context, scorer *scoring.Scorer, c model.RawCandidate, opts Options, sum *Summary, label string) error {
	if _, err := store.DedupKey(c); err != nil {
		return err
	}
	res := scorer.Score(c, scoring.Options{MinFollowers: opts.MinFollowers})
	up, err := in.store.UpsertLead(ctx, model.Candidate{
		RawCandidate: c,
		Score:        res.Score,
		Matched:      res.Matched,
		Reason:       res.Reason,
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return err
		}
		return eris.Wrap(err, "pipeline: upsert lead")
	}

	sum.Imported++
	if up.Created {
		sum.Created++
		in.metrics.observe(label, OutcomeCreated)
	} else {
		in.metrics.observe(label, OutcomeMerged)
	}
	return nil
}

func (in *Ingester) skip(sum *Summary, label string, log *zap.Logger, err error) {
	sum.Skipped++
	in.metrics.observe(label, OutcomeSkipped)
	log.Debug("pipeline: skipped candidate", zap.Error(err))
}
