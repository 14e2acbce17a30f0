package pipeline

import (
	"context"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/store"
	"github.com/sells-group/lead-finder/pkg/mapsbrowser"
	"github.com/sells-group/lead-finder/pkg/meta"
	"github.com/sells-group/lead-finder/pkg/social"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testScorer() *scoring.Scorer {
	return scoring.New(scoring.KeywordSet{{Term: "plumber"}, {Term: "book now"}}, scoring.DefaultWeights())
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

// countingStream yields cs and records how many items were pulled.
func countingStream(cs []model.RawCandidate, pulled *int) iter.Seq2[model.RawCandidate, error] {
	return func(yield func(model.RawCandidate, error) bool) {
		for _, c := range cs {
			*pulled++
			if !yield(c, nil) {
				return
			}
		}
	}
}

func handles(src model.Source, names ...string) []model.RawCandidate {
	out := make([]model.RawCandidate, 0, len(names))
	for _, n := range names {
		out = append(out, model.RawCandidate{Source: src, Handle: n})
	}
	return out
}

// failingStore fails every upsert after the first ok ones.
type failingStore struct {
	store.LeadStore
	mu sync.Mutex
	ok int
}

func (f *failingStore) UpsertLead(ctx context.Context, c model.Candidate) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ok <= 0 {
		return store.UpsertResult{}, eris.New("disk full")
	}
	f.ok--
	return f.LeadStore.UpsertLead(ctx, c)
}

// mockAuditor records email lookups and audits through testify/mock.
type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) FindEmail(ctx context.Context, url string) string {
	return m.Called(ctx, url).String(0)
}

func (m *mockAuditor) AuditMany(ctx context.Context, targets []model.AuditTarget, maxSites int, _ time.Duration) iter.Seq2[model.AuditTarget, model.AuditResult] {
	return func(yield func(model.AuditTarget, model.AuditResult) bool) {
		for i, t := range targets {
			if i >= maxSites || ctx.Err() != nil {
				return
			}
			res := m.MethodCalled("AuditMany", ctx, t.Website).Get(0).(model.AuditResult)
			if !yield(t, res) {
				return
			}
		}
	}
}

type stubSocial struct {
	page *social.SearchPage
	err  error
}

func (s *stubSocial) SearchRecent(context.Context, social.SearchRequest) (*social.SearchPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	page := s.page
	s.page = &social.SearchPage{}
	return page, nil
}

type stubScraper struct {
	listings []mapsbrowser.Listing
	err      error
}

func (s *stubScraper) Search(context.Context, mapsbrowser.SearchConfig) ([]mapsbrowser.Listing, error) {
	return s.listings, s.err
}

type stubLocker struct{ busy bool }

func (l *stubLocker) TryAcquire() (func(), error) {
	if l.busy {
		return nil, mapsbrowser.ErrBusy
	}
	return func() {}, nil
}

func scoringOpts(minFollowers int) scoring.Options {
	return scoring.Options{MinFollowers: minFollowers}
}

type stubMeta struct {
	media    []meta.Media
	comments map[string][]meta.Comment
}

func (s *stubMeta) Media(context.Context, string, int) ([]meta.Media, error) { return s.media, nil }

func (s *stubMeta) Comments(_ context.Context, mediaID string, _ int) ([]meta.Comment, error) {
	return s.comments[mediaID], nil
}

func (s *stubMeta) BusinessDiscovery(context.Context, string, string) (*meta.BusinessProfile, error) {
	return nil, nil
}
