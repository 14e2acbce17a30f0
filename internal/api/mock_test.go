package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/store"
)

// fakeRunner records submissions and serves canned runs.
type fakeRunner struct {
	mu        sync.Mutex
	runs      map[int64]*model.Run
	submitted []json.RawMessage
	submitErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: make(map[int64]*model.Run)}
}

func (f *fakeRunner) Submit(_ context.Context, kind model.RunKind, params json.RawMessage) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, params)
	run := &model.Run{
		ID:        int64(len(f.runs) + 1),
		Kind:      kind,
		Status:    model.RunStatusQueued,
		Params:    json.RawMessage(`{"max_leads":5}`),
		StartedAt: time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRunner) Get(_ context.Context, id int64) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, model.NotFoundf("run %d", id)
	}
	return run, nil
}

func (f *fakeRunner) List(_ context.Context, filter model.RunFilter) ([]model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Run
	for _, r := range f.runs {
		if filter.Kind == "" || r.Kind == filter.Kind {
			out = append(out, *r)
		}
	}
	return out, nil
}

type testEnv struct {
	srv    *httptest.Server
	store  *store.SQLiteStore
	runner *fakeRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	runner := newFakeRunner()
	scorer := scoring.New(scoring.KeywordSet{{Term: "dentist"}}, scoring.DefaultWeights())
	reg := prometheus.NewRegistry()
	h := NewRouter(Deps{
		Runs:     runner,
		Leads:    st,
		Importer: pipeline.NewIngester(st, scorer, pipeline.WithMetrics(pipeline.NewMetrics(reg))),
		Gatherer: reg,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, runner: runner}
}
