package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/store"
	"github.com/sells-group/lead-finder/pkg/social"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// funcJob runs fn for every bound run. Params containing "bad" fail Bind.
type funcJob struct {
	kind model.RunKind
	fn   pipeline.Task
}

func (j funcJob) Kind() model.RunKind { return j.kind }

func (j funcJob) Bind(raw json.RawMessage) (*pipeline.Bound, error) {
	var p struct {
		Bad bool `json:"bad"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, model.Validationf("invalid params: %v", err)
		}
	}
	if p.Bad {
		return nil, model.Validationf("bad params")
	}
	return &pipeline.Bound{Params: json.RawMessage(`{"normalized":true}`), Task: j.fn}, nil
}

// stubSocial serves one page of posts, then empty pages.
type stubSocial struct {
	page *social.SearchPage
}

func (s *stubSocial) SearchRecent(context.Context, social.SearchRequest) (*social.SearchPage, error) {
	page := s.page
	s.page = &social.SearchPage{}
	if page == nil {
		page = &social.SearchPage{}
	}
	return page, nil
}
