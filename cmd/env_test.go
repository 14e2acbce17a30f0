package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/config"
	"github.com/sells-group/lead-finder/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "db", "leads.db")},
		Runs:  config.RunsConfig{MaxConcurrent: 1, TimeoutMins: 1},
		Maps:  config.MapsConfig{ProfileDir: filepath.Join(t.TempDir(), "profile"), MaxTotalSecs: 60},
		Scoring: config.ScoringConfig{
			KeywordWeight: 10, PhoneBonus: 14, WebsiteBonus: 3, FollowerBonus: 8,
		},
	}
}

func TestInitStore(t *testing.T) {
	c := testConfig(t)
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	c.Store.Driver = "oracle"
	_, err = initStore(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitScorer(t *testing.T) {
	c := testConfig(t)
	s, err := initScorer(c.Scoring)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Keywords())
	assert.Equal(t, 14, s.Weights().Phone)

	path := filepath.Join(t.TempDir(), "kw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords:\n  - roofer\n  - term: storm damage\n    weight: 25\n"), 0o600))
	c.Scoring.KeywordsFile = path
	s, err = initScorer(c.Scoring)
	require.NoError(t, err)
	assert.Equal(t, []string{"roofer", "storm damage"}, s.Keywords().Terms())

	c.Scoring.KeywordsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initScorer(c.Scoring)
	assert.Error(t, err)
}

func TestAuditConfig(t *testing.T) {
	ac := auditConfig(config.AuditConfig{TimeoutSecs: 4, UserAgent: "probe/1"})
	assert.Equal(t, 4*time.Second, ac.Timeout)
	assert.Equal(t, "probe/1", ac.UserAgent)
	assert.Equal(t, int64(450000), ac.MaxBytes)
}

func TestInitApp_RegistersEveryKind(t *testing.T) {
	env, err := initApp(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer env.Close()

	assert.ElementsMatch(t, model.RunKinds, env.Orch.Kinds())

	// Credentials are checked when a run is submitted, not at startup.
	_, err = env.Orch.Submit(context.Background(), model.RunKindIGCommenters, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}
