package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/internal/scoring"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/pkg/social"
)

const testKind model.RunKind = "test"

func waitTerminal(t *testing.T, o *Orchestrator, id int64) *model.Run {
	t.Helper()
	var run *model.Run
	require.Eventually(t, func() bool {
		r, err := o.Get(context.Background(), id)
		if err != nil {
			return false
		}
		run = r
		return r.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func newOrchestrator(t *testing.T, cfg Config, fn pipeline.Task, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(newTestStore(t), pipeline.NewRegistry(funcJob{kind: testKind, fn: fn}), cfg, opts...)
	t.Cleanup(o.Wait)
	return o
}

func TestSubmit_OK(t *testing.T) {
	o := newOrchestrator(t, Config{MaxConcurrent: 2}, func(context.Context) (string, error) {
		return "imported 3 x leads", nil
	})

	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.JSONEq(t, `{"normalized":true}`, string(run.Params))

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusOK, done.Status)
	assert.Equal(t, "imported 3 x leads", done.ResultSummary)
	assert.Empty(t, done.Error)
	assert.NotNil(t, done.FinishedAt)
}

func TestSubmit_TaskErrorRecorded(t *testing.T) {
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) {
		return "imported 2 instagram leads", eris.New("meta: rate limited")
	})

	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusError, done.Status)
	assert.Equal(t, "imported 2 instagram leads", done.ResultSummary)
	assert.Contains(t, done.Error, "meta: rate limited")
}

func TestSubmit_PanicRecorded(t *testing.T) {
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) {
		panic("nil map")
	})

	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusError, done.Status)
	assert.Contains(t, done.Error, "run panicked: nil map")
}

func TestSubmit_InvalidParamsCreateNoRun(t *testing.T) {
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) { return "", nil })

	_, err := o.Submit(context.Background(), testKind, json.RawMessage(`{"bad":true}`))
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = o.Submit(context.Background(), "nope", nil)
	require.ErrorIs(t, err, model.ErrValidation)

	runs, err := o.List(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestGet_UnknownRun(t *testing.T) {
	o := newOrchestrator(t, Config{}, nil)
	_, err := o.Get(context.Background(), 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmit_DetachedFromCaller(t *testing.T) {
	release := make(chan struct{})
	o := newOrchestrator(t, Config{}, func(ctx context.Context) (string, error) {
		<-release
		return "done", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	run, err := o.Submit(ctx, testKind, nil)
	require.NoError(t, err)
	cancel()
	close(release)

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusOK, done.Status)
}

func TestSubmit_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	o := newOrchestrator(t, Config{MaxConcurrent: 1}, func(context.Context) (string, error) {
		started <- struct{}{}
		<-release
		return "done", nil
	})

	first, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)
	<-started
	second, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	r, err := o.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, r.Status)

	// The second run cannot start while the only slot is held.
	assert.Never(t, func() bool { return len(started) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	r, err = o.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, r.Status)

	close(release)
	o.Wait()
	assert.Equal(t, model.RunStatusOK, waitTerminal(t, o, first.ID).Status)
	assert.Equal(t, model.RunStatusOK, waitTerminal(t, o, second.ID).Status)
}

func TestSubmit_Timeout(t *testing.T) {
	o := newOrchestrator(t, Config{Timeout: 20 * time.Millisecond}, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "audited 0 websites", nil
	})

	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusError, done.Status)
	assert.Contains(t, done.Error, "timed out")
	assert.Equal(t, "audited 0 websites", done.ResultSummary)
}

func TestPolling_NeverLeavesTerminal(t *testing.T) {
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	})
	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	seen := []model.RunStatus{}
	for range 200 {
		r, err := o.Get(context.Background(), run.ID)
		require.NoError(t, err)
		if len(seen) == 0 || seen[len(seen)-1] != r.Status {
			seen = append(seen, r.Status)
		}
		time.Sleep(time.Millisecond)
	}
	o.Wait()

	require.NotEmpty(t, seen)
	assert.Equal(t, model.RunStatusOK, seen[len(seen)-1])
	for _, s := range seen[:len(seen)-1] {
		assert.False(t, s.Terminal(), "terminal status %s was followed by another", s)
	}
}

func TestAwait(t *testing.T) {
	release := make(chan struct{})
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) {
		<-release
		return "done", nil
	})
	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	r, err := o.Await(context.Background(), run.ID, time.Millisecond, 3)
	require.NoError(t, err)
	assert.False(t, r.Status.Terminal())

	close(release)
	r, err = o.Await(context.Background(), run.ID, time.Millisecond, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, r.Status)

	_, err = o.Await(context.Background(), 999, time.Millisecond, 3)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAwait_NonPositiveInterval(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) {
		<-release
		return "done", nil
	})
	run, err := o.Submit(context.Background(), testKind, nil)
	require.NoError(t, err)

	for _, interval := range []time.Duration{0, -time.Second} {
		assert.NotPanics(t, func() {
			r, err := o.Await(context.Background(), run.ID, interval, 3)
			require.NoError(t, err)
			assert.False(t, r.Status.Terminal())
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	o := newOrchestrator(t, Config{}, func(context.Context) (string, error) { return "ok", nil }, WithMetrics(m))

	for range 2 {
		_, err := o.Submit(context.Background(), testKind, nil)
		require.NoError(t, err)
	}
	o.Wait()

	assert.InDelta(t, 2, testutil.ToFloat64(m.submitted.WithLabelValues("test")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.finished.WithLabelValues("test", "ok")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)
}

func TestDiscoverRun_CapsAtMaxLeads(t *testing.T) {
	page := &social.SearchPage{Users: map[string]social.User{}}
	for i := range 7 {
		id := fmt.Sprintf("u%d", i)
		page.Posts = append(page.Posts, social.Post{ID: fmt.Sprint(i), AuthorID: id, Text: "plumber near me"})
		page.Users[id] = social.User{ID: id, Username: fmt.Sprintf("pro%d", i)}
	}

	st := newTestStore(t)
	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	ingester := pipeline.NewIngester(st, scoring.New(scoring.KeywordSet{{Term: "plumber"}}, scoring.DefaultWeights()))
	discover := pipeline.NewDiscoverJob(source.NewSocialAdapter(&stubSocial{page: page}, retry, 100), ingester)
	o := New(st, pipeline.NewRegistry(discover), Config{MaxConcurrent: 1})
	t.Cleanup(o.Wait)

	run, err := o.Submit(context.Background(), model.RunKindDiscover, json.RawMessage(`{"max_leads":5}`))
	require.NoError(t, err)

	done := waitTerminal(t, o, run.ID)
	assert.Equal(t, model.RunStatusOK, done.Status)
	assert.Contains(t, done.ResultSummary, "5")

	leads, err := st.ListLeads(context.Background(), model.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 5)
}
