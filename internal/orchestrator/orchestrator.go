// Package orchestrator accepts run requests, executes them in the background
// and records their lifecycle in the run store. The run record is the only
// channel between a background run and the callers polling it.
package orchestrator

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/store"
)

// Config controls run execution.
type Config struct {
	// MaxConcurrent bounds the runs executing at once. Further runs stay
	// queued until a slot frees.
	MaxConcurrent int

	// Timeout bounds one run's execution. 0 means no limit.
	Timeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs jobs in the background.
type Orchestrator struct {
	runs    store.RunStore
	jobs    *pipeline.Registry
	cfg     Config
	slots   *semaphore.Weighted
	metrics *Metrics
	wg      sync.WaitGroup
	nowFunc func() time.Time
}

// New creates an Orchestrator.
func New(runs store.RunStore, jobs *pipeline.Registry, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	o := &Orchestrator{
		runs:    runs,
		jobs:    jobs,
		cfg:     cfg,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Kinds lists the run kinds that can be submitted.
func (o *Orchestrator) Kinds() []model.RunKind { return o.jobs.Kinds() }

// Submit validates params, records a queued run and starts it in the
// background. Invalid parameters return an error wrapping
// model.ErrValidation and create no run. The run is detached from ctx:
// cancelling ctx after Submit returns does not stop it.
func (o *Orchestrator) Submit(ctx context.Context, kind model.RunKind, params json.RawMessage) (*model.Run, error) {
	job, err := o.jobs.Get(kind)
	if err != nil {
		return nil, err
	}
	bound, err := job.Bind(params)
	if err != nil {
		return nil, err
	}

	run, err := o.runs.CreateRun(ctx, kind, bound.Params)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: create run")
	}
	o.metrics.runSubmitted(string(kind))

	zap.L().Info("orchestrator: run submitted", zap.Int64("run_id", run.ID), zap.String("kind", string(kind)))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(context.WithoutCancel(ctx), run.ID, kind, bound.Task)
	}()
	return run, nil
}

// execute drives one run to a terminal status. Every failure, including a
// panic in the task, is recorded on the run rather than returned.
func (o *Orchestrator) execute(ctx context.Context, id int64, kind model.RunKind, task pipeline.Task) {
	log := zap.L().With(zap.Int64("run_id", id), zap.String("kind", string(kind)))

	if err := o.slots.Acquire(ctx, 1); err != nil {
		o.finish(ctx, log, id, kind, "", eris.Wrap(err, "orchestrator: wait for run slot"), time.Time{})
		return
	}
	defer o.slots.Release(1)

	if err := o.runs.MarkRunRunning(ctx, id); err != nil {
		log.Error("orchestrator: mark run running", zap.Error(err))
		o.finish(ctx, log, id, kind, "", err, time.Time{})
		return
	}
	start := o.nowFunc()
	o.metrics.runStarted()
	log.Info("orchestrator: run started")

	runCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	summary, err := runTask(runCtx, task)
	if runCtx.Err() == context.DeadlineExceeded {
		log.Warn("orchestrator: run timed out", zap.Duration("timeout", o.cfg.Timeout))
		if err == nil {
			err = eris.Errorf("run timed out after %s", o.cfg.Timeout)
		}
	}
	o.finish(ctx, log, id, kind, summary, err, start)
}

func runTask(ctx context.Context, task pipeline.Task) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("orchestrator: run panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = eris.Errorf("run panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, id int64, kind model.RunKind, summary string, runErr error, start time.Time) {
	status := model.RunStatusOK
	msg := ""
	if runErr != nil {
		status = model.RunStatusError
		msg = runErr.Error()
	}

	if err := o.runs.FinishRun(ctx, id, status, summary, msg); err != nil {
		log.Error("orchestrator: record run result", zap.Error(err))
	}
	if !start.IsZero() {
		o.metrics.runFinished(string(kind), string(status), o.nowFunc().Sub(start).Seconds())
	}

	if runErr != nil {
		log.Error("orchestrator: run failed", zap.String("summary", summary), zap.Error(runErr))
		return
	}
	log.Info("orchestrator: run complete", zap.String("summary", summary))
}

// Get returns the current run record. Unknown ids return an error wrapping
// model.ErrNotFound.
func (o *Orchestrator) Get(ctx context.Context, id int64) (*model.Run, error) {
	return o.runs.GetRun(ctx, id)
}

// List returns runs, newest first.
func (o *Orchestrator) List(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	return o.runs.ListRuns(ctx, filter)
}

// minPollInterval bounds how often Await reads the run record.
const minPollInterval = 10 * time.Millisecond

// Wait blocks until every submitted run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Await polls run id every interval until it is terminal, ctx is done, or
// attempts polls were made. The last observed record is returned; callers
// treat a non-terminal status as "still running".
func (o *Orchestrator) Await(ctx context.Context, id int64, interval time.Duration, attempts int) (*model.Run, error) {
	if attempts < 1 {
		attempts = 1
	}
	interval = max(interval, minPollInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var run *model.Run
	for i := 0; i < attempts; i++ {
		var err error
		run, err = o.runs.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() || i == attempts-1 {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, eris.Wrap(ctx.Err(), "orchestrator: await run")
		case <-ticker.C:
		}
	}
	return run, nil
}
