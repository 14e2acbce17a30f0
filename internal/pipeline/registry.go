package pipeline

import (
	"context"
	"encoding/json"

	"github.com/sells-group/lead-finder/internal/model"
)

// Task executes a bound run and returns its human-readable summary. The
// summary is meaningful even when err is non-nil.
type Task func(ctx context.Context) (summary string, err error)

// Bound is a job whose parameters were validated and defaulted.
type Bound struct {
	// Params is the normalized parameter set recorded on the run, with
	// credentials removed.
	Params json.RawMessage
	Task   Task
}

// Job binds raw run parameters to executable work for one run kind.
type Job interface {
	Kind() model.RunKind
	// Bind validates raw. Invalid parameters return an error wrapping
	// model.ErrValidation.
	Bind(raw json.RawMessage) (*Bound, error)
}

// Registry maps run kinds to their jobs.
type Registry struct {
	jobs  map[model.RunKind]Job
	order []model.RunKind // insertion order for deterministic listing
}

// NewRegistry creates a registry holding jobs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make(map[model.RunKind]Job)}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register adds a job, replacing any job of the same kind.
func (r *Registry) Register(j Job) {
	kind := j.Kind()
	if _, ok := r.jobs[kind]; !ok {
		r.order = append(r.order, kind)
	}
	r.jobs[kind] = j
}

// Get returns the job for kind.
func (r *Registry) Get(kind model.RunKind) (Job, error) {
	j, ok := r.jobs[kind]
	if !ok {
		return nil, model.Validationf("no job registered for run kind %q", kind)
	}
	return j, nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []model.RunKind {
	out := make([]model.RunKind, len(r.order))
	copy(out, r.order)
	return out
}
