// Package store persists leads and runs. SQLite is the default backend; a
// Postgres backend serves shared deployments.
package store

import (
	"context"

	"github.com/sells-group/lead-finder/internal/model"
)

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	ID      int64
	Created bool
}

// AuditQuery selects leads that have never been audited.
type AuditQuery struct {
	Limit          int
	Source         model.Source
	RequireWebsite bool
}

// LeadStore is the lead record store.
type LeadStore interface {
	// UpsertLead merges c into the lead identified by its dedup key.
	UpsertLead(ctx context.Context, c model.Candidate) (UpsertResult, error)
	PatchLead(ctx context.Context, id int64, patch model.LeadPatch) (*model.Lead, error)
	GetLead(ctx context.Context, id int64) (*model.Lead, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error)
	CountByStatus(ctx context.Context, source model.Source) (map[model.LeadStatus]int, error)
	LeadsNeedingAudit(ctx context.Context, q AuditQuery) ([]model.AuditTarget, error)
	UpdateWebsiteAudit(ctx context.Context, id int64, res model.AuditResult) error
}

// RunStore persists run records. Status transitions are monotonic:
// queued -> running -> ok|error, and terminal runs are never rewritten.
type RunStore interface {
	CreateRun(ctx context.Context, kind model.RunKind, params []byte) (*model.Run, error)
	MarkRunRunning(ctx context.Context, id int64) error
	FinishRun(ctx context.Context, id int64, status model.RunStatus, summary, errMsg string) error
	GetRun(ctx context.Context, id int64) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Store is the full persistence interface.
type Store interface {
	LeadStore
	RunStore

	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultLeadLimit = 200
	maxLeadLimit     = 1000
	defaultRunLimit  = 50
)
