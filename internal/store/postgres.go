package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	nowFunc func() time.Time
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close), nil
}

func newPostgresWithPool(pool Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, nowFunc: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                      BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	dedup_key               TEXT NOT NULL UNIQUE,
	source                  TEXT NOT NULL,
	handle                  TEXT NOT NULL DEFAULT '',
	place_id                TEXT NOT NULL DEFAULT '',
	name                    TEXT NOT NULL DEFAULT '',
	profile_url             TEXT NOT NULL DEFAULT '',
	website                 TEXT NOT NULL DEFAULT '',
	phone                   TEXT NOT NULL DEFAULT '',
	email                   TEXT NOT NULL DEFAULT '',
	location                TEXT NOT NULL DEFAULT '',
	bio                     TEXT NOT NULL DEFAULT '',
	followers               INTEGER NOT NULL DEFAULT 0,
	recent_post_snippet     TEXT NOT NULL DEFAULT '',
	signal_keywords_matched TEXT NOT NULL DEFAULT '[]',
	score                   INTEGER NOT NULL DEFAULT 0,
	reason                  TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL DEFAULT 'new',
	notes                   TEXT NOT NULL DEFAULT '',
	tags                    TEXT NOT NULL DEFAULT '[]',
	website_verdict         TEXT,
	website_score           INTEGER,
	website_findings        TEXT,
	website_final_url       TEXT,
	website_http_status     INTEGER,
	website_checked_at      TIMESTAMPTZ,
	seen_count              INTEGER NOT NULL DEFAULT 1,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL,
	last_seen_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score DESC);
CREATE INDEX IF NOT EXISTS idx_leads_unaudited ON leads(score DESC) WHERE website_checked_at IS NULL;

CREATE TABLE IF NOT EXISTS runs (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'queued',
	params         TEXT NOT NULL DEFAULT '{}',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ,
	result_summary TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// -- leads --

func (s *PostgresStore) UpsertLead(ctx context.Context, c model.Candidate) (UpsertResult, error) {
	key, err := DedupKey(c.RawCandidate)
	if err != nil {
		return UpsertResult{}, err
	}
	args, err := upsertArgs(key, c, s.nowFunc())
	if err != nil {
		return UpsertResult{}, err
	}

	var res UpsertResult
	var seen int
	if err := s.pool.QueryRow(ctx, rebind(upsertLeadSQL), args...).Scan(&res.ID, &seen); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "postgres: upsert lead %s", key)
	}
	res.Created = seen == 1
	return res, nil
}

func (s *PostgresStore) PatchLead(ctx context.Context, id int64, patch model.LeadPatch) (*model.Lead, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !patch.Empty() {
		sets, args, err := patchSets(patch, s.nowFunc())
		if err != nil {
			return nil, err
		}
		args = append(args, id)

		tag, err := s.pool.Exec(ctx, rebind(`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: patch lead %d", id)
		}
		if tag.RowsAffected() == 0 {
			return nil, model.NotFoundf("lead %d", id)
		}
	}
	return s.GetLead(ctx, id)
}

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, model.NotFoundf("lead %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %d", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	q, args := leadQuery(filter, "ILIKE")
	rows, err := s.pool.Query(ctx, rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func (s *PostgresStore) CountByStatus(ctx context.Context, source model.Source) (map[model.LeadStatus]int, error) {
	q := `SELECT status, COUNT(*) FROM leads`
	var args []any
	if source != "" {
		q += ` WHERE source = ?`
		args = append(args, strings.ToLower(string(source)))
	}
	q += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := emptyCounts()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.LeadStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

func (s *PostgresStore) LeadsNeedingAudit(ctx context.Context, q AuditQuery) ([]model.AuditTarget, error) {
	query, args := auditQuery(q)
	rows, err := s.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: leads needing audit")
	}
	defer rows.Close()

	var targets []model.AuditTarget
	for rows.Next() {
		var t model.AuditTarget
		if err := rows.Scan(&t.LeadID, &t.Website); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit target")
		}
		targets = append(targets, t)
	}
	return targets, eris.Wrap(rows.Err(), "postgres: iterate audit targets")
}

func (s *PostgresStore) UpdateWebsiteAudit(ctx context.Context, id int64, res model.AuditResult) error {
	args, err := auditArgs(id, res, s.nowFunc())
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, rebind(updateAuditSQL), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update audit %d", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("lead %d", id)
	}
	return nil
}

// -- runs --

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind, params []byte) (*model.Run, error) {
	now := s.nowFunc()
	p := normalizeParams(params)
	var id int64
	if err := s.pool.QueryRow(ctx, rebind(insertRunSQL), string(kind), p, now).Scan(&id); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Kind: kind, Status: model.RunStatusQueued, Params: []byte(p), StartedAt: now}, nil
}

func (s *PostgresStore) MarkRunRunning(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, rebind(markRunningSQL), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run %d running", id)
	}
	return s.checkTransition(ctx, tag, id, model.RunStatusRunning)
}

func (s *PostgresStore) FinishRun(ctx context.Context, id int64, status model.RunStatus, summary, errMsg string) error {
	if !status.Terminal() {
		return model.Validationf("run %d: %s is not a terminal status", id, status)
	}
	tag, err := s.pool.Exec(ctx, rebind(finishRunSQL), string(status), s.nowFunc(), summary, errMsg, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %d", id)
	}
	return s.checkTransition(ctx, tag, id, status)
}

func (s *PostgresStore) checkTransition(ctx context.Context, tag pgconn.CommandTag, id int64, to model.RunStatus) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	return model.Validationf("run %d: cannot move from %s to %s", id, run.Status, to)
}

func (s *PostgresStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, rebind(getRunSQL), id))
	if isNoRows(err) {
		return nil, model.NotFoundf("run %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %d", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	q, args := runListQuery(filter)
	rows, err := s.pool.Query(ctx, rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
