package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-finder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes writers so concurrent upserts of one dedup key
	// never interleave.
	writeMu sync.Mutex
	nowFunc func() time.Time
}

var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(path, "?") && !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
			}
		}
		var params []string
		for _, p := range sqlitePragmas {
			params = append(params, "_pragma="+p)
		}
		dsn = path + "?" + strings.Join(params, "&")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, nowFunc: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
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
	website_checked_at      DATETIME,
	seen_count              INTEGER NOT NULL DEFAULT 1,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL,
	last_seen_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score DESC);
CREATE INDEX IF NOT EXISTS idx_leads_website_checked ON leads(website_checked_at);

CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'queued',
	params         TEXT NOT NULL DEFAULT '{}',
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME,
	result_summary TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- leads --

func (s *SQLiteStore) UpsertLead(ctx context.Context, c model.Candidate) (UpsertResult, error) {
	key, err := DedupKey(c.RawCandidate)
	if err != nil {
		return UpsertResult{}, err
	}
	args, err := upsertArgs(key, c, s.nowFunc())
	if err != nil {
		return UpsertResult{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var res UpsertResult
	var seen int
	if err := s.db.QueryRowContext(ctx, upsertLeadSQL, args...).Scan(&res.ID, &seen); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "sqlite: upsert lead %s", key)
	}
	res.Created = seen == 1
	return res, nil
}

func (s *SQLiteStore) PatchLead(ctx context.Context, id int64, patch model.LeadPatch) (*model.Lead, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	if !patch.Empty() {
		sets, args, err := patchSets(patch, s.nowFunc())
		if err != nil {
			return nil, err
		}
		args = append(args, id)

		s.writeMu.Lock()
		res, err := s.db.ExecContext(ctx, `UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		s.writeMu.Unlock()
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: patch lead %d", id)
		}
		if err := checkRowsAffected(res, "lead", id); err != nil {
			return nil, err
		}
	}
	return s.GetLead(ctx, id)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if isNoRows(err) {
		return nil, model.NotFoundf("lead %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	q, args := leadQuery(filter, "LIKE")
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, source model.Source) (map[model.LeadStatus]int, error) {
	q := `SELECT status, COUNT(*) FROM leads`
	var args []any
	if source != "" {
		q += ` WHERE source = ?`
		args = append(args, strings.ToLower(string(source)))
	}
	q += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close() //nolint:errcheck

	counts := emptyCounts()
	for rows.Next() {
		var status model.LeadStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[status] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

func (s *SQLiteStore) LeadsNeedingAudit(ctx context.Context, q AuditQuery) ([]model.AuditTarget, error) {
	query, args := auditQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: leads needing audit")
	}
	defer rows.Close() //nolint:errcheck

	var targets []model.AuditTarget
	for rows.Next() {
		var t model.AuditTarget
		if err := rows.Scan(&t.LeadID, &t.Website); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit target")
		}
		targets = append(targets, t)
	}
	return targets, eris.Wrap(rows.Err(), "sqlite: iterate audit targets")
}

func (s *SQLiteStore) UpdateWebsiteAudit(ctx context.Context, id int64, res model.AuditResult) error {
	args, err := auditArgs(id, res, s.nowFunc())
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	r, err := s.db.ExecContext(ctx, updateAuditSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update audit %d", id)
	}
	return checkRowsAffected(r, "lead", id)
}

// -- runs --

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind, params []byte) (*model.Run, error) {
	now := s.nowFunc()
	p := normalizeParams(params)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	if err := s.db.QueryRowContext(ctx, insertRunSQL, string(kind), p, now).Scan(&id); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Kind: kind, Status: model.RunStatusQueued, Params: []byte(p), StartedAt: now}, nil
}

func (s *SQLiteStore) MarkRunRunning(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, markRunningSQL, id)
	s.writeMu.Unlock()
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run %d running", id)
	}
	return s.checkTransition(ctx, res, id, model.RunStatusRunning)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id int64, status model.RunStatus, summary, errMsg string) error {
	if !status.Terminal() {
		return model.Validationf("run %d: %s is not a terminal status", id, status)
	}
	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, finishRunSQL, string(status), s.nowFunc(), summary, errMsg, id)
	s.writeMu.Unlock()
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %d", id)
	}
	return s.checkTransition(ctx, res, id, status)
}

// checkTransition explains a guarded update that matched no rows.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id int64, to model.RunStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	return model.Validationf("run %d: cannot move from %s to %s", id, run.Status, to)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, getRunSQL, id))
	if isNoRows(err) {
		return nil, model.NotFoundf("run %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %d", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	q, args := runListQuery(filter)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return model.NotFoundf("%s %d", entity, id)
	}
	return nil
}
