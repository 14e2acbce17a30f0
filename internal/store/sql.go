package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// Queries are written with "?" placeholders; the Postgres store rebinds them.

const leadColumns = `id, source, dedup_key, handle, place_id, name, profile_url, website, phone, email,
	location, bio, followers, recent_post_snippet, signal_keywords_matched, score, reason, status, notes,
	tags, website_verdict, website_score, website_findings, website_final_url, website_http_status,
	website_checked_at, seen_count, created_at, updated_at, last_seen_at`

// upsertLeadSQL merges an ingested candidate. Blank incoming text never
// clobbers stored values, score and reason always take the latest values,
// website audit columns change only when the candidate carries an audit,
// and status, notes and tags are left to the operator.
const upsertLeadSQL = `INSERT INTO leads (
	dedup_key, source, handle, place_id, name, profile_url, website, phone, email, location, bio,
	followers, recent_post_snippet, signal_keywords_matched, score, reason,
	website_verdict, website_score, website_findings, website_final_url, website_http_status, website_checked_at,
	status, notes, seen_count, created_at, updated_at, last_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'new', '', 1, ?, ?, ?)
ON CONFLICT (dedup_key) DO UPDATE SET
	handle = COALESCE(NULLIF(excluded.handle, ''), leads.handle),
	place_id = COALESCE(NULLIF(excluded.place_id, ''), leads.place_id),
	name = COALESCE(NULLIF(excluded.name, ''), leads.name),
	profile_url = COALESCE(NULLIF(excluded.profile_url, ''), leads.profile_url),
	website = COALESCE(NULLIF(excluded.website, ''), leads.website),
	phone = COALESCE(NULLIF(excluded.phone, ''), leads.phone),
	email = COALESCE(NULLIF(excluded.email, ''), leads.email),
	location = COALESCE(NULLIF(excluded.location, ''), leads.location),
	bio = COALESCE(NULLIF(excluded.bio, ''), leads.bio),
	followers = CASE WHEN excluded.followers > 0 THEN excluded.followers ELSE leads.followers END,
	recent_post_snippet = COALESCE(NULLIF(excluded.recent_post_snippet, ''), leads.recent_post_snippet),
	signal_keywords_matched = excluded.signal_keywords_matched,
	score = excluded.score,
	reason = excluded.reason,
	website_verdict = COALESCE(excluded.website_verdict, leads.website_verdict),
	website_score = COALESCE(excluded.website_score, leads.website_score),
	website_findings = COALESCE(excluded.website_findings, leads.website_findings),
	website_final_url = COALESCE(excluded.website_final_url, leads.website_final_url),
	website_http_status = COALESCE(excluded.website_http_status, leads.website_http_status),
	website_checked_at = COALESCE(excluded.website_checked_at, leads.website_checked_at),
	seen_count = leads.seen_count + 1,
	updated_at = excluded.updated_at,
	last_seen_at = excluded.last_seen_at
RETURNING id, seen_count`

const updateAuditSQL = `UPDATE leads SET website_verdict = ?, website_score = ?, website_findings = ?,
	website_final_url = ?, website_http_status = ?, website_checked_at = ?, updated_at = ? WHERE id = ?`

const leadOrder = ` ORDER BY score DESC, followers DESC, last_seen_at DESC, id ASC`

const runColumns = `id, kind, status, params, started_at, finished_at, result_summary, error`

const (
	insertRunSQL  = `INSERT INTO runs (kind, status, params, started_at) VALUES (?, 'queued', ?, ?) RETURNING id`
	markRunningSQL = `UPDATE runs SET status = 'running' WHERE id = ? AND status = 'queued'`
	finishRunSQL   = `UPDATE runs SET status = ?, finished_at = ?, result_summary = ?, error = ?
	WHERE id = ? AND status IN ('queued', 'running')`
	getRunSQL = `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
)

// upsertArgs flattens a candidate into upsertLeadSQL arguments.
func upsertArgs(key string, c model.Candidate, now time.Time) ([]any, error) {
	matched := c.Matched
	if matched == nil {
		matched = []string{}
	}
	matchedJSON, err := json.Marshal(matched)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal matched keywords")
	}

	var (
		verdict, findings, finalURL *string
		webScore, httpStatus        *int
		checkedAt                   *time.Time
	)
	if a := c.Audit; a != nil {
		v := string(a.Verdict)
		f, err := marshalFindings(a.Findings)
		if err != nil {
			return nil, err
		}
		u := a.FinalURL
		s, hs := a.Score, a.HTTPStatus
		at := a.CheckedAt
		if at.IsZero() {
			at = now
		}
		verdict, findings, finalURL, webScore, httpStatus, checkedAt = &v, &f, &u, &s, &hs, &at
	}

	return []any{
		key, strings.ToLower(string(c.Source)), NormalizeHandle(c.Handle), strings.TrimSpace(c.PlaceID),
		strings.TrimSpace(c.Name), strings.TrimSpace(c.ProfileURL), strings.TrimSpace(c.Website),
		strings.TrimSpace(c.Phone), strings.TrimSpace(c.Email), strings.TrimSpace(c.Location),
		strings.TrimSpace(c.Bio), c.Followers, strings.TrimSpace(c.Snippet), string(matchedJSON),
		c.Score, c.Reason,
		verdict, webScore, findings, finalURL, httpStatus, checkedAt,
		now, now, now,
	}, nil
}

func auditArgs(id int64, res model.AuditResult, now time.Time) ([]any, error) {
	findings, err := marshalFindings(res.Findings)
	if err != nil {
		return nil, err
	}
	checked := res.CheckedAt
	if checked.IsZero() {
		checked = now
	}
	return []any{string(res.Verdict), res.Score, findings, res.FinalURL, res.HTTPStatus, checked, now, id}, nil
}

// patchSets renders the SET clauses of a lead patch, ending with updated_at.
func patchSets(patch model.LeadPatch, now time.Time) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}
	if patch.Tags != nil {
		b, err := json.Marshal(model.CleanTags(*patch.Tags))
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal tags")
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(b))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now)
	return sets, args, nil
}

func marshalFindings(f []string) (string, error) {
	if f == nil {
		f = []string{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal findings")
	}
	return string(b), nil
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// leadQuery builds the filtered listing query. like is the case-insensitive
// match operator of the backend.
func leadQuery(f model.LeadFilter, like string) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		var ors []string
		for _, col := range []string{"name", "handle", "website", "profile_url", "bio", "location", "phone", "email"} {
			ors = append(ors, col+" "+like+` ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, strings.ToLower(string(f.Source)))
	}
	if f.MinScore != nil {
		where = append(where, "score >= ?")
		args = append(args, *f.MinScore)
	}
	if f.WebsiteVerdict != "" {
		where = append(where, "website_verdict = ?")
		args = append(args, string(f.WebsiteVerdict))
	}
	if f.MaxWebsiteScore != nil {
		where = append(where, "website_score IS NOT NULL AND website_score <= ?")
		args = append(args, *f.MaxWebsiteScore)
	}

	q := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += leadOrder + " LIMIT ? OFFSET ?"
	args = append(args, clampLimit(f.Limit, defaultLeadLimit, maxLeadLimit), max(f.Offset, 0))
	return q, args
}

func auditQuery(q AuditQuery) (string, []any) {
	query := `SELECT id, website FROM leads WHERE website_checked_at IS NULL`
	var args []any
	if q.Source != "" {
		query += " AND source = ?"
		args = append(args, strings.ToLower(string(q.Source)))
	}
	if q.RequireWebsite {
		query += " AND website <> ''"
	}
	query += leadOrder + " LIMIT ?"
	args = append(args, clampLimit(q.Limit, 25, maxLeadLimit))
	return query, args
}

func runListQuery(f model.RunFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit, defaultRunLimit, maxLeadLimit))
	return q, args
}

func clampLimit(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	return min(n, hi)
}

// rebind converts "?" placeholders to "$1", "$2", ...
func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func scanLead(row scannable) (*model.Lead, error) {
	var (
		l          model.Lead
		matched    string
		tags       string
		verdict    *string
		findings   *string
		finalURL   *string
		httpStatus *int
		webScore   *int
		checkedAt  *time.Time
	)
	err := row.Scan(
		&l.ID, &l.Source, &l.DedupKey, &l.Handle, &l.PlaceID, &l.Name, &l.ProfileURL, &l.Website,
		&l.Phone, &l.Email, &l.Location, &l.Bio, &l.Followers, &l.RecentPostSnippet, &matched,
		&l.Score, &l.Reason, &l.Status, &l.Notes,
		&tags, &verdict, &webScore, &findings, &finalURL, &httpStatus, &checkedAt,
		&l.SeenCount, &l.CreatedAt, &l.UpdatedAt, &l.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	l.SignalKeywordsMatched = []string{}
	if matched != "" {
		if err := json.Unmarshal([]byte(matched), &l.SignalKeywordsMatched); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal matched keywords")
		}
	}
	l.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal tags")
		}
	}
	if verdict != nil {
		l.WebsiteVerdict = model.WebsiteVerdict(*verdict)
	}
	l.WebsiteScore = webScore
	if findings != nil && *findings != "" {
		if err := json.Unmarshal([]byte(*findings), &l.WebsiteFindings); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal findings")
		}
	}
	if finalURL != nil {
		l.WebsiteFinalURL = *finalURL
	}
	if httpStatus != nil {
		l.WebsiteHTTPStatus = *httpStatus
	}
	l.WebsiteCheckedAt = checkedAt
	return &l, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r      model.Run
		params string
	)
	if err := row.Scan(&r.ID, &r.Kind, &r.Status, &params, &r.StartedAt, &r.FinishedAt, &r.ResultSummary, &r.Error); err != nil {
		return nil, err
	}
	if params != "" {
		r.Params = json.RawMessage(params)
	}
	return &r, nil
}

func emptyCounts() map[model.LeadStatus]int {
	counts := make(map[model.LeadStatus]int, len(model.LeadStatuses))
	for _, s := range model.LeadStatuses {
		counts[s] = 0
	}
	return counts
}

func normalizeParams(params []byte) string {
	if len(params) == 0 {
		return "{}"
	}
	return string(params)
}
