// Package model defines the lead, run, and candidate types shared across the
// ingestion pipeline, the stores, and the HTTP surface.
package model

import (
	"strings"
	"time"
)

// Source identifies where a lead was discovered.
type Source string

const (
	SourceX          Source = "x"
	SourceInstagram  Source = "instagram"
	SourceGoogleMaps Source = "google_maps"
	SourceManual     Source = "manual"
)

// IsMaps reports whether the source is a map-listing source. Map listings are
// keyed by place id rather than by social handle.
func (s Source) IsMaps() bool {
	switch s {
	case SourceGoogleMaps, "maps", "gmb", "local":
		return true
	}
	return false
}

// LeadStatus is the operator-managed pipeline stage of a lead.
type LeadStatus string

const (
	LeadStatusNew               LeadStatus = "new"
	LeadStatusQualified         LeadStatus = "qualified"
	LeadStatusContacted         LeadStatus = "contacted"
	LeadStatusAppointmentBooked LeadStatus = "appointment_booked"
	LeadStatusWon               LeadStatus = "won"
	LeadStatusNotFit            LeadStatus = "not_fit"
)

// LeadStatuses lists every status in pipeline order.
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusQualified,
	LeadStatusContacted,
	LeadStatusAppointmentBooked,
	LeadStatusWon,
	LeadStatusNotFit,
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// WebsiteVerdict classifies a lead's website.
type WebsiteVerdict string

const (
	VerdictGood    WebsiteVerdict = "good"
	VerdictWeak    WebsiteVerdict = "weak"
	VerdictBroken  WebsiteVerdict = "broken"
	VerdictUnknown WebsiteVerdict = "unknown"
)

// Lead is a deduplicated prospect record.
type Lead struct {
	ID                    int64          `json:"id"`
	Source                Source         `json:"source"`
	DedupKey              string         `json:"dedup_key"`
	Handle                string         `json:"handle,omitempty"`
	PlaceID               string         `json:"place_id,omitempty"`
	Name                  string         `json:"name,omitempty"`
	ProfileURL            string         `json:"profile_url,omitempty"`
	Website               string         `json:"website,omitempty"`
	Phone                 string         `json:"phone,omitempty"`
	Email                 string         `json:"email,omitempty"`
	Location              string         `json:"location,omitempty"`
	Bio                   string         `json:"bio,omitempty"`
	Followers             int            `json:"followers"`
	RecentPostSnippet     string         `json:"recent_post_snippet,omitempty"`
	SignalKeywordsMatched []string       `json:"signal_keywords_matched"`
	Score                 int            `json:"score"`
	Reason                string         `json:"reason"`
	Status                LeadStatus     `json:"status"`
	Notes                 string         `json:"notes"`
	Tags                  []string       `json:"tags"`
	WebsiteVerdict        WebsiteVerdict `json:"website_verdict,omitempty"`
	WebsiteScore          *int           `json:"website_score,omitempty"`
	WebsiteFindings       []string       `json:"website_findings,omitempty"`
	WebsiteFinalURL       string         `json:"website_final_url,omitempty"`
	WebsiteHTTPStatus     int            `json:"website_http_status,omitempty"`
	WebsiteCheckedAt      *time.Time     `json:"website_checked_at,omitempty"`
	SeenCount             int            `json:"seen_count"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	LastSeenAt            time.Time      `json:"last_seen_at"`
}

// LeadFilter narrows a lead listing. Zero values mean "no constraint".
type LeadFilter struct {
	Query           string
	Status          LeadStatus
	Source          Source
	MinScore        *int
	WebsiteVerdict  WebsiteVerdict
	MaxWebsiteScore *int
	Limit           int
	Offset          int
}

// LeadPatch carries operator edits. Nil fields are left untouched; a non-nil
// Tags replaces the whole tag list.
type LeadPatch struct {
	Status *LeadStatus `json:"status,omitempty"`
	Notes  *string     `json:"notes,omitempty"`
	Tags   *[]string   `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p LeadPatch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.Tags == nil
}

// CleanTags trims tags, dropping blanks and repeats while keeping order.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the patch values.
func (p LeadPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return Validationf("unknown lead status %q", *p.Status)
	}
	return nil
}

// AuditTarget is a lead scheduled for a website audit.
type AuditTarget struct {
	LeadID  int64
	Website string
}
