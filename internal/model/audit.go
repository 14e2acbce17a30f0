package model

import "time"

// AuditResult is the outcome of a single website assessment.
type AuditResult struct {
	Verdict    WebsiteVerdict `json:"verdict"`
	Score      int            `json:"score"`
	Findings   []string       `json:"findings"`
	FinalURL   string         `json:"final_url,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
}
