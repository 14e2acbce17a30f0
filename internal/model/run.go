package model

import (
	"encoding/json"
	"strings"
	"time"
)

// RunKind names a job the orchestrator knows how to execute.
type RunKind string

const (
	RunKindDiscover      RunKind = "discover"
	RunKindMapsScrape    RunKind = "maps_scrape"
	RunKindIGCommenters  RunKind = "ig_commenters"
	RunKindAuditWebsites RunKind = "audit_websites"
)

// RunKinds lists every known kind.
var RunKinds = []RunKind{RunKindDiscover, RunKindMapsScrape, RunKindIGCommenters, RunKindAuditWebsites}

// ParseRunKind accepts either "_" or "-" separators.
func ParseRunKind(s string) (RunKind, error) {
	k := RunKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, v := range RunKinds {
		if k == v {
			return k, nil
		}
	}
	return "", Validationf("unknown run kind %q", s)
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusOK || s == RunStatusError
}

// Run is a persistent record of one orchestrated job execution.
type Run struct {
	ID            int64           `json:"id"`
	Kind          RunKind         `json:"kind"`
	Status        RunStatus       `json:"status"`
	Params        json.RawMessage `json:"params,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	ResultSummary string          `json:"result_summary,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Kind   RunKind
	Status RunStatus
	Limit  int
}
