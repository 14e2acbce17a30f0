package model

// RawCandidate is a source-tagged, not yet scored record emitted by a source
// adapter. Adapters normalize their upstream payloads into this shape at the
// boundary; nothing downstream inspects upstream JSON.
type RawCandidate struct {
	Source     Source   `json:"source"`
	Handle     string   `json:"handle,omitempty"`
	PlaceID    string   `json:"place_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	ProfileURL string   `json:"profile_url,omitempty"`
	Website    string   `json:"website,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Email      string   `json:"email,omitempty"`
	Location   string   `json:"location,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
	Followers  int      `json:"followers,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// Audit is set when the candidate already carries a website audit.
	Audit *AuditResult `json:"audit,omitempty"`
}

// Candidate is a scored record ready to be merged into the lead store.
type Candidate struct {
	RawCandidate
	Score   int
	Matched []string
	Reason  string
}
