// Package scoring assigns a 0-100 lead quality score from keyword signals
// and contact channel presence.
package scoring

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-finder/internal/model"
)

const maxScore = 100

// Weights configures the fixed contributions of each signal. All weights are
// non-negative so adding a signal never lowers a score.
type Weights struct {
	Keyword  int `json:"keyword"`
	Phone    int `json:"phone"`
	Website  int `json:"website"`
	Follower int `json:"follower"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{Keyword: 10, Phone: 14, Website: 3, Follower: 8}
}

// Options adjust a single scoring call.
type Options struct {
	// MinFollowers awards the follower bonus when the candidate meets it.
	// Zero disables the bonus.
	MinFollowers int
}

// Result is the scoring output.
type Result struct {
	Score   int
	Matched []string
	Reason  string
}

type term struct {
	raw    string
	folded string
	weight int
}

// Scorer scores candidates against a fixed keyword set. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	terms   []term
	weights Weights
}

// New builds a Scorer. Keywords without a weight use w.Keyword.
func New(set KeywordSet, w Weights) *Scorer {
	s := &Scorer{weights: sanitize(w)}
	seen := make(map[string]bool, len(set))
	for _, kw := range set {
		f := fold(kw.Term)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		weight := kw.Weight
		if weight <= 0 {
			weight = s.weights.Keyword
		}
		s.terms = append(s.terms, term{raw: kw.Term, folded: f, weight: weight})
	}
	return s
}

// Keywords returns the scorer's keyword set in order.
func (s *Scorer) Keywords() KeywordSet {
	set := make(KeywordSet, 0, len(s.terms))
	for _, t := range s.terms {
		set = append(set, Keyword{Term: t.raw, Weight: t.weight})
	}
	return set
}

// Weights returns the signal weights in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Score is a pure function of the candidate, the keyword set, and options.
func (s *Scorer) Score(c model.RawCandidate, opts Options) Result {
	text := fold(strings.Join(append([]string{c.Name, c.Bio, c.Snippet, c.Location}, c.Tags...), "\n"))

	var (
		total   int
		matched = []string{}
		reasons []string
	)
	for _, t := range s.terms {
		if strings.Contains(text, t.folded) {
			total += t.weight
			matched = append(matched, t.raw)
			reasons = append(reasons, "kw:"+t.raw)
		}
	}
	if strings.TrimSpace(c.Phone) != "" {
		total += s.weights.Phone
		reasons = append(reasons, "contact:phone")
	}
	if strings.TrimSpace(c.Website) != "" {
		total += s.weights.Website
		reasons = append(reasons, "has_website")
	}
	if opts.MinFollowers > 0 && c.Followers >= opts.MinFollowers {
		total += s.weights.Follower
		reasons = append(reasons, fmt.Sprintf("followers>=%d", opts.MinFollowers))
	}

	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "no signals"
	}
	return Result{Score: min(total, maxScore), Matched: matched, Reason: reason}
}

func sanitize(w Weights) Weights {
	w.Keyword = max(w.Keyword, 0)
	w.Phone = max(w.Phone, 0)
	w.Website = max(w.Website, 0)
	w.Follower = max(w.Follower, 0)
	return w
}

// fold lowercases and strips diacritics so "Estética" matches "estetica".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
