package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Keyword is one scoring signal. A zero Weight means the scorer's default
// keyword weight.
type Keyword struct {
	Term   string `yaml:"term" json:"term"`
	Weight int    `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// KeywordSet is an ordered collection of keywords. Order determines the
// order of matched terms in scoring output.
type KeywordSet []Keyword

// Terms returns the bare terms in order.
func (ks KeywordSet) Terms() []string {
	terms := make([]string, 0, len(ks))
	for _, k := range ks {
		terms = append(terms, k.Term)
	}
	return terms
}

// keywordFile accepts either a list of {term, weight} objects or plain strings.
type keywordFile struct {
	Keywords []yaml.Node `yaml:"keywords"`
}

// LoadKeywords reads a YAML keyword file:
//
//	keywords:
//	  - book now
//	  - term: plumber
//	    weight: 30
func LoadKeywords(path string) (KeywordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: read keywords %s", path)
	}
	return ParseKeywords(data)
}

// ParseKeywords parses the YAML keyword format. Negative weights are rejected
// so that score stays monotonic in matched keywords.
func ParseKeywords(data []byte) (KeywordSet, error) {
	var f keywordFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "scoring: parse keywords")
	}

	set := make(KeywordSet, 0, len(f.Keywords))
	for i, node := range f.Keywords {
		var kw Keyword
		switch node.Kind {
		case yaml.ScalarNode:
			kw.Term = node.Value
		case yaml.MappingNode:
			if err := node.Decode(&kw); err != nil {
				return nil, eris.Wrapf(err, "scoring: keyword %d", i)
			}
		default:
			return nil, eris.Errorf("scoring: keyword %d: expected string or mapping", i)
		}
		if kw.Term == "" {
			return nil, eris.Errorf("scoring: keyword %d: empty term", i)
		}
		if kw.Weight < 0 {
			return nil, eris.Errorf("scoring: keyword %q: negative weight %d", kw.Term, kw.Weight)
		}
		set = append(set, kw)
	}
	if len(set) == 0 {
		return nil, eris.New("scoring: keyword file has no keywords")
	}
	return set, nil
}

// DefaultKeywords is the owner-operator vocabulary: booking intent, pain
// signals, local services, and solo sellers.
func DefaultKeywords() KeywordSet {
	return KeywordSet{
		// intent
		{Term: "taking new clients", Weight: 12},
		{Term: "available this week", Weight: 10},
		{Term: "dm to book", Weight: 12},
		{Term: "dm to schedule", Weight: 10},
		{Term: "book now", Weight: 10},
		{Term: "free quote", Weight: 10},
		{Term: "get a quote", Weight: 8},
		{Term: "same day", Weight: 6},
		{Term: "emergency", Weight: 6},
		{Term: "whatsapp", Weight: 8},
		{Term: "text me", Weight: 6},
		{Term: "message me", Weight: 6},
		{Term: "appointment", Weight: 8},
		{Term: "booking", Weight: 8},

		// pain
		{Term: "missed calls", Weight: 8},
		{Term: "need more leads", Weight: 8},
		{Term: "need more bookings", Weight: 8},
		{Term: "need a website", Weight: 10},
		{Term: "website is outdated", Weight: 8},
		{Term: "link in bio", Weight: 6},

		// local services
		{Term: "electrician", Weight: 30},
		{Term: "plumber", Weight: 30},
		{Term: "handyman", Weight: 30},
		{Term: "carpenter", Weight: 28},
		{Term: "gardener", Weight: 28},
		{Term: "painter", Weight: 16},
		{Term: "hvac", Weight: 16},
		{Term: "roofing", Weight: 14},
		{Term: "landscaping", Weight: 12},
		{Term: "cleaning", Weight: 10},
		{Term: "locksmith", Weight: 12},
		{Term: "mechanic", Weight: 12},
		{Term: "barber", Weight: 14},
		{Term: "salon", Weight: 12},
		{Term: "nails", Weight: 12},

		// solo sellers
		{Term: "coach", Weight: 14},
		{Term: "consultant", Weight: 12},
		{Term: "therapist", Weight: 12},
		{Term: "personal trainer", Weight: 12},
		{Term: "owner", Weight: 8},
		{Term: "self-employed", Weight: 8},
	}
}
