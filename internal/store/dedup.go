package store

import (
	"strings"

	"github.com/sells-group/lead-finder/internal/model"
)

// DedupKey derives the stable identity of a candidate from its source and
// the first available of handle, place id, or website. It is a pure function
// of those fields, so re-ingesting the same entity always yields the same key.
func DedupKey(c model.RawCandidate) (string, error) {
	src := strings.ToLower(strings.TrimSpace(string(c.Source)))
	if src == "" {
		return "", model.Validationf("candidate has no source")
	}
	if h := NormalizeHandle(c.Handle); h != "" {
		return src + "|h:" + h, nil
	}
	if p := strings.TrimSpace(c.PlaceID); p != "" {
		return src + "|p:" + p, nil
	}
	if w := NormalizeWebsite(c.Website); w != "" {
		return src + "|w:" + w, nil
	}
	return "", model.Validationf("candidate from %s has no handle, place id, or website", src)
}

// NormalizeHandle trims whitespace and a leading "@" and lowercases.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// NormalizeWebsite reduces a URL to a comparable host+path form.
func NormalizeWebsite(raw string) string {
	w := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range []string{"https://", "http://"} {
		w = strings.TrimPrefix(w, p)
	}
	w = strings.TrimPrefix(w, "www.")
	if i := strings.IndexAny(w, "?#"); i >= 0 {
		w = w[:i]
	}
	return strings.TrimRight(w, "/")
}
