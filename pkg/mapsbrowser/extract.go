package mapsbrowser

import (
	"regexp"
	"strings"
)

var (
	phoneRe  = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{7,24}\d`)
	nonPhone = regexp.MustCompile(`[^\d+]`)
	nonDigit = regexp.MustCompile(`\D`)
	domainRe = regexp.MustCompile(`\b([a-z0-9\-]+\.[a-z]{2,}(?:\.[a-z]{2,})?)\b`)
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp"}

// ExtractPhone returns the most digit-heavy phone-like sequence in text,
// reduced to digits and '+'. Results outside 9..16 digits are discarded.
func ExtractPhone(text string) string {
	best, bestDigits := "", 0
	for _, cand := range phoneRe.FindAllString(text, -1) {
		if n := len(nonDigit.ReplaceAllString(cand, "")); n > bestDigits {
			best, bestDigits = cand, n
		}
	}
	if best == "" {
		return ""
	}
	cleaned := nonPhone.ReplaceAllString(best, "")
	if n := len(nonDigit.ReplaceAllString(cleaned, "")); n < 9 || n > 16 {
		return ""
	}
	return cleaned
}

// LooksLikeWebsite reports whether href is an external http(s) link rather
// than a maps-internal one.
func LooksLikeWebsite(href string) bool {
	u := strings.ToLower(strings.TrimSpace(href))
	if !strings.HasPrefix(u, "http") {
		return false
	}
	for _, internal := range []string{"google.", "g.page", "goo.gl"} {
		if strings.Contains(u, internal) {
			return false
		}
	}
	return true
}

// LooksLikeDomainText reports whether s is a bare domain such as
// "brightsmile.test".
func LooksLikeDomainText(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" || strings.ContainsAny(t, " /") || !strings.Contains(t, ".") {
		return false
	}
	return !hasAnySuffix(t, imageExts)
}

// NormalizeWebsite picks a website from a link's href, falling back to its
// visible text when that is a bare domain.
func NormalizeWebsite(href, text string) string {
	if h := strings.TrimSpace(href); LooksLikeWebsite(h) {
		return h
	}
	if t := strings.TrimSpace(text); LooksLikeDomainText(t) {
		return "https://" + t
	}
	return ""
}

// DomainFromText finds the first non-Google domain mentioned in text.
func DomainFromText(text string) string {
	for _, m := range domainRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		d := m[1]
		if strings.Contains(d, "google") || strings.HasSuffix(d, ".g.page") || hasAnySuffix(d, imageExts) {
			continue
		}
		return "https://" + d
	}
	return ""
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
