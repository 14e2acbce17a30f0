package audit

import (
	"context"
	"regexp"
	"strings"
	"time"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

var skipEmailDomains = map[string]bool{
	"example.com":  true,
	"example.org":  true,
	"sentry.io":    true,
	"w3.org":       true,
	"schema.org":   true,
	"gravatar.com": true,
}

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

const (
	emailTimeout  = 8 * time.Second
	emailMaxBytes = 200_000
)

// FindEmail returns the first plausible business email on the page at
// rawURL, or "" when none is found or the page cannot be fetched.
func (a *Auditor) FindEmail(ctx context.Context, rawURL string) string {
	target := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(target, "http") {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, min(emailTimeout, a.cfg.Timeout))
	defer cancel()

	p, err := fetch(ctx, a.client, target, a.cfg.UserAgent, emailMaxBytes)
	if err != nil || p.status >= 400 {
		return ""
	}
	return firstEmail(string(p.body))
}

func firstEmail(text string) string {
	for _, m := range emailRe.FindAllString(text, -1) {
		email := strings.ToLower(strings.TrimSpace(m))
		domain := email[strings.LastIndex(email, "@")+1:]
		if skipEmailDomains[domain] {
			continue
		}
		if hasSuffixAny(domain, imageSuffixes) {
			continue
		}
		return email
	}
	return ""
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
