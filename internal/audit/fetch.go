package audit

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// page is a fetched document, truncated to the configured byte budget.
type page struct {
	status      int
	finalURL    string
	contentType string
	body        []byte
	truncated   bool
	header      http.Header
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: timeout,
			}).DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// fetch GETs rawURL, following redirects, and reads at most maxBytes.
func fetch(ctx context.Context, client *http.Client, rawURL, userAgent string, maxBytes int64) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "audit: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "audit: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "audit: read body")
	}

	p := &page{
		status:      resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
		contentType: strings.ToLower(resp.Header.Get("Content-Type")),
		header:      resp.Header,
	}
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
		p.truncated = true
	}
	p.body = body
	return p, nil
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+\-.]*://`)

// normalizeURL adds https:// to bare domains.
func normalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !schemeRe.MatchString(u) {
		return "https://" + u
	}
	return u
}

func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml")
}

// blockKind reports anti-bot interstitials that make a page impossible to
// judge. Empty means no block was detected.
func blockKind(p *page) string {
	if p.status == http.StatusForbidden || p.status == http.StatusServiceUnavailable {
		if p.header.Get("cf-ray") != "" || strings.EqualFold(p.header.Get("server"), "cloudflare") {
			return "cloudflare"
		}
	}
	lower := strings.ToLower(string(p.body))
	if strings.Contains(lower, "checking your browser") || strings.Contains(lower, "cf-browser-verification") {
		return "cloudflare"
	}
	if strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "h-captcha") {
		return "captcha"
	}
	return ""
}
