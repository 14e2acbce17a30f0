// Package audit assesses the quality of a lead's website.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-finder/internal/model"
)

const maxFindings = 8

// linkInBioHosts are profile aggregators rather than real websites.
var linkInBioHosts = []string{
	"linktr.ee", "carrd.co", "notion.site", "beacons.ai",
	"taplink.cc", "stan.store", "gumroad.com", "calendly.com",
}

var parkedPhrases = []string{
	"domain parked", "this domain is parked", "buy this domain",
	"this website is coming soon", "coming soon", "under construction",
	"site is not configured", "account suspended",
}

var bookingWords = []string{"book", "booking", "quote", "estimate", "call", "whatsapp", "appointment", "schedule"}

var trustWords = []string{"review", "testimonial", "before and after", "before & after", "rated"}

// Config controls audit fetching.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// DefaultConfig returns the production audit settings.
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		MaxBytes:  450_000,
		UserAgent: "Mozilla/5.0 (compatible; LeadFinderAudit/1.0)",
	}
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Auditor) { a.client = hc }
}

// Auditor fetches and grades websites. Audits never fail: every outcome,
// including timeouts, maps to a verdict.
type Auditor struct {
	cfg     Config
	client  *http.Client
	nowFunc func() time.Time
}

// New creates an Auditor.
func New(cfg Config, opts ...Option) *Auditor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	a := &Auditor{
		cfg:     cfg,
		client:  newHTTPClient(cfg.Timeout),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit grades a single website.
func (a *Auditor) Audit(ctx context.Context, rawURL string) model.AuditResult {
	res := model.AuditResult{CheckedAt: a.nowFunc()}

	target := normalizeURL(rawURL)
	if target == "" {
		res.Verdict = model.VerdictUnknown
		res.Findings = []string{"No website listed."}
		return res
	}
	res.FinalURL = target

	if isLinkInBio(target) {
		res.Verdict = model.VerdictWeak
		res.Score = 20
		res.Findings = []string{"Link-in-bio page instead of a website. Strong upgrade opportunity."}
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	p, err := fetch(fetchCtx, a.client, target, a.cfg.UserAgent, a.cfg.MaxBytes)
	if err != nil {
		res.Verdict = model.VerdictBroken
		res.Findings = []string{describeFetchError(err, a.cfg.Timeout)}
		return res
	}
	res.FinalURL = p.finalURL
	res.HTTPStatus = p.status

	if kind := blockKind(p); kind != "" {
		res.Verdict = model.VerdictUnknown
		res.Score = 50
		res.Findings = []string{fmt.Sprintf("Blocked by %s challenge; could not assess.", kind)}
		return res
	}
	if p.status >= 400 {
		res.Verdict = model.VerdictBroken
		res.Findings = []string{fmt.Sprintf("HTTP error %d.", p.status)}
		return res
	}
	if !isHTML(p.contentType) {
		ct := p.contentType
		if ct == "" {
			ct = "unknown"
		}
		res.Verdict = model.VerdictUnknown
		res.Score = 45
		res.Findings = []string{"Non-HTML content-type: " + ct}
		return res
	}

	res.Score, res.Findings = grade(p)
	res.Verdict = model.VerdictWeak
	if res.Score > 65 {
		res.Verdict = model.VerdictGood
	}
	return res
}

// AuditMany lazily audits up to maxSites targets, waiting at least sleep
// between consecutive requests. It stops early when ctx is done.
func (a *Auditor) AuditMany(ctx context.Context, targets []model.AuditTarget, maxSites int, sleep time.Duration) iter.Seq2[model.AuditTarget, model.AuditResult] {
	return func(yield func(model.AuditTarget, model.AuditResult) bool) {
		if maxSites <= 0 || maxSites > len(targets) {
			maxSites = len(targets)
		}
		limit := rate.Inf
		if sleep > 0 {
			limit = rate.Every(sleep)
		}
		limiter := rate.NewLimiter(limit, 1)

		for _, t := range targets[:maxSites] {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			res := a.Audit(ctx, t.Website)
			zap.L().Debug("audit: graded website",
				zap.Int64("lead_id", t.LeadID),
				zap.String("url", t.Website),
				zap.String("verdict", string(res.Verdict)),
				zap.Int("score", res.Score),
			)
			if !yield(t, res) {
				return
			}
		}
	}
}

const parkedScore = 10

// grade applies the HTML rubric. Parked pages short-circuit to parkedScore.
func grade(p *page) (int, []string) {
	lower := strings.ToLower(string(p.body))
	for _, phrase := range parkedPhrases {
		if strings.Contains(lower, phrase) {
			return parkedScore, []string{"Looks parked/placeholder/coming-soon."}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return 50, []string{"Could not parse HTML."}
	}

	score := 50
	var findings []string

	if doc.Find(`meta[name="viewport"]`).Length() > 0 {
		score += 10
		findings = append(findings, "Has mobile viewport meta.")
	} else {
		score -= 10
		findings = append(findings, "Missing mobile viewport meta (mobile UX risk).")
	}

	if len(strings.TrimSpace(doc.Find("title").First().Text())) >= 3 {
		score += 5
	} else {
		score -= 6
		findings = append(findings, "Missing/empty <title>.")
	}

	if doc.Find(`meta[name="description"]`).Length() > 0 {
		score += 5
	} else {
		findings = append(findings, "Missing meta description (SEO baseline).")
	}

	if len(strings.TrimSpace(doc.Find("h1").First().Text())) >= 2 {
		score += 5
	} else {
		findings = append(findings, "Missing/weak H1 (clarity).")
	}

	hasTel := doc.Find(`a[href^="tel:"]`).Length() > 0
	hasMail := doc.Find(`a[href^="mailto:"]`).Length() > 0
	hasWhatsApp := strings.Contains(lower, "wa.me/") || strings.Contains(lower, "whatsapp")
	if hasWhatsApp {
		score += 10
		findings = append(findings, "Has WhatsApp contact.")
	}
	if hasTel {
		score += 8
		findings = append(findings, "Has phone link.")
	}
	if hasMail {
		score += 4
	}

	text := strings.ToLower(doc.Text())
	if containsAny(text, bookingWords) {
		score += 6
	} else {
		score -= 6
		findings = append(findings, "No obvious booking/quote CTA language.")
	}

	if containsAny(text, trustWords) {
		score += 6
		findings = append(findings, "Has trust signals (reviews/testimonials).")
	} else {
		findings = append(findings, "Weak trust signals (no clear reviews/testimonials found).")
	}

	switch scripts := doc.Find("script").Length(); {
	case scripts >= 35:
		score -= 8
		findings = append(findings, fmt.Sprintf("Very script-heavy (%d scripts).", scripts))
	case scripts >= 20:
		score -= 4
		findings = append(findings, fmt.Sprintf("Somewhat script-heavy (%d scripts).", scripts))
	}

	if p.truncated {
		score -= 6
		findings = append(findings, "HTML is large/truncated (page weight risk).")
	}

	score = max(0, min(100, score))
	if score <= 65 && !hasTel && !hasMail && !hasWhatsApp {
		findings = append([]string{"No obvious contact links (phone/WhatsApp/email)."}, findings...)
	}
	if len(findings) > maxFindings {
		findings = findings[:maxFindings]
	}
	return score, findings
}

func isLinkInBio(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range linkInBioHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func describeFetchError(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return fmt.Sprintf("Timed out after %s.", timeout)
	}
	return "Could not fetch site: " + err.Error()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
