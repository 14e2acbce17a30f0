package mapsbrowser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	cardSelector      = `div[role="article"], div.Nv2PK`
	maxNoProgress     = 6
	cardWaitTimeout   = 25 * time.Second
	detailsClickPause = 1100 * time.Millisecond
)

// Listing is a single scraped search result.
type Listing struct {
	Name       string
	ProfileURL string
	Website    string
	Phone      string
}

// SearchConfig controls one scrape.
type SearchConfig struct {
	Query           string
	MaxResults      int
	Headful         bool
	Locale          string // hl
	Region          string // gl, optional
	MaxTotal        time.Duration
	ScrollSleep     time.Duration
	MaxScrollRounds int
	StepSleep       time.Duration
}

func (c *SearchConfig) applyDefaults() {
	if c.MaxResults <= 0 {
		c.MaxResults = 30
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 300 * time.Second
	}
	if c.ScrollSleep <= 0 {
		c.ScrollSleep = 800 * time.Millisecond
	}
	if c.MaxScrollRounds <= 0 {
		c.MaxScrollRounds = 60
	}
	if c.StepSleep <= 0 {
		c.StepSleep = 150 * time.Millisecond
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
}

// SearchURL builds the map search URL for cfg.
func SearchURL(cfg SearchConfig) string {
	q := url.Values{}
	q.Set("hl", cfg.Locale)
	if cfg.Region != "" {
		q.Set("gl", cfg.Region)
	}
	return "https://www.google.com/maps/search/" + url.PathEscape(cfg.Query) + "?" + q.Encode()
}

// Scraper runs map searches.
type Scraper interface {
	Search(ctx context.Context, cfg SearchConfig) ([]Listing, error)
}

// ChromeScraper drives Chrome through chromedp using the Session profile.
// Callers must hold the Session while Search runs.
type ChromeScraper struct {
	session *Session
}

// NewChromeScraper creates a scraper bound to session's profile directory.
func NewChromeScraper(session *Session) *ChromeScraper {
	return &ChromeScraper{session: session}
}

type cardData struct {
	Name       string     `json:"name"`
	ProfileURL string     `json:"profile_url"`
	Phone      string     `json:"phone"`
	Links      []linkData `json:"links"`
}

type linkData struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

type panelData struct {
	Websites   []linkData `json:"websites"`
	Tel        string     `json:"tel"`
	PhoneTexts []string   `json:"phone_texts"`
	Texts      []string   `json:"texts"`
}

// Search scrapes up to cfg.MaxResults listings within cfg.MaxTotal.
func (s *ChromeScraper) Search(ctx context.Context, cfg SearchConfig) ([]Listing, error) {
	cfg.applyDefaults()
	deadline := time.Now().Add(cfg.MaxTotal)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(s.session.ProfileDir()),
		chromedp.WindowSize(1280, 860),
		chromedp.Flag("headless", !cfg.Headful),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	bctx, cancelTimeout := context.WithDeadline(bctx, deadline)
	defer cancelTimeout()

	log := zap.L().With(zap.String("query", cfg.Query))

	if err := chromedp.Run(bctx,
		chromedp.Navigate(SearchURL(cfg)),
		chromedp.Sleep(1200*time.Millisecond),
		chromedp.Evaluate(dismissConsentJS, nil),
	); err != nil {
		return nil, eris.Wrap(err, "mapsbrowser: open search")
	}

	waitCtx, cancelWait := context.WithTimeout(bctx, cardWaitTimeout)
	err := chromedp.Run(waitCtx, chromedp.WaitVisible(cardSelector, chromedp.ByQuery))
	cancelWait()
	if err != nil {
		return nil, eris.New("mapsbrowser: results did not load (no listing cards found); try headful mode and sign in")
	}

	if err := s.scroll(bctx, cfg, deadline); err != nil {
		return nil, err
	}

	var cards []cardData
	if err := chromedp.Run(bctx, chromedp.Evaluate(fmt.Sprintf(collectCardsJS, cardSelector, cfg.MaxResults), &cards)); err != nil {
		return nil, eris.Wrap(err, "mapsbrowser: collect cards")
	}
	log.Debug("mapsbrowser: collected cards", zap.Int("cards", len(cards)))

	seen := make(map[string]bool, len(cards))
	listings := make([]Listing, 0, len(cards))
	for i, card := range cards {
		if time.Now().After(deadline) {
			return listings, eris.New("mapsbrowser: timed out while collecting listing details; try fewer results")
		}
		key := strings.Trim(card.Name+"|"+card.ProfileURL, "|")
		if seen[key] {
			continue
		}
		seen[key] = true

		l := Listing{Name: card.Name, ProfileURL: card.ProfileURL, Phone: strings.TrimSpace(card.Phone)}
		if l.Name == "" {
			l.Name = "Unnamed"
		}
		for _, link := range card.Links {
			if w := NormalizeWebsite(link.Href, link.Text); w != "" {
				l.Website = w
				break
			}
		}
		if l.Website == "" || l.Phone == "" {
			s.fillFromPanel(bctx, i, &l, log)
		}
		listings = append(listings, l)

		if err := chromedp.Run(bctx, chromedp.Sleep(cfg.StepSleep)); err != nil {
			return listings, eris.Wrap(err, "mapsbrowser: collect details")
		}
	}
	return listings, nil
}

func (s *ChromeScraper) scroll(ctx context.Context, cfg SearchConfig, deadline time.Time) error {
	last, noProgress := 0, 0
	for range cfg.MaxScrollRounds {
		if time.Now().After(deadline) {
			return eris.New("mapsbrowser: timed out while scrolling listings; try fewer results")
		}
		var count int
		if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(countCardsJS, cardSelector), &count)); err != nil {
			return eris.Wrap(err, "mapsbrowser: count cards")
		}
		if count >= cfg.MaxResults {
			return nil
		}
		if count == last {
			noProgress++
		} else {
			noProgress = 0
		}
		if noProgress >= maxNoProgress {
			return nil
		}
		last = count

		if err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollFeedJS, nil),
			chromedp.Sleep(cfg.ScrollSleep),
		); err != nil {
			return eris.Wrap(err, "mapsbrowser: scroll feed")
		}
	}
	return nil
}

// fillFromPanel opens the details panel for card i and fills missing
// website/phone values. Failures leave the listing as is.
func (s *ChromeScraper) fillFromPanel(ctx context.Context, i int, l *Listing, log *zap.Logger) {
	var p panelData
	err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(clickCardJS, cardSelector, i), nil),
		chromedp.Sleep(detailsClickPause),
		chromedp.Evaluate(panelJS, &p),
	)
	if err != nil {
		log.Debug("mapsbrowser: details panel unavailable", zap.Int("card", i), zap.Error(err))
		return
	}

	if l.Website == "" {
		for _, link := range p.Websites {
			if w := NormalizeWebsite(link.Href, link.Text); w != "" {
				l.Website = w
				break
			}
		}
	}
	if l.Phone == "" {
		if tel, ok := strings.CutPrefix(strings.ToLower(p.Tel), "tel:"); ok {
			l.Phone = strings.TrimSpace(tel)
		}
	}
	for _, t := range p.PhoneTexts {
		if l.Phone != "" {
			break
		}
		l.Phone = strings.TrimSpace(t)
	}
	for _, t := range p.Texts {
		if l.Website != "" && l.Phone != "" {
			break
		}
		if l.Website == "" && LooksLikeDomainText(t) {
			l.Website = "https://" + strings.TrimSpace(t)
		}
		if l.Phone == "" {
			l.Phone = ExtractPhone(t)
		}
	}
	if l.Website == "" {
		l.Website = DomainFromText(strings.Join(p.Texts, " "))
	}
}

const dismissConsentJS = `(() => {
  const labels = ["Accept all", "I agree", "Agree", "Aceitar tudo", "Aceitar", "Concordo"];
  for (const b of document.querySelectorAll("button")) {
    const t = (b.innerText || b.getAttribute("aria-label") || "").trim();
    if (labels.includes(t)) { b.click(); return true; }
  }
  return false;
})()`

const countCardsJS = `document.querySelectorAll(%q).length`

const scrollFeedJS = `(() => {
  const feed = document.querySelector('[role="feed"]');
  if (feed) { feed.scrollTop = feed.scrollTop + feed.clientHeight * 1.8; return true; }
  window.scrollBy(0, 1200);
  return false;
})()`

const collectCardsJS = `Array.from(document.querySelectorAll(%q)).slice(0, %d).map(card => {
  const nameEl = card.querySelector("div.qBF1Pd");
  const link = card.querySelector("a.hfpxzc");
  const phone = card.querySelector("span.UsdlK");
  return {
    name: nameEl ? nameEl.innerText.split("\n")[0].trim() : "",
    profile_url: link ? (link.getAttribute("href") || "").trim() : "",
    phone: phone ? phone.innerText.trim() : "",
    links: Array.from(card.querySelectorAll("a")).slice(0, 15).map(a => ({
      href: (a.getAttribute("href") || "").trim(),
      text: (a.innerText || "").trim(),
    })),
  };
})`

const clickCardJS = `(() => {
  const card = document.querySelectorAll(%q)[%d];
  if (card) { card.click(); return true; }
  return false;
})()`

const panelJS = `(() => {
  let panel = null;
  for (const sel of ['div[role="main"]', 'div[role="region"]']) {
    for (const el of document.querySelectorAll(sel)) {
      if (el.querySelector("h1")) { panel = el; break; }
    }
    if (panel) break;
  }
  panel = panel || document.querySelector('div[role="region"]') || document.body;
  const links = sel => Array.from(panel.querySelectorAll(sel)).map(a => ({
    href: (a.getAttribute("href") || "").trim(),
    text: (a.innerText || "").trim(),
  }));
  const tel = panel.querySelector('a[href^="tel:"]');
  const phoneNodes = panel.querySelectorAll('button[data-item-id^="phone"], button[aria-label*="Phone"], button[aria-label*="Telefone"], button[aria-label*="Ligar"]');
  return {
    websites: links('a[data-item-id="authority"]').concat(links("a.CsEnBe"), links('a[aria-label*="ebsite"], a[aria-label*="ite"]')),
    tel: tel ? (tel.getAttribute("href") || "") : "",
    phone_texts: Array.from(phoneNodes).map(n => (n.innerText || n.getAttribute("aria-label") || "").trim()).filter(Boolean),
    texts: Array.from(panel.querySelectorAll("div.Io6YTe, span.Io6YTe, div[aria-label], span[aria-label]")).slice(0, 50).map(n => (n.innerText || "").trim()).filter(Boolean),
  };
})()`
