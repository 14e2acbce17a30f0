package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/pkg/mapsbrowser"
)

// MapsParams are the parameters of a map listing scrape.
type MapsParams struct {
	Niche      string `json:"niche"`
	Location   string `json:"location"`
	MaxResults int    `json:"max_results"`
	Headful    *bool  `json:"headful,omitempty"`
}

// Normalize applies defaults and validates p.
func (p *MapsParams) Normalize() error {
	p.Niche = strings.TrimSpace(p.Niche)
	p.Location = strings.TrimSpace(p.Location)
	if p.MaxResults == 0 {
		p.MaxResults = 30
	}
	switch {
	case p.Niche == "" || p.Location == "":
		return model.Validationf("niche and location are required")
	case p.MaxResults < 1 || p.MaxResults > 200:
		return model.Validationf("max_results must be between 1 and 200, got %d", p.MaxResults)
	}
	return nil
}

// Query is the search text sent to the map site.
func (p MapsParams) Query() string {
	return p.Niche + " in " + p.Location
}

// ScrapeBudget is the total time allowed for a scrape of maxResults
// listings.
func ScrapeBudget(maxResults int, ceiling time.Duration) time.Duration {
	budget := 90*time.Second + time.Duration(maxResults)*18*time.Second
	if ceiling <= 0 {
		ceiling = 420 * time.Second
	}
	return min(budget, ceiling)
}

// Locker hands out exclusive use of the browser session.
type Locker interface {
	TryAcquire() (release func(), err error)
}

// MapsConfig holds scraper settings that do not vary per run.
type MapsConfig struct {
	Headful  bool
	Locale   string
	Region   string
	MaxTotal time.Duration
}

// MapsAdapter scrapes map listings through the single shared browser
// session. Only one scrape runs at a time; a second one fails fast with
// model.ErrResourceContention.
type MapsAdapter struct {
	lock    Locker
	scraper mapsbrowser.Scraper
	cfg     MapsConfig
	retry   resilience.RetryConfig
}

// NewMapsAdapter creates a MapsAdapter.
func NewMapsAdapter(lock Locker, scraper mapsbrowser.Scraper, cfg MapsConfig, retry resilience.RetryConfig) *MapsAdapter {
	return &MapsAdapter{lock: lock, scraper: scraper, cfg: cfg, retry: retry.WithLogger("maps", "search")}
}

// Listings streams the scraped listings for p. Listings collected before a
// scrape failure are yielded before the error.
func (a *MapsAdapter) Listings(ctx context.Context, p MapsParams) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		release, err := a.lock.TryAcquire()
		if err != nil {
			if errors.Is(err, mapsbrowser.ErrBusy) {
				err = eris.Wrap(model.ErrResourceContention, "maps: a map scrape is already running")
			}
			yield(model.RawCandidate{}, err)
			return
		}
		defer release()

		headful := a.cfg.Headful
		if p.Headful != nil {
			headful = *p.Headful
		}
		cfg := mapsbrowser.SearchConfig{
			Query:      p.Query(),
			MaxResults: p.MaxResults,
			Headful:    headful,
			Locale:     a.cfg.Locale,
			Region:     a.cfg.Region,
			MaxTotal:   ScrapeBudget(p.MaxResults, a.cfg.MaxTotal),
		}
		zap.L().Info("maps: scraping listings",
			zap.String("query", cfg.Query),
			zap.Int("max_results", cfg.MaxResults),
			zap.Duration("budget", cfg.MaxTotal),
		)

		var partial []mapsbrowser.Listing
		listings, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) ([]mapsbrowser.Listing, error) {
			ls, err := a.scraper.Search(ctx, cfg)
			if len(ls) > len(partial) {
				partial = ls
			}
			return ls, err
		})
		release()
		if err != nil {
			listings = partial
		}

		for i, l := range listings {
			if i >= p.MaxResults {
				return
			}
			if !yield(mapsCandidate(l, p.Location), nil) {
				return
			}
		}
		if err != nil {
			yield(model.RawCandidate{}, eris.Wrapf(err, "maps: scrape %q", cfg.Query))
		}
	}
}

func mapsCandidate(l mapsbrowser.Listing, location string) model.RawCandidate {
	return model.RawCandidate{
		Source:     model.SourceGoogleMaps,
		PlaceID:    strings.TrimSpace(l.ProfileURL),
		Name:       strings.TrimSpace(l.Name),
		ProfileURL: strings.TrimSpace(l.ProfileURL),
		Website:    strings.TrimSpace(l.Website),
		Phone:      strings.TrimSpace(l.Phone),
		Location:   location,
		Tags:       []string{"google_maps"},
	}
}

// EmailFinder looks up a contact email on a website.
type EmailFinder interface {
	FindEmail(ctx context.Context, url string) string
}

// WithEmails fills the email of up to limit candidates that have a website
// but no email. Lookups that find nothing leave the candidate unchanged.
func WithEmails(ctx context.Context, s Stream, finder EmailFinder, limit int) Stream {
	looked := 0
	return Map(s, func(c model.RawCandidate) model.RawCandidate {
		if looked >= limit || c.Email != "" || strings.TrimSpace(c.Website) == "" {
			return c
		}
		looked++
		c.Email = finder.FindEmail(ctx, c.Website)
		return c
	})
}
