package source

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/pkg/mapsbrowser"
	"github.com/sells-group/lead-finder/pkg/meta"
	"github.com/sells-group/lead-finder/pkg/social"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

// fakeSocial serves canned pages in order; errs[i] fails call i.
type fakeSocial struct {
	mu       sync.Mutex
	pages    []*social.SearchPage
	errs     map[int]error
	calls    int
	served   int
	requests []social.SearchRequest
}

func (f *fakeSocial) SearchRecent(_ context.Context, req social.SearchRequest) (*social.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	if err := f.errs[call]; err != nil {
		return nil, err
	}
	if f.served >= len(f.pages) {
		return &social.SearchPage{}, nil
	}
	page := f.pages[f.served]
	f.served++
	return page, nil
}

type fakeMeta struct {
	media       []meta.Media
	mediaErr    error
	comments    map[string][]meta.Comment
	commentsErr error
	profiles    map[string]*meta.BusinessProfile
	discoverErr error
	discovered  []string
}

func (f *fakeMeta) Media(_ context.Context, _ string, _ int) ([]meta.Media, error) {
	return f.media, f.mediaErr
}

func (f *fakeMeta) Comments(_ context.Context, mediaID string, _ int) ([]meta.Comment, error) {
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments[mediaID], nil
}

func (f *fakeMeta) BusinessDiscovery(_ context.Context, _, username string) (*meta.BusinessProfile, error) {
	f.discovered = append(f.discovered, username)
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.profiles[username], nil
}

type fakeScraper struct {
	listings []mapsbrowser.Listing
	err      error
	calls    int
	cfg      mapsbrowser.SearchConfig
}

func (f *fakeScraper) Search(_ context.Context, cfg mapsbrowser.SearchConfig) ([]mapsbrowser.Listing, error) {
	f.calls++
	f.cfg = cfg
	return f.listings, f.err
}

type fakeLocker struct {
	busy     bool
	released int
}

func (f *fakeLocker) TryAcquire() (func(), error) {
	if f.busy {
		return nil, mapsbrowser.ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { f.released++ }) }, nil
}

type panicScraper struct{}

func (panicScraper) Search(context.Context, mapsbrowser.SearchConfig) ([]mapsbrowser.Listing, error) {
	panic("browser crashed")
}

type fakeFinder struct {
	emails map[string]string
	calls  []string
}

func (f *fakeFinder) FindEmail(_ context.Context, url string) string {
	f.calls = append(f.calls, url)
	return f.emails[url]
}
