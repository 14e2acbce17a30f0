package source

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/pkg/social"
)

const (
	maxSocialQueryLen = 512
	maxSocialPages    = 50
	snippetLen        = 240
)

// SocialParams are the parameters of a social search run.
type SocialParams struct {
	Days         int    `json:"days"`
	Lang         string `json:"lang"`
	MaxLeads     int    `json:"max_leads"`
	MinFollowers int    `json:"min_followers"`
	Query        string `json:"query,omitempty"`
}

// Normalize applies defaults and validates p.
func (p *SocialParams) Normalize() error {
	if p.Days == 0 {
		p.Days = 2
	}
	if p.Lang = strings.TrimSpace(p.Lang); p.Lang == "" {
		p.Lang = "en"
	}
	if p.MaxLeads == 0 {
		p.MaxLeads = 25
	}
	p.Query = strings.TrimSpace(p.Query)
	switch {
	case p.Days < 1 || p.Days > 7:
		return model.Validationf("days must be between 1 and 7, got %d", p.Days)
	case p.MaxLeads < 1 || p.MaxLeads > 1000:
		return model.Validationf("max_leads must be between 1 and 1000, got %d", p.MaxLeads)
	case p.MinFollowers < 0:
		return model.Validationf("min_followers must not be negative")
	case len(p.Query) > maxSocialQueryLen:
		return model.Validationf("query longer than %d characters", maxSocialQueryLen)
	}
	return nil
}

// SocialAdapter discovers leads from recent social posts.
type SocialAdapter struct {
	client   social.Client
	retry    resilience.RetryConfig
	pageSize int
	nowFunc  func() time.Time
}

// NewSocialAdapter creates a SocialAdapter.
func NewSocialAdapter(client social.Client, retry resilience.RetryConfig, pageSize int) *SocialAdapter {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SocialAdapter{
		client:   client,
		retry:    retry.WithLogger("social", "search_recent"),
		pageSize: pageSize,
		nowFunc:  time.Now,
	}
}

// BuildQuery ORs the quoted terms and appends the language and retweet
// filters, dropping terms that would overflow the query length limit.
func BuildQuery(terms []string, lang string) string {
	suffix := " lang:" + lang + " -is:retweet"
	var quoted []string
	size := len(suffix) + 2
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		q := strconv.Quote(t)
		add := len(q)
		if len(quoted) > 0 {
			add += len(" OR ")
		}
		if size+add > maxSocialQueryLen {
			break
		}
		quoted = append(quoted, q)
		size += add
	}
	if len(quoted) == 0 {
		return strings.TrimSpace(suffix)
	}
	return "(" + strings.Join(quoted, " OR ") + ")" + suffix
}

// Discover streams one candidate per post author, in result order, until
// p.MaxLeads authors were produced or the results run out.
func (a *SocialAdapter) Discover(ctx context.Context, p SocialParams, terms []string) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		query := p.Query
		if query == "" {
			query = BuildQuery(terms, p.Lang)
		}
		req := social.SearchRequest{
			Query:     query,
			StartTime: a.nowFunc().Add(-time.Duration(p.Days) * 24 * time.Hour),
			PageSize:  a.pageSize,
		}
		log := zap.L().With(zap.String("source", string(model.SourceX)))

		seen := make(map[string]bool)
		for page := 0; page < maxSocialPages; page++ {
			resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*social.SearchPage, error) {
				return a.client.SearchRecent(ctx, req)
			})
			if err != nil {
				yield(model.RawCandidate{}, eris.Wrapf(err, "social: search page %d", page+1))
				return
			}
			log.Debug("social: fetched page", zap.Int("page", page+1), zap.Int("posts", len(resp.Posts)))

			for _, post := range resp.Posts {
				u, ok := resp.Users[post.AuthorID]
				if !ok || u.Username == "" {
					continue
				}
				key := strings.ToLower(u.Username)
				if seen[key] {
					continue
				}
				seen[key] = true

				if !yield(socialCandidate(u, post), nil) {
					return
				}
				if len(seen) >= p.MaxLeads {
					return
				}
			}
			if resp.NextToken == "" {
				return
			}
			req.NextToken = resp.NextToken
		}
	}
}

func socialCandidate(u social.User, post social.Post) model.RawCandidate {
	return model.RawCandidate{
		Source:     model.SourceX,
		Handle:     u.Username,
		Name:       u.Name,
		ProfileURL: "https://x.com/" + u.Username,
		Website:    u.Website(),
		Location:   u.Location,
		Bio:        u.Description,
		Snippet:    truncate(post.Text, snippetLen),
		Followers:  u.Metrics.Followers,
	}
}
