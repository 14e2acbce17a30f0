package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/pkg/meta"
)

// InstagramParams are the parameters of an Instagram commenters run.
type InstagramParams struct {
	IGUserID      string `json:"ig_user_id"`
	AccessToken   string `json:"access_token,omitempty"`
	MediaLimit    int    `json:"media_limit"`
	CommentsLimit int    `json:"comments_limit"`
	MaxUsers      int    `json:"max_users"`
	Enrich        *bool  `json:"enrich"`
	SleepMs       *int   `json:"sleep_ms,omitempty"`
}

// Redacted returns a copy of p without credentials, for persisting.
func (p InstagramParams) Redacted() InstagramParams {
	p.AccessToken = ""
	return p
}

// ShouldEnrich reports whether business discovery enrichment is enabled.
func (p InstagramParams) ShouldEnrich() bool {
	return p.Enrich == nil || *p.Enrich
}

// InstagramAdapter turns comment authors on the account's recent media into
// candidates.
type InstagramAdapter struct {
	clientFor     func(token string) meta.Client
	defaultToken  string
	defaultUserID string
	retry         resilience.RetryConfig
	breaker       *resilience.CircuitBreaker
}

// NewInstagramAdapter creates an InstagramAdapter. clientFor builds a Graph
// client for an access token; the defaults apply when a run omits them.
func NewInstagramAdapter(clientFor func(token string) meta.Client, defaultToken, defaultUserID string, retry resilience.RetryConfig) *InstagramAdapter {
	return &InstagramAdapter{
		clientFor:     clientFor,
		defaultToken:  defaultToken,
		defaultUserID: defaultUserID,
		retry:         retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("instagram: enrichment circuit changed",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
	}
}

// Prepare fills credentials from the defaults, applies parameter defaults,
// and validates p.
func (a *InstagramAdapter) Prepare(p *InstagramParams) error {
	if p.IGUserID = strings.TrimSpace(p.IGUserID); p.IGUserID == "" {
		p.IGUserID = a.defaultUserID
	}
	if p.AccessToken = strings.TrimSpace(p.AccessToken); p.AccessToken == "" {
		p.AccessToken = a.defaultToken
	}
	if p.MediaLimit == 0 {
		p.MediaLimit = 10
	}
	if p.CommentsLimit == 0 {
		p.CommentsLimit = 50
	}
	if p.MaxUsers == 0 {
		p.MaxUsers = 150
	}
	if p.SleepMs == nil {
		ms := 400
		p.SleepMs = &ms
	}
	switch {
	case p.AccessToken == "":
		return model.Validationf("missing Meta access token (set META_ACCESS_TOKEN or pass access_token)")
	case p.IGUserID == "":
		return model.Validationf("missing Instagram business account id (set META_IG_USER_ID or pass ig_user_id)")
	case p.MediaLimit < 1 || p.MediaLimit > 100:
		return model.Validationf("media_limit must be between 1 and 100, got %d", p.MediaLimit)
	case p.CommentsLimit < 1 || p.CommentsLimit > 500:
		return model.Validationf("comments_limit must be between 1 and 500, got %d", p.CommentsLimit)
	case p.MaxUsers < 1 || p.MaxUsers > 2000:
		return model.Validationf("max_users must be between 1 and 2000, got %d", p.MaxUsers)
	case *p.SleepMs < 0:
		return model.Validationf("sleep_ms must not be negative")
	}
	return nil
}

// Commenters streams one candidate per distinct comment author, in media
// then comment order, up to p.MaxUsers. p must have been prepared.
func (a *InstagramAdapter) Commenters(ctx context.Context, p InstagramParams) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		client := a.clientFor(p.AccessToken)
		log := zap.L().With(zap.String("source", string(model.SourceInstagram)))

		media, err := resilience.DoVal(ctx, a.retry.WithLogger("meta", "media"), func(ctx context.Context) ([]meta.Media, error) {
			return client.Media(ctx, p.IGUserID, p.MediaLimit)
		})
		if err != nil {
			yield(model.RawCandidate{}, eris.Wrap(err, "instagram: list media"))
			return
		}

		limit := rate.Inf
		if p.SleepMs != nil && *p.SleepMs > 0 {
			limit = rate.Every(time.Duration(*p.SleepMs) * time.Millisecond)
		}
		limiter := rate.NewLimiter(limit, 1)

		seen := make(map[string]bool)
		for _, m := range media {
			if m.ID == "" {
				continue
			}
			comments, err := resilience.DoVal(ctx, a.retry.WithLogger("meta", "comments"), func(ctx context.Context) ([]meta.Comment, error) {
				return client.Comments(ctx, m.ID, p.CommentsLimit)
			})
			if err != nil {
				yield(model.RawCandidate{}, eris.Wrapf(err, "instagram: list comments of %s", m.ID))
				return
			}

			for _, cm := range comments {
				username := strings.TrimPrefix(strings.TrimSpace(cm.Username), "@")
				key := strings.ToLower(username)
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true

				c := model.RawCandidate{
					Source:     model.SourceInstagram,
					Handle:     username,
					ProfileURL: "https://www.instagram.com/" + username + "/",
					Snippet:    truncate(cm.Text, snippetLen),
					Tags:       []string{"ig_commenter"},
				}
				if p.ShouldEnrich() {
					if err := limiter.Wait(ctx); err != nil {
						yield(model.RawCandidate{}, eris.Wrap(err, "instagram: enrichment wait"))
						return
					}
					a.enrich(ctx, client, p.IGUserID, &c, log)
				}
				if !yield(c, nil) {
					return
				}
				if len(seen) >= p.MaxUsers {
					return
				}
			}
		}
	}
}

// enrich merges the business discovery profile into c. Failures only log:
// most commenters are personal accounts that are not discoverable.
func (a *InstagramAdapter) enrich(ctx context.Context, client meta.Client, igUserID string, c *model.RawCandidate, log *zap.Logger) {
	bp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*meta.BusinessProfile, error) {
		return client.BusinessDiscovery(ctx, igUserID, c.Handle)
	})
	if err != nil {
		log.Debug("instagram: business discovery failed", zap.String("handle", c.Handle), zap.Error(err))
		return
	}
	if bp == nil {
		return
	}
	if name := strings.TrimSpace(bp.Name); name != "" {
		c.Name = name
	}
	c.Bio = strings.TrimSpace(bp.Biography)
	c.Website = strings.TrimSpace(bp.Website)
	if bp.Followers > 0 {
		c.Followers = bp.Followers
	}
}
