// Package social provides a client for a bearer-token social post search
// API shaped like X API v2 recent search.
package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/resilience"
)

// Client defines the social search operations.
type Client interface {
	// SearchRecent returns one page of posts matching query.
	SearchRecent(ctx context.Context, req SearchRequest) (*SearchPage, error)
}

// SearchRequest is a single recent-search page request.
type SearchRequest struct {
	Query     string
	StartTime time.Time // zero = API default window
	PageSize  int       // 10..100
	NextToken string
}

// Post is a single search hit.
type Post struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
	Lang     string `json:"lang"`
}

// User is an expanded post author.
type User struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	URL         string        `json:"url"`
	Metrics     PublicMetrics `json:"public_metrics"`
	Entities    UserEntities  `json:"entities"`
}

// PublicMetrics carries author audience counts.
type PublicMetrics struct {
	Followers int `json:"followers_count"`
}

// UserEntities holds expanded profile links.
type UserEntities struct {
	URL struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"url"`
}

// Website returns the expanded profile link when present.
func (u User) Website() string {
	for _, link := range u.Entities.URL.URLs {
		if link.ExpandedURL != "" {
			return link.ExpandedURL
		}
	}
	return u.URL
}

// SearchPage is a decoded recent-search response.
type SearchPage struct {
	Posts     []Post
	Users     map[string]User
	NextToken string
}

type searchResponse struct {
	Data     []Post `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new social search client.
func NewClient(bearerToken string, opts ...Option) Client {
	c := &httpClient{
		token:   bearerToken,
		baseURL: "https://api.x.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchRecent(ctx context.Context, sr SearchRequest) (*SearchPage, error) {
	if c.token == "" {
		return nil, resilience.NewPermanentError(eris.New("social: missing bearer token"), 0)
	}

	q := url.Values{}
	q.Set("query", sr.Query)
	q.Set("max_results", strconv.Itoa(max(10, min(100, sr.PageSize))))
	q.Set("expansions", "author_id")
	q.Set("tweet.fields", "author_id,lang,created_at")
	q.Set("user.fields", "username,name,description,location,url,entities,public_metrics")
	if !sr.StartTime.IsZero() {
		q.Set("start_time", sr.StartTime.UTC().Format(time.RFC3339))
	}
	if sr.NextToken != "" {
		q.Set("next_token", sr.NextToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/2/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "social: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "social: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "social: read response body")
	}
	if err := resilience.ClassifyResponse("social", resp, body); err != nil {
		return nil, err
	}

	var raw searchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "social: unmarshal response"), resp.StatusCode)
	}
	if len(raw.Data) == 0 && len(raw.Errors) > 0 {
		return nil, resilience.NewPermanentError(eris.Errorf("social: %s: %s", raw.Errors[0].Title, raw.Errors[0].Detail), resp.StatusCode)
	}

	page := &SearchPage{
		Posts:     raw.Data,
		Users:     make(map[string]User, len(raw.Includes.Users)),
		NextToken: raw.Meta.NextToken,
	}
	for _, u := range raw.Includes.Users {
		page.Users[u.ID] = u
	}
	return page, nil
}
