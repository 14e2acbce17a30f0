// Package meta provides a client for the Instagram Graph API endpoints
// used to collect and enrich comment authors.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/resilience"
)

// Client defines the Graph API operations.
type Client interface {
	// Media lists the most recent media of an Instagram business account.
	Media(ctx context.Context, igUserID string, limit int) ([]Media, error)
	// Comments lists comments on a media object.
	Comments(ctx context.Context, mediaID string, limit int) ([]Comment, error)
	// BusinessDiscovery looks up a public business or creator profile.
	// It returns nil when the account is not discoverable.
	BusinessDiscovery(ctx context.Context, igUserID, username string) (*BusinessProfile, error)
}

// Media is an Instagram post.
type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// Comment is a comment on a media object.
type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// BusinessProfile is the business_discovery view of a public account.
type BusinessProfile struct {
	Username   string `json:"username"`
	Name       string `json:"name"`
	Biography  string `json:"biography"`
	Website    string `json:"website"`
	Followers  int    `json:"followers_count"`
	MediaCount int    `json:"media_count"`
}

const businessFields = "name,username,biography,website,followers_count,media_count,profile_picture_url"

type graphError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithAPIVersion sets the Graph API version path segment.
func WithAPIVersion(v string) Option {
	return func(c *httpClient) {
		c.version = v
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
	version string
	http    *http.Client
}

// NewClient creates a new Graph API client.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		token:   accessToken,
		baseURL: "https://graph.facebook.com",
		version: "v24.0",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Media(ctx context.Context, igUserID string, limit int) ([]Media, error) {
	var out struct {
		Data []Media `json:"data"`
	}
	params := url.Values{
		"fields": {"id,caption,permalink,timestamp"},
		"limit":  {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, igUserID+"/media", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *httpClient) Comments(ctx context.Context, mediaID string, limit int) ([]Comment, error) {
	var out struct {
		Data []Comment `json:"data"`
	}
	params := url.Values{
		"fields": {"id,text,username,timestamp"},
		"limit":  {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, mediaID+"/comments", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *httpClient) BusinessDiscovery(ctx context.Context, igUserID, username string) (*BusinessProfile, error) {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if u == "" {
		return nil, nil
	}
	var out struct {
		BusinessDiscovery *BusinessProfile `json:"business_discovery"`
	}
	params := url.Values{
		"fields": {fmt.Sprintf("business_discovery.username(%s){%s}", u, businessFields)},
	}
	if err := c.get(ctx, igUserID, params, &out); err != nil {
		return nil, err
	}
	return out.BusinessDiscovery, nil
}

// get performs a single Graph GET. Errors are classified for the shared
// retry policy; OAuth and permission failures are permanent.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.token == "" {
		return resilience.NewPermanentError(eris.New("meta: missing access token"), 0)
	}
	params.Set("access_token", c.token)
	reqURL := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, strings.TrimPrefix(path, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "meta: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "meta: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "meta: read response body")
	}

	var ge graphError
	_ = json.Unmarshal(body, &ge)
	if resp.StatusCode >= 300 {
		if ge.Error != nil && ge.Error.Message != "" && !resilience.IsTransientHTTPStatus(resp.StatusCode) && resp.StatusCode < 500 {
			return resilience.NewPermanentError(eris.Errorf("meta: http %d: %s", resp.StatusCode, ge.Error.Message), resp.StatusCode)
		}
		return resilience.ClassifyResponse("meta", resp, body)
	}
	if ge.Error != nil {
		return resilience.NewPermanentError(eris.Errorf("meta: %s", ge.Error.Message), resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "meta: unmarshal response"), resp.StatusCode)
	}
	return nil
}
