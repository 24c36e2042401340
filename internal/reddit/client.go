// Package reddit provides a client for the Reddit OAuth API endpoints
// used by the publisher: token refresh, leased media uploads, post
// submission, submission lookup and deletion, and crossposting.
//
// Video publishing on Reddit is a multi-step process:
//  1. Obtain a fresh access token (refresh-token grant)
//  2. Request an upload lease per media item and upload to object storage
//  3. Submit the post referencing the uploaded location(s)
//  4. Poll the created submission until server-side processing completes
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultTokenURL is the Reddit OAuth token endpoint.
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	// defaultAPIBase is the authenticated Reddit API base URL.
	defaultAPIBase = "https://oauth.reddit.com"

	// defaultStatusURL reports platform health before a run.
	defaultStatusURL = "https://www.redditstatus.com/api/v2/status.json"

	// defaultTimeout is the HTTP client timeout for API calls. Uploads
	// use a longer dedicated timeout (see lease.go).
	defaultTimeout = 30 * time.Second
)

// Credentials holds the OAuth application credentials for a Reddit
// script-type app.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserAgent    string
}

// Client provides methods for publishing to Reddit via the OAuth API.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	tokenURL   string
	apiBase    string
	statusURL  string

	// useWebsocket enables the completion notification channel on the
	// high-level SubmitVideo path. Disabled by default; the caller
	// recovers the created post by title search instead.
	useWebsocket bool
}

// NewClient creates a Reddit API client.
func NewClient(creds Credentials) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		creds:      creds,
		tokenURL:   defaultTokenURL,
		apiBase:    defaultAPIBase,
		statusURL:  defaultStatusURL,
	}
}

// --- Submission model ---

// RedditVideo is the processed-video payload the server attaches to a
// submission once transcoding finishes.
type RedditVideo struct {
	FallbackURL string `json:"fallback_url"`
	HLSURL      string `json:"hls_url,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// Media is a submission's rich media payload.
type Media struct {
	RedditVideo *RedditVideo `json:"reddit_video"`
}

// Submission identifies a created post. The server is authoritative;
// this is a local cache refreshed by Client.Submission.
type Submission struct {
	ID          string `json:"id"`
	Name        string `json:"name"` // fullname, e.g. t3_abc123
	Title       string `json:"title"`
	Permalink   string `json:"permalink"`
	URL         string `json:"url"`
	Media       *Media `json:"media"`
	SecureMedia *Media `json:"secure_media"`
}

// Fullname returns the t3_-prefixed identifier used by mutation endpoints.
func (s *Submission) Fullname() string {
	if s.Name != "" {
		return s.Name
	}
	return "t3_" + s.ID
}

// PermalinkURL returns the absolute permalink.
func (s *Submission) PermalinkURL() string {
	return "https://reddit.com" + s.Permalink
}

// HasMedia reports whether the server has attached a processed video
// payload. A submission without one past the processing window is a
// ghost post.
func (s *Submission) HasMedia() bool {
	return (s.Media != nil && s.Media.RedditVideo != nil) ||
		(s.SecureMedia != nil && s.SecureMedia.RedditVideo != nil)
}

// VideoFallbackURL returns the playable video URL, preferring the secure
// media payload.
func (s *Submission) VideoFallbackURL() string {
	if s.SecureMedia != nil && s.SecureMedia.RedditVideo != nil {
		return s.SecureMedia.RedditVideo.FallbackURL
	}
	if s.Media != nil && s.Media.RedditVideo != nil {
		return s.Media.RedditVideo.FallbackURL
	}
	return ""
}

// --- Listings ---

// thing is the Reddit API envelope around every object.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	Children []thing `json:"children"`
}

func decodeSubmissionListing(body []byte) ([]*Submission, error) {
	var outer thing
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	var listing listingData
	if err := json.Unmarshal(outer.Data, &listing); err != nil {
		return nil, fmt.Errorf("parse listing data: %w", err)
	}

	subs := make([]*Submission, 0, len(listing.Children))
	for _, child := range listing.Children {
		var s Submission
		if err := json.Unmarshal(child.Data, &s); err != nil {
			return nil, fmt.Errorf("parse submission: %w", err)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

// Submission re-fetches a single submission by its opaque ID.
func (c *Client) Submission(ctx context.Context, id string) (*Submission, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, token, "/api/info.json?id=t3_"+url.QueryEscape(id))
	if err != nil {
		return nil, fmt.Errorf("fetch submission %s: %w", id, err)
	}

	subs, err := decodeSubmissionListing(body)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("submission %s not found", id)
	}
	return subs[0], nil
}

// Delete removes a submission by fullname.
func (c *Client) Delete(ctx context.Context, fullname string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	_, err = c.postForm(ctx, token, "/api/del", url.Values{"id": {fullname}})
	if err != nil {
		return fmt.Errorf("delete %s: %w", fullname, err)
	}
	log.Info().Str("fullname", fullname).Msg("Submission deleted")
	return nil
}

// RecentSubmissions lists the authenticated user's most recent posts,
// newest first.
func (c *Client) RecentSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	me, err := c.me(ctx, token)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/user/%s/submitted?sort=new&limit=%d", url.PathEscape(me), limit)
	body, err := c.get(ctx, token, path)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return decodeSubmissionListing(body)
}

// FindByTitle searches the user's recent posts for an exact title match,
// retrying up to attempts times with delay between tries. Used to
// recover the handle after a submit call that returns none.
func (c *Client) FindByTitle(ctx context.Context, title string, attempts int, delay time.Duration) (*Submission, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		subs, err := c.RecentSubmissions(ctx, 10)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Error finding submission")
		} else {
			for _, s := range subs {
				if s.Title == title {
					log.Info().Str("id", s.ID).Msg("Found submission")
					return s, nil
				}
			}
			log.Info().Int("attempt", attempt).Int("maxAttempts", attempts).Msg("Waiting for submission to appear")
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("submission %q not found after %d attempts", title, attempts)
}

// Crosspost republishes an existing submission into another subreddit.
// Returns the created crosspost's ID when the response carries one.
func (c *Client) Crosspost(ctx context.Context, fullname, subreddit, title string) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"sr":                 {subreddit},
		"kind":               {"crosspost"},
		"title":              {title},
		"crosspost_fullname": {fullname},
		"api_type":           {"json"},
	}
	body, err := c.postForm(ctx, token, "/api/submit", params)
	if err != nil {
		return "", fmt.Errorf("crosspost to r/%s: %w", subreddit, err)
	}

	var env submitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("parse crosspost response: %w", err)
	}
	if err := env.err(); err != nil {
		return "", fmt.Errorf("crosspost to r/%s: %w", subreddit, err)
	}
	return env.JSON.Data.ID, nil
}

// SubredditHot lists the hot posts of a subreddit.
func (c *Client) SubredditHot(ctx context.Context, subreddit string, limit int) ([]*Submission, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/r/%s/hot?limit=%d", url.PathEscape(subreddit), limit)
	body, err := c.get(ctx, token, path)
	if err != nil {
		return nil, fmt.Errorf("list r/%s hot: %w", subreddit, err)
	}
	return decodeSubmissionListing(body)
}

// --- Platform status ---

// statusResponse is the redditstatus.com status envelope.
type statusResponse struct {
	Status struct {
		Indicator   string `json:"indicator"`
		Description string `json:"description"`
	} `json:"status"`
}

// Operational checks the public status page before a run. Any failure to
// reach or parse the page is treated as operational: the status check is
// advisory and must never block publishing on its own outage.
func (c *Client) Operational(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return true
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check platform status")
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("statusCode", resp.StatusCode).Msg("Failed to check platform status")
		return true
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return true
	}
	if status.Status.Indicator != "none" {
		log.Warn().Str("description", status.Status.Description).Msg("Platform status degraded")
		return false
	}
	log.Info().Msg("Platform status operational")
	return true
}

// --- Internal helpers ---

type userResponse struct {
	Name string `json:"name"`
}

// me returns the authenticated account's username.
func (c *Client) me(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, token, "/api/v1/me")
	if err != nil {
		return "", fmt.Errorf("fetch identity: %w", err)
	}
	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("parse identity: %w", err)
	}
	if user.Name == "" {
		return "", fmt.Errorf("no username in identity response")
	}
	return user.Name, nil
}

// get performs an authenticated GET against the API base.
func (c *Client) get(ctx context.Context, token, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req, token)

	return c.do(req)
}

// postForm performs an authenticated form POST against the API base.
func (c *Client) postForm(ctx context.Context, token, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req, token)

	return c.do(req)
}

func (c *Client) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.creds.UserAgent)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Str("path", req.URL.Path).Dur("duration", duration).Err(err).Msg("Reddit API request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().Str("path", req.URL.Path).Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Reddit API response")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
