// Package platform is the Moltbook API adapter. It owns authentication,
// response mapping, and retry policy; callers treat any error as "no result".
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"moltbot/internal/logging"
)

const DefaultBaseURL = "https://www.moltbook.com/api"

// API is the surface the rest of moltbot consumes. Implemented by Client;
// tests substitute fakes.
type API interface {
	GetProfile(ctx context.Context, username string) (*Profile, error)
	GetFeed(ctx context.Context, sort FeedSort, limit int) ([]Post, error)
	ListCommunities(ctx context.Context) ([]Community, error)
	GetCommunityPosts(ctx context.Context, name string, sort FeedSort) ([]Post, error)
	CreatePost(ctx context.Context, community, title, body string) (*Post, error)
	CreateComment(ctx context.Context, postID, body string) (*Comment, error)
}

// Client talks to the Moltbook REST API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// NewClient creates a platform client with the given credentials.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: timeout},
		MaxRetries:   maxRetries,
		RetryBackoff: time.Second,
	}
}

// doJSON performs a request with bounded retry on 429/5xx and decodes the
// response body into out (if out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.PlatformDebug("retry %d for %s %s after %v", attempt, method, path, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
			logging.PlatformWarn("%v", lastErr)
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			var errRes struct {
				Message string `json:"message"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&errRes)
			resp.Body.Close()
			return fmt.Errorf("%s %s failed (%d): %s", method, path, resp.StatusCode, errRes.Message)
		}

		if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
		}
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%s %s: retries exhausted: %w", method, path, lastErr)
}

// GetProfile fetches a profile. Empty username means the authenticated agent.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	path := "/agents/me"
	if username != "" {
		path = "/agents/profile?name=" + url.QueryEscape(username)
	}
	var data struct {
		Success bool    `json:"success"`
		Agent   Profile `json:"agent"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data.Agent, nil
}

// GetFeed fetches the global feed with the given sort.
func (c *Client) GetFeed(ctx context.Context, sort FeedSort, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 25
	}
	path := fmt.Sprintf("/posts?sort=%s&limit=%d", sort, limit)
	var data struct {
		Success bool   `json:"success"`
		Posts   []Post `json:"posts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Posts, nil
}

// ListCommunities fetches all known communities.
func (c *Client) ListCommunities(ctx context.Context) ([]Community, error) {
	var data struct {
		Success  bool        `json:"success"`
		Submolts []Community `json:"submolts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/submolts", nil, &data); err != nil {
		return nil, err
	}
	return data.Submolts, nil
}

// GetCommunityPosts fetches a community's feed with the given sort.
func (c *Client) GetCommunityPosts(ctx context.Context, name string, sort FeedSort) ([]Post, error) {
	path := fmt.Sprintf("/submolts/%s/posts?sort=%s", url.PathEscape(name), sort)
	var data struct {
		Success bool   `json:"success"`
		Posts   []Post `json:"posts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Posts, nil
}

// CreatePost submits a new post to a community.
func (c *Client) CreatePost(ctx context.Context, community, title, body string) (*Post, error) {
	req := map[string]string{
		"submolt": community,
		"title":   title,
		"content": body,
	}
	var data struct {
		Success bool `json:"success"`
		Post    Post `json:"post"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/posts", req, &data); err != nil {
		return nil, err
	}
	logging.Platform("created post %s in m/%s", data.Post.ID, community)
	return &data.Post, nil
}

// CreateComment submits a comment on a post.
func (c *Client) CreateComment(ctx context.Context, postID, body string) (*Comment, error) {
	req := map[string]string{"content": body}
	path := fmt.Sprintf("/posts/%s/comments", url.PathEscape(postID))
	var data struct {
		Success bool    `json:"success"`
		Comment Comment `json:"comment"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, req, &data); err != nil {
		return nil, err
	}
	logging.Platform("commented on post %s", postID)
	return &data.Comment, nil
}
