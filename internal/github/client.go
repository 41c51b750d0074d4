// Package github is the transport that fetches issues for a stream.
//
// It wraps the GitHub REST API issue search and single-issue endpoints with
// a pooled HTTP client and per-request timeouts. Retry and backoff are left
// to the caller's next natural poll.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	defaultTimeout = 30 * time.Second

	maxResponseBodySize = 8 << 20 // 8MB

	searchPerPage  = 100
	maxSearchPages = 3
)

// connection pooling limits; the poller talks to a single host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Issue is an issue or pull request as returned by the API.
type Issue struct {
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	HTMLURL       string    `json:"html_url"`
	State         string    `json:"state"`
	UpdatedAt     time.Time `json:"updated_at"`
	RepositoryURL string    `json:"repository_url"`
}

// Repo returns the "owner/name" part of the issue's repository URL.
func (i Issue) Repo() string {
	idx := strings.Index(i.RepositoryURL, "/repos/")
	if idx < 0 {
		return ""
	}
	return i.RepositoryURL[idx+len("/repos/"):]
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("github: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
}

// NewClient creates a [Client] for baseURL authenticating with token.
//
// An empty baseURL selects [DefaultBaseURL]; an empty token sends
// unauthenticated requests. A timeout of zero selects 30 seconds. The
// timeout is applied per request via the context, not as a global client
// timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

// SearchIssues runs an issue search for query, restricted to issues updated
// at or after since when since is non-zero. Results are newest first; at
// most three pages of 100 are read.
func (c *Client) SearchIssues(ctx context.Context, query string, since time.Time) ([]Issue, error) {
	q := strings.TrimSpace(query)
	if !since.IsZero() {
		q += " updated:>=" + since.UTC().Format("2006-01-02T15:04:05Z")
	}

	var issues []Issue
	for page := 1; page <= maxSearchPages; page++ {
		params := url.Values{}
		params.Set("q", q)
		params.Set("sort", "updated")
		params.Set("order", "desc")
		params.Set("per_page", strconv.Itoa(searchPerPage))
		params.Set("page", strconv.Itoa(page))

		var result struct {
			TotalCount int     `json:"total_count"`
			Items      []Issue `json:"items"`
		}
		if err := c.get(ctx, "/search/issues", params, &result); err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		issues = append(issues, result.Items...)

		if len(result.Items) < searchPerPage || len(issues) >= result.TotalCount {
			break
		}
	}
	return issues, nil
}

// GetIssue fetches a single issue of repo ("owner/name").
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues/%d", repo, number)
	if err := c.get(ctx, path, nil, &issue); err != nil {
		return Issue{}, fmt.Errorf("get %s#%d: %w", repo, number, err)
	}
	return issue, nil
}

// Close closes idle connections. Safe to call multiple times and on a nil
// client; the client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
