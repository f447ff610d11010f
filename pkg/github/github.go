// Package github is a minimal client for the GitHub contents API. It
// exists so manifest retrieval can fetch a single file from a hosted
// repository without cloning it.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// requestTimeout bounds every content-API call so a wedged host fails
// instead of hanging the caller.
const requestTimeout = 30 * time.Second

// IsRepoURL reports whether repoURL is hosted on github.com. Detection
// is by URL host matching only; no network call is made.
func IsRepoURL(repoURL string) bool {
	host, _, err := splitRepoURL(repoURL)
	if err != nil {
		return false
	}
	return host == "github.com" || host == "www.github.com"
}

// Client fetches file contents from the GitHub API.
type Client struct {
	// BaseURL overrides the API endpoint; used by tests.
	BaseURL string

	HTTPClient *http.Client
}

// NewClient returns a Client against the public API with a bounded
// request timeout.
func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// GetFile retrieves a single file from the repository at the given ref
// using the contents API. token, when non-empty, is sent as a bearer
// token. The raw file bytes are returned.
func (c *Client) GetFile(ctx context.Context, repoURL, path, ref, token string) ([]byte, error) {
	_, repoPath, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, fmt.Errorf("parsing repository URL: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", strings.TrimSuffix(c.BaseURL, "/"), repoPath, path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", path, repoURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s from %s: %s", path, repoURL, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// splitRepoURL extracts the host and "owner/repo" path from a
// repository URL, trimming any ".git" suffix.
func splitRepoURL(repoURL string) (host, repoPath string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", err
	}

	repoPath = strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	if u.Host == "" || repoPath == "" {
		return "", "", fmt.Errorf("URL %q does not name a repository", repoURL)
	}
	return u.Host, repoPath, nil
}
