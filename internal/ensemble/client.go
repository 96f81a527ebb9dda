package ensemble

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://ensembledata.com/apis"
	defaultTimeout = 20 * time.Second

	detailedInfoPath = "/instagram/user/detailed-info"

	// maxBodyBytes caps the profile document size read into memory.
	maxBodyBytes = 16 << 20
)

// tokenParamRe matches the token query parameter as it appears in URLs
// embedded in transport errors.
var tokenParamRe = regexp.MustCompile(`(?i)([?&]token=)[^&\s"']+`)

// Client is a minimal EnsembleData API client for fetching Instagram
// profile documents.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client. An empty baseURL defaults to the
// public EnsembleData endpoint and a non-positive timeout to 20 seconds.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// FetchProfile returns the raw detailed-info document for handle.
func (c *Client) FetchProfile(ctx context.Context, handle string) ([]byte, error) {
	q := url.Values{}
	q.Set("username", handle)
	q.Set("token", c.token)
	endpoint := c.baseURL + detailedInfoPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactError(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", redactError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", redactError(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(redact(string(body)), 200)}
	}

	return body, nil
}

// redactedError keeps the original error chain while hiding the API token
// from its message.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactError(err error) error {
	return &redactedError{msg: redact(err.Error()), err: err}
}

func redact(s string) string {
	return tokenParamRe.ReplaceAllString(s, "${1}<redacted>")
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
