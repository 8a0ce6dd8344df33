// Package restclient is the client side of the harness's REST surface: a
// small path-based HTTP client, an OAuth2 client-credentials token manager,
// and a typed portfolio API client used as the third reconciliation source.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Authenticator supplies bearer tokens for outgoing requests.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// Client sends JSON requests against a base URL and hands back the raw
// status and body. Interpreting the status is the caller's job; only
// transport-level failures surface as errors.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAuthenticator attaches a bearer token source to every request.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("client", "rest").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET request to the given path.
func (c *Client) Get(ctx context.Context, path string) (int, []byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with the given value JSON-encoded as the body.
// A nil body sends an empty request.
func (c *Client) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with the given value JSON-encoded as the body.
func (c *Client) Put(ctx context.Context, path string, body any) (int, []byte, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete issues a DELETE request to the given path.
func (c *Client) Delete(ctx context.Context, path string) (int, []byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to obtain token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Msg("Request completed")
	return resp.StatusCode, data, nil
}
