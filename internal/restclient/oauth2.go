package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// refreshBuffer is how long before expiry a cached token is already
// considered stale.
const refreshBuffer = 60 * time.Second

// OAuth2 obtains and caches tokens via the client-credentials grant. A
// cached token is reused until it is within the refresh buffer of its
// expiry; fetches are single-flight, so concurrent callers share one token
// request.
type OAuth2 struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	log          zerolog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// OAuth2Option configures an OAuth2 manager.
type OAuth2Option func(*OAuth2)

// WithScope requests the given scope with each token grant.
func WithScope(scope string) OAuth2Option {
	return func(o *OAuth2) { o.scope = scope }
}

// NewOAuth2 creates a client-credentials token manager.
func NewOAuth2(tokenURL, clientID, clientSecret string, log zerolog.Logger, opts ...OAuth2Option) *OAuth2 {
	o := &OAuth2{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		log:          log.With().Str("client", "oauth2").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a valid bearer token, fetching a fresh one when the cache
// is empty or about to expire.
func (o *OAuth2) Token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" && time.Now().Before(o.expires.Add(-refreshBuffer)) {
		return o.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.clientID)
	form.Set("client_secret", o.clientSecret)
	if o.scope != "" {
		form.Set("scope", o.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access token")
	}

	o.token = tr.AccessToken
	o.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	o.log.Debug().Time("expires", o.expires).Msg("Token refreshed")
	return o.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (o *OAuth2) Invalidate() {
	o.mu.Lock()
	o.token = ""
	o.expires = time.Time{}
	o.mu.Unlock()
}
