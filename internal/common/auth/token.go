// internal/common/auth/token.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

// expirySkew is subtracted from expires_in so a cached token is never used at the edge of its lifetime.
const expirySkew = 60 * time.Second

// TokenCache is an optional shared cache (Redis in production).
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// TokenClient exchanges client credentials for a bearer token.
type TokenClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	cache        TokenCache
	logger       logger.Logger

	mu          sync.Mutex
	header      string
	tokenExpiry time.Time
	fromCache   bool
	now         func() time.Time
}

// TokenResponse holds the response from the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Option customizes a TokenClient.
type Option func(*TokenClient)

func WithHTTPClient(c *http.Client) Option {
	return func(t *TokenClient) { t.httpClient = c }
}

func WithCache(c TokenCache) Option {
	return func(t *TokenClient) { t.cache = c }
}

func WithLogger(l logger.Logger) Option {
	return func(t *TokenClient) { t.logger = l }
}

// NewTokenClient creates a new instance of TokenClient.
func NewTokenClient(tokenURL, clientID, clientSecret, scope string, opts ...Option) *TokenClient {
	t := &TokenClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.NewNoOpLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CacheKey is the shared-cache key for this client id.
func (t *TokenClient) CacheKey() string {
	return "cadio:token:" + t.clientID
}

// AcquireToken returns an Authorization header value such as "Bearer abc".
// The token is reused until it expires, first from memory, then from the shared cache.
func (t *TokenClient) AcquireToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.header != "" && t.tokenExpiry.After(t.now()) {
		return t.header, nil
	}

	if t.cache != nil {
		cached, err := t.cache.Get(ctx, t.CacheKey())
		if err == nil && cached != "" {
			t.logger.Debug("Using cached access token", map[string]interface{}{"clientId": t.clientID})
			t.header = cached
			// the shared cache owns the real expiry; keep the local copy short-lived
			t.tokenExpiry = t.now().Add(expirySkew)
			t.fromCache = true
			return cached, nil
		}
		if err != nil {
			t.logger.Debug("Token cache miss", map[string]interface{}{"error": err.Error()})
		}
	}

	tokenResp, err := t.requestToken(ctx)
	if err != nil {
		return "", err
	}

	header := tokenResp.TokenType + " " + tokenResp.AccessToken
	lifetime := time.Duration(tokenResp.ExpiresIn)*time.Second - expirySkew

	t.header = header
	t.tokenExpiry = t.now().Add(lifetime)
	t.fromCache = false

	if t.cache != nil && lifetime > 0 {
		if err := t.cache.Set(ctx, t.CacheKey(), header, lifetime); err != nil {
			t.logger.Warn("Failed to cache access token", map[string]interface{}{"error": err.Error()})
		}
	}

	return header, nil
}

// FromCache reports whether the current token was read from the shared cache
// rather than issued to this client.
func (t *TokenClient) FromCache() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fromCache
}

// Invalidate drops the token from memory and from the shared cache so the next
// call requests a fresh one.
func (t *TokenClient) Invalidate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.header = ""
	t.tokenExpiry = time.Time{}
	t.fromCache = false

	if t.cache == nil {
		return nil
	}
	if err := t.cache.Del(ctx, t.CacheKey()); err != nil {
		t.logger.Warn("Failed to drop cached access token", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

func (t *TokenClient) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("client_id", t.clientID)
	data.Set("client_secret", t.clientSecret)
	data.Set("grant_type", "client_credentials")
	data.Set("scope", t.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewAuthTokenFailedError(fmt.Sprintf("failed to create token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	t.logger.Info("Getting authorization token", map[string]interface{}{"tokenUrl": t.tokenURL})

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewAuthTokenFailedError(fmt.Sprintf("failed to execute token request: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAuthTokenFailedError(fmt.Sprintf("failed to read token response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewAuthTokenFailedError(fmt.Sprintf("token request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.NewAuthTokenFailedError(fmt.Sprintf("failed to decode token response: %v", err))
	}
	if tokenResp.TokenType == "" || tokenResp.AccessToken == "" {
		return nil, errors.NewAuthTokenFailedError("token response is missing token_type or access_token")
	}

	return &tokenResp, nil
}
