// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"
)

// Client is an HTTP client. An authenticated client attaches the same
// Authorization header to every request it sends.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewAuthenticatedClient returns a client that sends authHeader on every request.
func NewAuthenticatedClient(timeout time.Duration, authHeader string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &authTransport{
				header: authHeader,
				base:   http.DefaultTransport,
			},
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// HTTPClient exposes the underlying client for SDKs that take *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type authTransport struct {
	header string
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.header)
	return t.base.RoundTrip(clone)
}
