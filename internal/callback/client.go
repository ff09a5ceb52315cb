// Package callback talks to the kernel host's callback endpoint: a GET
// probe that reports whether a token's result was already delivered, and a
// POST that relays the encoded envelope, authenticated with the host's
// anti-forgery cookie value.
package callback

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
	"github.com/ggonzalez94/wallet-bridge/internal/httpx"
)

const xsrfHeader = "X-XSRFToken"

// TokenSource produces the anti-forgery token forwarded on deliveries.
type TokenSource func() (string, error)

func StaticToken(value string) TokenSource {
	return func() (string, error) { return value, nil }
}

type Client struct {
	http    *httpx.Client
	baseURL string
	xsrf    TokenSource
}

func New(httpClient *httpx.Client, baseURL string, xsrf TokenSource) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		xsrf:    xsrf,
	}
}

func (c *Client) tokenURL(token string) string {
	return fmt.Sprintf("%s/callback/%s", c.baseURL, url.PathEscape(token))
}

// AlreadyDelivered probes the callback-status endpoint. A non-OK status means
// the token's result was already delivered and execution must be skipped.
func (c *Client) AlreadyDelivered(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL(token), nil)
	if err != nil {
		return false, bridgeerr.Wrap(bridgeerr.CodeInternal, "build callback probe", err)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return false, err
	}
	return !resp.OK(), nil
}

// Deliver POSTs the encoded envelope for the token, tagged with the
// anti-forgery header.
func (c *Client) Deliver(ctx context.Context, token, body string) error {
	xsrfValue, err := c.xsrf()
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.CodeTransport, "resolve anti-forgery token", err)
	}
	headers := map[string]string{}
	if xsrfValue != "" {
		headers[xsrfHeader] = xsrfValue
	}
	resp, err := c.http.DoBody(ctx, http.MethodPost, c.tokenURL(token), "text/plain", []byte(body), headers)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return bridgeerr.New(bridgeerr.CodeTransport,
			fmt.Sprintf("callback endpoint rejected delivery (status %d)", resp.Status))
	}
	return nil
}
