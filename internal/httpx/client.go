// Package httpx wraps net/http with bounded retries for the callback
// transport. Only network-level failures are retried; any response that
// reaches us is handed back to the caller, because the callback protocol
// assigns meaning to non-OK statuses.
package httpx

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "wallet-bridge/1.0",
	}
}

// Do issues the request, retrying network failures with capped exponential
// backoff. The response body is drained into memory before returning.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, bridgeerr.Wrap(bridgeerr.CodeCancelled, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, bridgeerr.Wrap(bridgeerr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			continue
		}
		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = bridgeerr.Wrap(bridgeerr.CodeTransport, "read callback response", readErr)
			continue
		}
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: buf}, nil
	}
	return nil, lastErr
}

// DoBody builds and issues a request with an in-memory body so retries can
// replay it.
func (c *Client) DoBody(ctx context.Context, method, url, contentType string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return bridgeerr.Wrap(bridgeerr.CodeTransport, "callback host timeout", err)
	}
	return bridgeerr.Wrap(bridgeerr.CodeTransport, "callback host unreachable", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
