package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

func TestDoBodyReplaysBodyAcrossRetries(t *testing.T) {
	var count int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		buf, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(buf))
		if n == 1 {
			// Drop the first request mid-flight so the client retries.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatalf("test server does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(2*time.Second, 2)
	resp, err := client.DoBody(context.Background(), http.MethodPost, srv.URL, "text/plain", []byte(`{"data":1}`), nil)
	if err != nil {
		t.Fatalf("DoBody failed: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("expected success status, got %d", resp.Status)
	}
	if len(bodies) != 2 || bodies[1] != `{"data":1}` {
		t.Fatalf("expected body replayed on retry, got %v", bodies)
	}
}

func TestDoReturnsNonOKStatusWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := New(2*time.Second, 3)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.Status != http.StatusConflict || resp.OK() {
		t.Fatalf("expected 409 handed back to the caller, got %d", resp.Status)
	}
}

func TestDoMapsExhaustedNetworkFailuresToTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing is listening anymore

	client := New(time.Second, 1)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := client.Do(context.Background(), req)
	bridgeErr, ok := bridgeerr.As(err)
	if !ok || bridgeErr.Code != bridgeerr.CodeTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestHeadersApplied(t *testing.T) {
	var gotXSRF, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXSRF = r.Header.Get("X-XSRFToken")
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := New(time.Second, 0)
	_, err := client.DoBody(context.Background(), http.MethodPost, srv.URL, "text/plain", []byte("x"), map[string]string{"X-XSRFToken": "abc123"})
	if err != nil {
		t.Fatalf("DoBody failed: %v", err)
	}
	if gotXSRF != "abc123" {
		t.Fatalf("expected XSRF header forwarded, got %q", gotXSRF)
	}
	if gotAgent == "" {
		t.Fatalf("expected default user agent set")
	}
}
