package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// newWalletServer fakes the wallet provider's JSON-RPC endpoint.
func newWalletServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		result, ok := results[req.Method]
		if !ok {
			t.Fatalf("unexpected rpc method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runBridge(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)
	code := runner.Run(args)
	return code, stdout.String(), stderr.String()
}

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
}

func TestEmbeddedRPCPrintsEnvelope(t *testing.T) {
	isolateHome(t)
	wallet := newWalletServer(t, map[string]any{"eth_chainId": "0x1"})

	code, stdout, stderr := runBridge(t,
		"--mode", "embedded", "--rpc-url", wallet.URL,
		"rpc", "eth_chainId", "--token", "boa_chain")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	if strings.TrimSpace(stdout) != `{"data":"0x1"}` {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
}

func TestEmbeddedLoadSignerReportsFailureEnvelopeInline(t *testing.T) {
	isolateHome(t)
	// No provider configured: the operation fails but the failure still
	// travels as an envelope and the process exits cleanly.
	code, stdout, _ := runBridge(t,
		"--mode", "embedded",
		"load-signer", "--token", "boa_nosigner")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("stdout is not a JSON envelope: %v (%q)", err, stdout)
	}
	if !strings.Contains(payload.Error.Message, "no wallet provider configured") {
		t.Fatalf("unexpected failure message: %q", payload.Error.Message)
	}
}

func TestStandaloneRelaysOncePerToken(t *testing.T) {
	isolateHome(t)
	wallet := newWalletServer(t, map[string]any{"eth_accounts": []string{"0xaaaa"}})

	var posts atomic.Int32
	var delivered atomic.Bool
	var gotXSRF, gotBody atomic.Value
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if delivered.Load() {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case http.MethodPost:
			posts.Add(1)
			delivered.Store(true)
			gotXSRF.Store(r.Header.Get("X-XSRFToken"))
			body, _ := io.ReadAll(r.Body)
			gotBody.Store(string(body))
		}
	}))
	t.Cleanup(host.Close)

	args := []string{
		"--mode", "standalone", "--rpc-url", wallet.URL,
		"--callback-url", host.URL, "--xsrf-token", "seekrit",
		"load-signer", "--token", "boa_addr",
	}

	// The kernel host re-evaluates the script; the second run must not
	// execute or POST again.
	for i := 0; i < 2; i++ {
		code, stdout, stderr := runBridge(t, args...)
		if code != 0 {
			t.Fatalf("run %d: expected exit 0, got %d (stderr: %s)", i, code, stderr)
		}
		if stdout != "" {
			t.Fatalf("run %d: standalone mode must not print a body, got %q", i, stdout)
		}
	}
	if posts.Load() != 1 {
		t.Fatalf("expected exactly one POST, got %d", posts.Load())
	}
	if body, _ := gotBody.Load().(string); body != `{"data":"0xaaaa"}` {
		t.Fatalf("unexpected delivered body: %q", body)
	}
	if xsrf, _ := gotXSRF.Load().(string); xsrf != "seekrit" {
		t.Fatalf("expected anti-forgery header forwarded, got %q", xsrf)
	}
}

func TestStandaloneWithoutCallbackURLIsUsageError(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runBridge(t, "load-signer", "--token", "boa_x")
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	if !strings.Contains(stderr, "callback-url") {
		t.Fatalf("expected callback-url mentioned in error, got %q", stderr)
	}
}

func TestUnknownHostModeIsUsageError(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runBridge(t, "--mode", "browser", "load-signer", "--token", "boa_y")
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	if !strings.Contains(stderr, "host mode") {
		t.Fatalf("expected host mode error, got %q", stderr)
	}
}

func TestMissingTokenFlagFails(t *testing.T) {
	isolateHome(t)
	code, _, _ := runBridge(t, "--mode", "embedded", "load-signer")
	if code == 0 {
		t.Fatalf("expected failure without --token")
	}
}

func TestEnableOpsBlocksOperations(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runBridge(t,
		"--mode", "embedded", "--enable-ops", "rpc,load-signer",
		"send-tx", `{"to":"0x1"}`, "--token", "boa_blocked")
	if code != 15 {
		t.Fatalf("expected blocked exit code 15, got %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stderr, "blocked") {
		t.Fatalf("expected blocked message, got %q", stderr)
	}
}

func TestVersionCommand(t *testing.T) {
	code, stdout, _ := runBridge(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Fatalf("expected version output")
	}
}

func TestSchemaCommandListsOperations(t *testing.T) {
	code, stdout, stderr := runBridge(t, "schema")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	for _, op := range []string{"load-signer", "send-tx", "sign-typed-data", "rpc", "multi-rpc", "wait-receipt"} {
		if !strings.Contains(stdout, op) {
			t.Fatalf("expected %q in schema output", op)
		}
	}
}
