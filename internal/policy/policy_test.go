package policy

import (
	"testing"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

func TestCheckOperationAllowed(t *testing.T) {
	if err := CheckOperationAllowed(nil, "send-tx"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckOperationAllowed([]string{"rpc", "load-signer"}, "load-signer"); err != nil {
		t.Fatalf("expected operation to be allowed: %v", err)
	}
	err := CheckOperationAllowed([]string{"rpc"}, "send-tx")
	if err == nil {
		t.Fatal("expected operation to be blocked")
	}
	bridgeErr, ok := bridgeerr.As(err)
	if !ok || bridgeErr.Code != bridgeerr.CodeBlocked {
		t.Fatalf("expected blocked error code, got %v", err)
	}
}

func TestCheckOperationAllowedNormalizesCase(t *testing.T) {
	if err := CheckOperationAllowed([]string{" Send-Tx "}, "send-tx"); err != nil {
		t.Fatalf("expected case-insensitive match: %v", err)
	}
}
