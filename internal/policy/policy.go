// Package policy enforces the host-configured allowlist of wallet
// operations. The bridge executes code-injected commands, so the host admin
// can restrict which operations those commands may trigger (for example,
// read-only rpc but no send-tx).
package policy

import (
	"strings"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

func CheckOperationAllowed(allowlist []string, operation string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normOp := normalize(operation)
	for _, allowed := range allowlist {
		if normalize(allowed) == normOp {
			return nil
		}
	}
	return bridgeerr.New(bridgeerr.CodeBlocked, "operation blocked by --enable-ops policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
