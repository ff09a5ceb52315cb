package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// transientReceiptErrorCode is the JSON-RPC "internal error" code some
// providers return while a just-submitted transaction is not yet indexed.
// It is the only error the poller retries through.
const transientReceiptErrorCode = -32603

// WaitForReceipt polls eth_getTransactionReceipt at a constant interval until
// a non-null receipt appears or the timeout budget is exhausted. Callers
// wanting backoff pass an already-scaled interval. Cancelling ctx yields a
// Cancelled outcome, distinct from timeout.
func (o *Ops) WaitForReceipt(ctx context.Context, txHash string, timeout, interval time.Duration) (any, error) {
	if interval <= 0 {
		// A zero interval with a positive budget must not busy-hang.
		interval = time.Millisecond
	}
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	remaining := timeout
	for {
		raw, err := p.Call(ctx, "eth_getTransactionReceipt", []any{txHash})
		if err != nil {
			if bridgeerr.RPCCode(err) != transientReceiptErrorCode {
				return nil, err
			}
		} else if !isNullResult(raw) {
			return raw, nil
		}

		if remaining < interval {
			return nil, bridgeerr.New(bridgeerr.CodeTimeout, "Timeout waiting for transaction receipt")
		}
		select {
		case <-ctx.Done():
			return nil, bridgeerr.Wrap(bridgeerr.CodeCancelled, "wait for transaction receipt cancelled", ctx.Err())
		case <-time.After(interval):
		}
		remaining -= interval
	}
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
