// Package provider exposes the connected wallet as an opaque capability and
// owns the process-wide cached handle to it.
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// Provider is the wallet capability consumed by the operation set. Connection
// handling, account selection and signing UX live behind it.
type Provider interface {
	Address(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, tx map[string]any) (string, error)
	SignTypedData(ctx context.Context, typed apitypes.TypedData) (string, error)
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// Handle is the lazily-dialed, process-wide cached provider. The first caller
// dials; every later caller reuses the same connection or the same failure.
// It is injected into the dispatcher rather than read from ambient state.
type Handle struct {
	once sync.Once
	dial func(ctx context.Context) (Provider, error)

	p   Provider
	err error
}

func NewHandle(dial func(ctx context.Context) (Provider, error)) *Handle {
	return &Handle{dial: dial}
}

// NewRPCHandle builds a handle over a JSON-RPC wallet endpoint. An empty URL
// yields a NoProviderError on first use, not at construction, matching the
// lazy lifecycle.
func NewRPCHandle(url string) *Handle {
	return NewHandle(func(ctx context.Context) (Provider, error) {
		if strings.TrimSpace(url) == "" {
			return nil, bridgeerr.New(bridgeerr.CodeNoProvider, "no wallet provider configured")
		}
		return Dial(ctx, url)
	})
}

func (h *Handle) Get(ctx context.Context) (Provider, error) {
	h.once.Do(func() {
		h.p, h.err = h.dial(ctx)
	})
	return h.p, h.err
}
