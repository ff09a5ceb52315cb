// Package wallet implements the kernel-facing operation catalogue over the
// provider capability.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
	"github.com/ggonzalez94/wallet-bridge/internal/provider"
)

type Ops struct {
	handle *provider.Handle
}

func New(handle *provider.Handle) *Ops {
	return &Ops{handle: handle}
}

// LoadSigner resolves the active account's address.
func (o *Ops) LoadSigner(ctx context.Context) (any, error) {
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.Address(ctx)
}

// SendTransaction submits the transaction through the wallet and returns the
// submission result.
func (o *Ops) SendTransaction(ctx context.Context, tx map[string]any) (any, error) {
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := p.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"hash": hash}, nil
}

// SignTypedData assembles an EIP-712 payload from its domain, type
// definitions and message value, and asks the wallet for a signature.
func (o *Ops) SignTypedData(ctx context.Context, domain, types, value json.RawMessage) (any, error) {
	typed, err := assembleTypedData(domain, types, value)
	if err != nil {
		return nil, err
	}
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.SignTypedData(ctx, typed)
}

// RPC forwards an arbitrary JSON-RPC call to the provider.
func (o *Ops) RPC(ctx context.Context, method string, params []any) (any, error) {
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, method, params)
}

// RPCPayload is one call of a MultiRPC batch. The kernel serializes payloads
// either as ["method", params] tuples or as {"method": ..., "params": ...}
// objects; both are accepted.
type RPCPayload struct {
	Method string
	Params []any
}

func (p *RPCPayload) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) < 1 || len(tuple) > 2 {
			return fmt.Errorf("rpc payload tuple must have 1 or 2 elements, got %d", len(tuple))
		}
		if err := json.Unmarshal(tuple[0], &p.Method); err != nil {
			return fmt.Errorf("rpc payload method: %w", err)
		}
		if len(tuple) == 2 {
			if err := json.Unmarshal(tuple[1], &p.Params); err != nil {
				return fmt.Errorf("rpc payload params: %w", err)
			}
		}
		return nil
	}
	var obj struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Method = obj.Method
	p.Params = obj.Params
	return nil
}

// MultiRPC executes the payloads strictly in order, collecting results. The
// first failure aborts the batch: later calls may depend on state changes
// made by earlier ones, so partial execution past an error is never safe.
func (o *Ops) MultiRPC(ctx context.Context, payloads []RPCPayload) (any, error) {
	p, err := o.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(payloads))
	for i, payload := range payloads {
		if payload.Method == "" {
			return nil, bridgeerr.New(bridgeerr.CodeUsage, fmt.Sprintf("rpc payload %d has no method", i))
		}
		result, err := p.Call(ctx, payload.Method, payload.Params)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
