package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// Client implements Provider over a go-ethereum JSON-RPC connection to a
// wallet endpoint (a node with an unlocked account, or a browser-wallet RPC
// proxy).
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, url string) (*Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.CodeNoProvider, "dial wallet provider", err)
	}
	return &Client{rpc: client}, nil
}

func (c *Client) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) Address(ctx context.Context) (string, error) {
	var accounts []string
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return "", mapProviderError("load signer", err)
	}
	if len(accounts) == 0 {
		return "", bridgeerr.New(bridgeerr.CodeNoProvider, "wallet has no connected accounts")
	}
	return accounts[0], nil
}

func (c *Client) SendTransaction(ctx context.Context, tx map[string]any) (string, error) {
	var hash string
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return "", mapProviderError("send transaction", err)
	}
	return hash, nil
}

func (c *Client) SignTypedData(ctx context.Context, typed apitypes.TypedData) (string, error) {
	address, err := c.Address(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(typed)
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.CodeUsage, "serialize typed data", err)
	}
	var signature string
	if err := c.rpc.CallContext(ctx, &signature, "eth_signTypedData_v4", address, string(payload)); err != nil {
		return "", mapProviderError("sign typed data", err)
	}
	return signature, nil
}

func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.rpc.CallContext(ctx, &result, method, params...); err != nil {
		return nil, mapProviderError(method, err)
	}
	return result, nil
}

// mapProviderError converts go-ethereum RPC failures into typed provider
// errors, preserving the provider-assigned JSON-RPC code when present.
func mapProviderError(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return bridgeerr.Provider(rpcErr.ErrorCode(), fmt.Sprintf("%s: %s", op, rpcErr.Error()), err)
	}
	return bridgeerr.Wrap(bridgeerr.CodeProvider, op, err)
}
