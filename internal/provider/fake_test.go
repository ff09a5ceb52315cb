package provider

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type fakeProvider struct {
	address string
}

func (f *fakeProvider) Address(context.Context) (string, error) { return f.address, nil }

func (f *fakeProvider) SendTransaction(context.Context, map[string]any) (string, error) {
	return "0x0", nil
}

func (f *fakeProvider) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "0x0", nil
}

func (f *fakeProvider) Call(context.Context, string, []any) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}
