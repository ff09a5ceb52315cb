// Package envelope implements the uniform success/error wrapper used to
// transport wallet-operation outcomes back to the kernel. Every outcome is
// serialized as text with exactly one of a "data" or "error" member, and
// integers beyond IEEE-754 safe range (wei amounts, large block numbers) are
// coerced to decimal strings so they survive transport.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// maxSafeInteger is the largest integer a double-precision float represents
// exactly (2^53 - 1). Anything beyond it is transported as a decimal string.
const maxSafeInteger = int64(1)<<53 - 1

// ErrorBody is the failure payload. Message is always populated; Code carries
// the provider-assigned JSON-RPC code when the failure originated at the
// wallet; Stack is the trace captured at the point of failure.
type ErrorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Envelope holds exactly one of a success value or a failure body.
type Envelope struct {
	data  any
	err   *ErrorBody
	isErr bool
}

func Success(v any) Envelope {
	return Envelope{data: v}
}

// Failure projects a typed bridge error into an explicit error body. Untyped
// errors normalize to a bare message so the kernel side always receives a
// consistent shape.
func Failure(err error) Envelope {
	body := &ErrorBody{Message: "unknown error"}
	if err != nil {
		body.Message = err.Error()
	}
	if bridgeErr, ok := bridgeerr.As(err); ok {
		body.Code = bridgeErr.RPCCode
		body.Stack = bridgeErr.Trace
	}
	return Envelope{err: body, isErr: true}
}

func (e Envelope) IsFailure() bool { return e.isErr }

// Encode serializes the envelope to its transport form.
func (e Envelope) Encode() (string, error) {
	var payload map[string]any
	if e.isErr {
		payload = map[string]any{"error": e.err}
	} else {
		normalized, err := normalize(e.data)
		if err != nil {
			return "", fmt.Errorf("serialize envelope data: %w", err)
		}
		payload = map[string]any{"data": normalized}
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize envelope: %w", err)
	}
	return string(buf), nil
}

// Decode parses an encoded envelope and returns its data value, or a typed
// error reconstructed from the failure body. It mirrors the kernel-side
// contract: a "data" member wins, and error bodies wrapped by providers in an
// info.error layer are unwrapped before projection.
func Decode(encoded string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(encoded))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if data, ok := payload["data"]; ok {
		return data, nil
	}
	raw, ok := payload["error"]
	if !ok {
		return nil, fmt.Errorf("decode envelope: neither data nor error present")
	}
	body, _ := raw.(map[string]any)
	body = unwrapInfo(body)
	message := "unknown error"
	if m, ok := body["message"].(string); ok && m != "" {
		message = m
	}
	code := 0
	if c, ok := body["code"].(json.Number); ok {
		if v, err := c.Int64(); err == nil {
			code = int(v)
		}
	}
	if code != 0 {
		return nil, bridgeerr.Provider(code, message, nil)
	}
	return nil, bridgeerr.New(bridgeerr.CodeProvider, message)
}

// unwrapInfo follows the provider convention of nesting the real error under
// info.error (EIP-1193 wrappers do this for user rejections).
func unwrapInfo(body map[string]any) map[string]any {
	if body == nil {
		return map[string]any{}
	}
	if info, ok := body["info"].(map[string]any); ok {
		if inner, ok := info["error"].(map[string]any); ok {
			return inner
		}
	}
	return body
}

// normalize round-trips v through JSON and rewrites any integer outside the
// safe range as its decimal-string form, recursing through containers.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return rewriteNumbers(decoded), nil
}

func rewriteNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if isUnsafeInteger(val) {
			return val.String()
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = rewriteNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = rewriteNumbers(item)
		}
		return val
	default:
		return v
	}
}

func isUnsafeInteger(n json.Number) bool {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return false
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return false
	}
	return i.CmpAbs(big.NewInt(maxSafeInteger)) > 0
}
