package envelope

import (
	"encoding/json"
	stderrors "errors"
	"math/big"
	"strings"
	"testing"

	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

func TestEncodeSuccessRoundTrip(t *testing.T) {
	encoded, err := Success(map[string]any{"hash": "0xabc", "status": 1}).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	data, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", decoded)
	}
	if data["hash"] != "0xabc" {
		t.Fatalf("unexpected hash: %v", data["hash"])
	}
	if data["status"] != json.Number("1") {
		t.Fatalf("expected small integer kept numeric, got %v (%T)", data["status"], data["status"])
	}
}

func TestEncodeCoercesWeiAmountsToDecimalStrings(t *testing.T) {
	wei, _ := new(big.Int).SetString("1000000000000000000000", 10) // 1000 ether
	encoded, err := Success(map[string]any{"value": wei, "gas": 21000}).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(encoded, `"value":"1000000000000000000000"`) {
		t.Fatalf("expected value coerced to decimal string, got %s", encoded)
	}
	if !strings.Contains(encoded, `"gas":21000`) {
		t.Fatalf("expected gas kept numeric, got %s", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	data := decoded.(map[string]any)
	if data["value"] != wei.String() {
		t.Fatalf("round-trip mismatch: %v != %s", data["value"], wei.String())
	}
}

func TestEncodeCoercesLargeIntegersInsideSlices(t *testing.T) {
	encoded, err := Success([]any{int64(9007199254740993), "ok", 7}).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(encoded, `"9007199254740993"`) {
		t.Fatalf("expected 2^53+1 coerced to string, got %s", encoded)
	}
	if !strings.Contains(encoded, ",7]") {
		t.Fatalf("expected small integer kept numeric, got %s", encoded)
	}
}

func TestBoundaryIntegerStaysNumeric(t *testing.T) {
	// 2^53-1 is still exactly representable and must not be rewritten.
	encoded, err := Success(int64(9007199254740991)).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if encoded != `{"data":9007199254740991}` {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
}

func TestFailureAlwaysCarriesMessage(t *testing.T) {
	for name, err := range map[string]error{
		"typed":   bridgeerr.New(bridgeerr.CodeTimeout, "Timeout waiting for transaction receipt"),
		"plain":   stderrors.New("something broke"),
		"nil":     nil,
		"wrapped": bridgeerr.Wrap(bridgeerr.CodeTransport, "deliver callback", stderrors.New("refused")),
	} {
		encoded, encErr := Failure(err).Encode()
		if encErr != nil {
			t.Fatalf("%s: Encode failed: %v", name, encErr)
		}
		var payload struct {
			Error *ErrorBody `json:"error"`
		}
		if jsonErr := json.Unmarshal([]byte(encoded), &payload); jsonErr != nil {
			t.Fatalf("%s: invalid JSON: %v", name, jsonErr)
		}
		if payload.Error == nil || payload.Error.Message == "" {
			t.Fatalf("%s: expected non-empty error message, got %s", name, encoded)
		}
	}
}

func TestFailureProjectsProviderCodeAndStack(t *testing.T) {
	encoded, err := Failure(bridgeerr.Provider(4001, "user rejected the request", nil)).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var payload struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal([]byte(encoded), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Error.Code != 4001 {
		t.Fatalf("expected provider code 4001, got %d", payload.Error.Code)
	}
	if payload.Error.Stack == "" {
		t.Fatalf("expected captured stack in error body")
	}

	if _, decodeErr := Decode(encoded); bridgeerr.RPCCode(decodeErr) != 4001 {
		t.Fatalf("expected decoded provider code 4001, got %v", decodeErr)
	}
}

func TestDecodeUnwrapsNestedInfoError(t *testing.T) {
	encoded := `{"error":{"message":"outer","info":{"error":{"message":"user rejected","code":4001}}}}`
	_, err := Decode(encoded)
	if err == nil {
		t.Fatalf("expected error from failure envelope")
	}
	if !strings.Contains(err.Error(), "user rejected") {
		t.Fatalf("expected inner message, got %v", err)
	}
	if bridgeerr.RPCCode(err) != 4001 {
		t.Fatalf("expected inner code 4001, got %d", bridgeerr.RPCCode(err))
	}
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	if _, err := Decode(`{"neither":true}`); err == nil {
		t.Fatalf("expected error for envelope without data or error")
	}
	if _, err := Decode(`not json`); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
