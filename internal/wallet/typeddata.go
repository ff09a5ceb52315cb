package wallet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// assembleTypedData builds the full EIP-712 payload the wallet expects from
// the three pieces the kernel sends. The primary type is not part of the
// kernel contract; it is inferred from the type graph the way EIP-712 client
// libraries infer it, and the EIP712Domain type definition is synthesized
// from the populated domain fields when the kernel omits it.
func assembleTypedData(domainJSON, typesJSON, valueJSON json.RawMessage) (apitypes.TypedData, error) {
	var typed apitypes.TypedData

	if err := json.Unmarshal(domainJSON, &typed.Domain); err != nil {
		return apitypes.TypedData{}, bridgeerr.Wrap(bridgeerr.CodeUsage, "parse typed-data domain", err)
	}
	if err := json.Unmarshal(typesJSON, &typed.Types); err != nil {
		return apitypes.TypedData{}, bridgeerr.Wrap(bridgeerr.CodeUsage, "parse typed-data types", err)
	}
	if err := json.Unmarshal(valueJSON, &typed.Message); err != nil {
		return apitypes.TypedData{}, bridgeerr.Wrap(bridgeerr.CodeUsage, "parse typed-data value", err)
	}

	if typed.Types == nil {
		typed.Types = apitypes.Types{}
	}
	if _, ok := typed.Types["EIP712Domain"]; !ok {
		typed.Types["EIP712Domain"] = domainTypeFor(typed.Domain)
	}

	primary, err := inferPrimaryType(typed.Types)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	typed.PrimaryType = primary
	return typed, nil
}

// inferPrimaryType picks the struct type not referenced as a field of any
// other type. Exactly one such root must exist.
func inferPrimaryType(types apitypes.Types) (string, error) {
	referenced := map[string]bool{}
	for name, fields := range types {
		if name == "EIP712Domain" {
			continue
		}
		for _, field := range fields {
			base := strings.TrimSuffix(field.Type, "[]")
			if _, ok := types[base]; ok && base != name {
				referenced[base] = true
			}
		}
	}

	var roots []string
	for name := range types {
		if name == "EIP712Domain" {
			continue
		}
		if !referenced[name] {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)

	switch len(roots) {
	case 1:
		return roots[0], nil
	case 0:
		return "", bridgeerr.New(bridgeerr.CodeUsage, "typed data defines no signable type")
	default:
		return "", bridgeerr.New(bridgeerr.CodeUsage,
			fmt.Sprintf("ambiguous typed data primary type, candidates: %s", strings.Join(roots, ", ")))
	}
}

func domainTypeFor(domain apitypes.TypedDataDomain) []apitypes.Type {
	fields := make([]apitypes.Type, 0, 5)
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}
