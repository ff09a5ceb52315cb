package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess    Code = 0
	CodeInternal   Code = 1
	CodeUsage      Code = 2
	CodeNoProvider Code = 10
	CodeProvider   Code = 11
	CodeTimeout    Code = 12
	CodeTransport  Code = 13
	CodeCancelled  Code = 14
	CodeBlocked    Code = 15
)

// Error is a typed bridge error carrying a stable code. Provider failures
// additionally record the JSON-RPC error code assigned by the wallet, and a
// trace captured at the point of failure so the kernel side always receives
// diagnostic fields without reflecting over error internals.
type Error struct {
	Code    Code
	Message string
	Cause   error
	RPCCode int
	Trace   string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Trace: capture(2)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Trace: capture(2)}
}

// Provider builds a ProviderError from a wallet/provider rejection, keeping
// the provider-assigned JSON-RPC code.
func Provider(rpcCode int, message string, cause error) *Error {
	return &Error{Code: CodeProvider, Message: message, Cause: cause, RPCCode: rpcCode, Trace: capture(2)}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// RPCCode returns the provider-assigned JSON-RPC error code, or 0 when the
// error did not originate from the provider.
func RPCCode(err error) int {
	if bridgeErr, ok := As(err); ok {
		return bridgeErr.RPCCode
	}
	return 0
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if bridgeErr, ok := As(err); ok {
		return int(bridgeErr.Code)
	}
	return int(CodeInternal)
}

// capture records a short call trace. skip counts frames above the
// constructor so the trace starts at the failure site.
func capture(skip int) string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "%s (%s:%d)\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
