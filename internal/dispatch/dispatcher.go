// Package dispatch wraps every wallet operation with duplicate-execution
// suppression, envelope encoding, and relay of the result back to the kernel
// through the channel the host environment supports.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ggonzalez94/wallet-bridge/internal/callback"
	"github.com/ggonzalez94/wallet-bridge/internal/envelope"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
)

// HostMode selects the relay channel. It is decided once from configuration
// at startup, never probed per call.
type HostMode int

const (
	// ModeStandalone posts results to the host's callback endpoint and
	// suppresses duplicate deliveries, because the host re-evaluates the
	// triggering script.
	ModeStandalone HostMode = iota
	// ModeEmbedded returns the encoded envelope inline; the host captures
	// evaluation results directly and never replays them.
	ModeEmbedded
)

func ParseHostMode(value string) (HostMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "standalone":
		return ModeStandalone, nil
	case "embedded", "colab":
		return ModeEmbedded, nil
	default:
		return ModeStandalone, bridgeerr.New(bridgeerr.CodeUsage,
			fmt.Sprintf("unknown host mode %q (expected standalone or embedded)", value))
	}
}

func (m HostMode) String() string {
	if m == ModeEmbedded {
		return "embedded"
	}
	return "standalone"
}

// Operation is one wallet operation bound to its arguments.
type Operation func(ctx context.Context) (any, error)

type Dispatcher struct {
	mode     HostMode
	callback *callback.Client
	store    *TokenStore
	warnings io.Writer
}

// New builds a dispatcher. callbackClient and store are required in
// standalone mode; both are ignored in embedded mode.
func New(mode HostMode, callbackClient *callback.Client, store *TokenStore, warnings io.Writer) *Dispatcher {
	return &Dispatcher{mode: mode, callback: callbackClient, store: store, warnings: warnings}
}

// Dispatch executes op under the given request token and relays its outcome.
// Operation failures become failure envelopes and are relayed like any other
// result; only relay and bookkeeping failures surface as errors. In embedded
// mode the encoded envelope is returned; in standalone mode the returned
// string is empty and the envelope travels over HTTP.
func (d *Dispatcher) Dispatch(ctx context.Context, token string, op Operation) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", bridgeerr.New(bridgeerr.CodeUsage, "missing request token")
	}
	if d.mode == ModeEmbedded {
		return d.encodeOutcome(ctx, op), nil
	}
	return "", d.dispatchStandalone(ctx, token, op)
}

func (d *Dispatcher) dispatchStandalone(ctx context.Context, token string, op Operation) error {
	if d.callback == nil {
		return bridgeerr.New(bridgeerr.CodeUsage, "standalone mode requires a callback endpoint")
	}

	if d.store != nil {
		delivered, err := d.store.Delivered(token)
		if err != nil {
			d.warnf("token store check failed for %s: %v", token, err)
		} else if delivered {
			return nil
		}
	}

	delivered, err := d.callback.AlreadyDelivered(ctx, token)
	if err != nil {
		// Undeliverable probe: treat the token as not yet delivered and
		// proceed, so a flaky host cannot silently drop results.
		d.warnf("duplicate check failed for %s, proceeding: %v", token, err)
	} else if delivered {
		if d.store != nil {
			if _, err := d.store.MarkDelivered(token); err != nil {
				d.warnf("token store update failed for %s: %v", token, err)
			}
		}
		return nil
	}

	body := d.encodeOutcome(ctx, op)

	if d.store != nil {
		inserted, err := d.store.MarkDelivered(token)
		if err != nil {
			d.warnf("token store insert failed for %s: %v", token, err)
		} else if !inserted {
			// A concurrent invocation won the insert and owns delivery.
			return nil
		}
	}
	return d.callback.Deliver(ctx, token, body)
}

// encodeOutcome runs the operation and folds any failure into the envelope,
// so errors always reach the kernel instead of crashing the dispatch.
func (d *Dispatcher) encodeOutcome(ctx context.Context, op Operation) string {
	result, err := op(ctx)
	env := envelope.Success(result)
	if err != nil {
		env = envelope.Failure(err)
	}
	encoded, err := env.Encode()
	if err == nil {
		return encoded
	}
	encoded, err = envelope.Failure(err).Encode()
	if err != nil {
		// ErrorBody is plain strings and ints; this cannot fail.
		panic(err)
	}
	return encoded
}

func (d *Dispatcher) warnf(format string, args ...any) {
	if d.warnings == nil {
		return
	}
	fmt.Fprintf(d.warnings, "walletbridge: "+format+"\n", args...)
}
