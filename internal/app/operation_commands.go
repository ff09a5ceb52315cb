package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-bridge/internal/dispatch"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
	"github.com/ggonzalez94/wallet-bridge/internal/wallet"
)

// dispatchOperation runs one wallet operation under its request token and
// emits the inline envelope when the host mode returns one.
func (s *runtimeState) dispatchOperation(cmd *cobra.Command, token string, timeout time.Duration, op dispatch.Operation) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out, err := s.dispatcher.Dispatch(ctx, token, op)
	if err != nil {
		return err
	}
	if out != "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

// opTimeout leaves the per-request timeout plus slack for the callback relay.
func (s *runtimeState) opTimeout() time.Duration {
	return s.settings.Timeout * 2
}

// readJSONArg decodes one positional JSON argument; "-" reads stdin so the
// kernel can pipe large payloads.
func readJSONArg(cmd *cobra.Command, arg string, out any) error {
	raw := []byte(arg)
	if arg == "-" {
		buf, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.CodeUsage, "read stdin", err)
		}
		raw = buf
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return bridgeerr.Wrap(bridgeerr.CodeUsage, "parse JSON argument", err)
	}
	return nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func tokenFlag(cmd *cobra.Command, token *string) {
	cmd.Flags().StringVar(token, "token", "", "Request token identifying this invocation")
	_ = cmd.MarkFlagRequired("token")
}

func (s *runtimeState) newLoadSignerCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "load-signer",
		Short: "Resolve the wallet's active account address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.dispatchOperation(cmd, token, s.opTimeout(), func(ctx context.Context) (any, error) {
				return s.ops.LoadSigner(ctx)
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}

func (s *runtimeState) newSendTxCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "send-tx <tx-json>",
		Short: "Submit a transaction through the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tx map[string]any
			if err := readJSONArg(cmd, args[0], &tx); err != nil {
				return err
			}
			return s.dispatchOperation(cmd, token, s.opTimeout(), func(ctx context.Context) (any, error) {
				return s.ops.SendTransaction(ctx, tx)
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}

func (s *runtimeState) newSignTypedDataCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "sign-typed-data <domain-json> <types-json> <value-json>",
		Short: "Sign an EIP-712 typed-data payload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.dispatchOperation(cmd, token, s.opTimeout(), func(ctx context.Context) (any, error) {
				return s.ops.SignTypedData(ctx,
					json.RawMessage(args[0]), json.RawMessage(args[1]), json.RawMessage(args[2]))
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}

func (s *runtimeState) newRPCCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "rpc <method> [params-json]",
		Short: "Forward an arbitrary JSON-RPC call to the wallet provider",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			var params []any
			if len(args) == 2 {
				if err := readJSONArg(cmd, args[1], &params); err != nil {
					return err
				}
			}
			return s.dispatchOperation(cmd, token, s.opTimeout(), func(ctx context.Context) (any, error) {
				return s.ops.RPC(ctx, method, params)
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}

func (s *runtimeState) newMultiRPCCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "multi-rpc <payloads-json>",
		Short: "Run a sequence of JSON-RPC calls in order, stopping on the first failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payloads []wallet.RPCPayload
			if err := readJSONArg(cmd, args[0], &payloads); err != nil {
				return err
			}
			return s.dispatchOperation(cmd, token, s.opTimeout(), func(ctx context.Context) (any, error) {
				return s.ops.MultiRPC(ctx, payloads)
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}

func (s *runtimeState) newWaitReceiptCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "wait-receipt <tx-hash>",
		Short: "Poll for a transaction receipt until confirmed or timed out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash := args[0]
			// The poller owns the timeout budget; the context only guards
			// against a wedged provider past that budget.
			ctxBudget := s.settings.ReceiptTimeout + s.settings.Timeout
			return s.dispatchOperation(cmd, token, ctxBudget, func(ctx context.Context) (any, error) {
				return s.ops.WaitForReceipt(ctx, txHash, s.settings.ReceiptTimeout, s.settings.PollInterval)
			})
		},
	}
	tokenFlag(cmd, &token)
	return cmd
}
