package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-bridge/internal/callback"
	"github.com/ggonzalez94/wallet-bridge/internal/config"
	"github.com/ggonzalez94/wallet-bridge/internal/dispatch"
	"github.com/ggonzalez94/wallet-bridge/internal/envelope"
	bridgeerr "github.com/ggonzalez94/wallet-bridge/internal/errors"
	"github.com/ggonzalez94/wallet-bridge/internal/httpx"
	"github.com/ggonzalez94/wallet-bridge/internal/policy"
	"github.com/ggonzalez94/wallet-bridge/internal/provider"
	"github.com/ggonzalez94/wallet-bridge/internal/schema"
	"github.com/ggonzalez94/wallet-bridge/internal/version"
	"github.com/ggonzalez94/wallet-bridge/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	root     *cobra.Command

	mode       dispatch.HostMode
	store      *dispatch.TokenStore
	ops        *wallet.Ops
	dispatcher *dispatch.Dispatcher
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError(err)
	return bridgeerr.ExitCode(err)
}

// renderError emits a failure envelope on stderr so the kernel-side caller
// can parse bridge failures the same way it parses operation failures.
func (s *runtimeState) renderError(err error) {
	encoded, encodeErr := envelope.Failure(err).Encode()
	if encodeErr != nil {
		fmt.Fprintf(s.runner.stderr, "walletbridge: %v\n", err)
		return
	}
	fmt.Fprintln(s.runner.stderr, encoded)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Bridge between a notebook kernel and a browser wallet provider",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "help", "version", "schema":
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return bridgeerr.Wrap(bridgeerr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			if err := policy.CheckOperationAllowed(settings.EnableOps, cmd.Name()); err != nil {
				return err
			}

			mode, err := dispatch.ParseHostMode(settings.Mode)
			if err != nil {
				return err
			}
			s.mode = mode

			if s.dispatcher == nil {
				if err := s.buildDispatcher(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return bridgeerr.Wrap(bridgeerr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.Mode, "mode", "", "Host mode: standalone or embedded")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Wallet provider JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.CallbackURL, "callback-url", "", "Kernel host callback base URL (standalone mode)")
	cmd.PersistentFlags().StringVar(&s.flags.XSRFToken, "xsrf-token", "", "Anti-forgery token value (overrides cookie lookup)")
	cmd.PersistentFlags().StringVar(&s.flags.CookieFile, "cookie-file", "", "Cookie file holding the anti-forgery token")
	cmd.PersistentFlags().StringVar(&s.flags.CookieName, "cookie-name", "", "Anti-forgery cookie name")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Per-request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per callback request")
	cmd.PersistentFlags().StringVar(&s.flags.ReceiptTimeout, "receipt-timeout", "", "Total budget for receipt polling")
	cmd.PersistentFlags().StringVar(&s.flags.PollInterval, "poll-interval", "", "Receipt poll interval")
	cmd.PersistentFlags().StringVar(&s.flags.EnableOps, "enable-ops", "", "Allowlist of operations (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStore, "no-store", false, "Disable the delivered-token store")

	cmd.AddCommand(s.newLoadSignerCommand())
	cmd.AddCommand(s.newSendTxCommand())
	cmd.AddCommand(s.newSignTypedDataCommand())
	cmd.AddCommand(s.newRPCCommand())
	cmd.AddCommand(s.newMultiRPCCommand())
	cmd.AddCommand(s.newWaitReceiptCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// buildDispatcher assembles the provider handle, operation set and relay
// channel once per invocation, from resolved settings.
func (s *runtimeState) buildDispatcher() error {
	handle := provider.NewRPCHandle(s.settings.RPCURL)
	s.ops = wallet.New(handle)

	if s.mode == dispatch.ModeEmbedded {
		s.dispatcher = dispatch.New(dispatch.ModeEmbedded, nil, nil, s.runner.stderr)
		return nil
	}

	if s.settings.CallbackURL == "" {
		return bridgeerr.New(bridgeerr.CodeUsage, "standalone mode requires --callback-url")
	}
	xsrf := callback.StaticToken(s.settings.XSRFToken)
	if s.settings.XSRFToken == "" && s.settings.CookieFile != "" {
		xsrf = callback.CookieFileToken(s.settings.CookieFile, s.settings.CookieName)
	}
	callbackClient := callback.New(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.CallbackURL, xsrf)

	if s.settings.StoreEnabled {
		store, err := dispatch.OpenTokenStore(s.settings.StorePath, s.settings.StoreLockPath)
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.CodeInternal, "open token store", err)
		}
		s.store = store
	}
	s.dispatcher = dispatch.New(dispatch.ModeStandalone, callbackClient, s.store, s.runner.stderr)
	return nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = joinArgs(args)
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return bridgeerr.Wrap(bridgeerr.CodeUsage, "build schema", err)
			}
			encoded, err := envelope.Success(data).Encode()
			if err != nil {
				return bridgeerr.Wrap(bridgeerr.CodeInternal, "encode schema", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
	return cmd
}
