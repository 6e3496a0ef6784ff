package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zephyra-labs/zephyra-cli/internal/config"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/execution/signer"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/logging"
	"github.com/zephyra-labs/zephyra-cli/internal/metrics"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/out"
	"github.com/zephyra-labs/zephyra-cli/internal/policy"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/schema"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
	"github.com/zephyra-labs/zephyra-cli/internal/version"
	"github.com/zephyra-labs/zephyra-cli/internal/wallet"
	"go.uber.org/zap"
)

// ProviderFactory builds the wallet provider for one invocation.
type ProviderFactory func(settings config.Settings, rpcURL string, prompt wallet.Prompt) (wallet.Provider, error)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	newProvider ProviderFactory
	newLogger   func(level string) (*zap.Logger, error)
	newMetrics  func() *metrics.Registry
}

func NewRunner() *Runner {
	r := NewRunnerWithWriters(os.Stdout, os.Stderr)
	r.stdin = os.Stdin
	return r
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:       strings.NewReader(""),
		stdout:      stdout,
		stderr:      stderr,
		now:         time.Now,
		newProvider: localProvider,
		newLogger:   logging.New,
		newMetrics:  metrics.New,
	}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	root     *cobra.Command
	logger   *zap.Logger

	network  id.Network
	registry *registry.Registry
	rpcURL   string
	provider wallet.Provider
	manager  *session.Manager
	metrics  *metrics.Registry

	lastCommand  string
	lastAccount  string
	lastWarnings []string
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &runtimeState{runner: r, logger: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}

	state.renderError("", err, state.lastWarnings)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.manager != nil {
		s.manager.Close()
	}
	if c, ok := s.provider.(interface{ Close() }); ok {
		c.Close()
	}
	_ = s.logger.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet and transaction client for the Zephyra ZUSD protocol",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			logger, err := s.runner.newLogger(settings.LogLevel)
			if err != nil {
				return err
			}
			s.logger = logger
			s.metrics = s.runner.newMetrics()

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			p := policy.Policy{
				Allowlist: settings.EnableCommands,
				ReadOnly:  settings.ReadOnly,
				Writes:    policy.WriteSet(schema.WritePaths(s.root)...),
			}
			if err := p.Check(path); err != nil {
				return err
			}
			if !needsChain(path) {
				return nil
			}
			return s.setupChain()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted for nested)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ReadOnly, "read-only", false, "Block every command that submits transactions")
	cmd.PersistentFlags().BoolVarP(&s.flags.Yes, "yes", "y", false, "Approve account access and transactions without prompting")
	cmd.PersistentFlags().StringVar(&s.flags.Network, "network", "", "Network (sepolia|base-sepolia|fuji or chain id)")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint override")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Timeout for read commands")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per metadata request")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newConnectCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newDashboardCommand())
	for _, c := range s.newVaultCommands() {
		cmd.AddCommand(c)
	}
	cmd.AddCommand(s.newMarketCommand())
	cmd.AddCommand(s.newNFTCommand())
	cmd.AddCommand(s.newRaffleCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newWatchCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// setupChain resolves the deployment and wallet provider for the selected
// network.
func (s *runtimeState) setupChain() error {
	network, err := id.ParseNetwork(s.settings.Network)
	if err != nil {
		return err
	}
	deployment, err := registry.DefaultDeployment(network).WithOverrides(s.settings.Contracts)
	if err != nil {
		return err
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, network.ChainID)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	s.network = network
	s.registry = registry.New(deployment)
	s.rpcURL = rpcURL

	var prompt wallet.Prompt
	if !s.settings.AssumeYes {
		prompt = terminalPrompt(s.runner.stdin, s.runner.stderr)
	}
	provider, err := s.runner.newProvider(s.settings, rpcURL, prompt)
	if err != nil {
		return err
	}
	s.provider = provider
	s.manager = session.NewManager(provider, nil, s.logger)
	return nil
}

func localProvider(settings config.Settings, rpcURL string, prompt wallet.Prompt) (wallet.Provider, error) {
	source, err := signer.ParseKeySource(settings.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse key source", err)
	}
	return wallet.NewLocalProvider(wallet.LocalConfig{
		RPCURL: rpcURL,
		Keys:   signer.KeyConfigFromEnv(source),
		Tx: wallet.TxOptions{
			GasMultiplier:      settings.GasMultiplier,
			MaxFeeGwei:         settings.MaxFeeGwei,
			MaxPriorityFeeGwei: settings.MaxPriorityFeeGwei,
		},
		Prompt: prompt,
	}), nil
}

func (s *runtimeState) orchestrator() *execution.Orchestrator {
	observers := []execution.Observer{execution.LogObserver(s.logger)}
	if s.metrics != nil {
		observers = append(observers, s.metrics.Observer())
	}
	return execution.NewOrchestrator(s.registry, observers...)
}

// readContext bounds read commands with --timeout. Writes use the command
// context directly and run until interrupted.
func (s *runtimeState) readContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if s.settings.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), s.settings.Timeout)
}

func (s *runtimeState) readIdentity(ctx context.Context) (registry.Identity, error) {
	reader, err := s.provider.Reader(ctx)
	if err != nil {
		return registry.Identity{}, err
	}
	return registry.ReadOnly(reader), nil
}

func (s *runtimeState) connect(ctx context.Context) (session.Session, error) {
	sess, err := s.manager.Connect(ctx)
	if err != nil {
		return session.Session{}, err
	}
	s.lastAccount = sess.Address.Hex()
	return sess, nil
}

// resolveAccount returns the explicit address if given, else the connected
// account.
func (s *runtimeState) resolveAccount(ctx context.Context, field, explicit string) (registry.Identity, string, error) {
	if strings.TrimSpace(explicit) != "" {
		addr, err := id.ParseAddress(field, explicit)
		if err != nil {
			return registry.Identity{}, "", err
		}
		identity, err := s.readIdentity(ctx)
		if err != nil {
			return registry.Identity{}, "", err
		}
		return identity, addr.Hex(), nil
	}
	sess, err := s.connect(ctx)
	if err != nil {
		return registry.Identity{}, "", err
	}
	return sess.ReadIdentity(), sess.Address.Hex(), nil
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
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	meta := model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Account:   s.lastAccount,
	}
	if s.registry != nil {
		meta.Network = s.network.Label()
	}
	return meta
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	stage := ""
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
		stage = string(cErr.Stage)
	}
	s.logger.Warn("command failed", zap.String("command", commandPath), zap.String("type", typ), zap.Error(err))

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
			Stage:   stage,
		},
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

// needsChain reports whether a command talks to the network.
func needsChain(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema", "bridge chains", "completion":
		return false
	default:
		return !strings.HasPrefix(normalizeCommandPath(commandPath), "completion ")
	}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	if errors.Is(err, context.Canceled) {
		return clierr.Wrap(clierr.CodeUserRejected, "interrupted", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}
