package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/zephyra-labs/zephyra-cli/internal/dashboard"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
)

func (s *runtimeState) newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Request account access from the wallet and report the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := s.connect(cmd.Context())
			if err != nil {
				return err
			}
			status := s.sessionStatus()
			status.Connected = true
			status.Address = sess.Address.Hex()
			status.ChainID = sess.ChainID
			status.Network = sess.NetworkLabel

			var warnings []string
			if sess.ChainID != s.registry.ChainID() {
				warnings = append(warnings, fmt.Sprintf("wallet is on %s; writes are blocked until it switches to %s", sess.NetworkLabel, s.network.Label()))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), status, warnings)
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured network, endpoint chain and contract addresses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			chainID, err := s.provider.ChainID(ctx)
			if err != nil {
				return err
			}
			status := s.sessionStatus()
			status.ChainID = chainID

			var warnings []string
			if chainID != s.registry.ChainID() {
				warnings = append(warnings, fmt.Sprintf("rpc endpoint reports chain %d but the deployment is on %s", chainID, s.network.Label()))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), status, warnings)
		},
	}
}

func (s *runtimeState) sessionStatus() model.SessionStatus {
	deployment := s.registry.Deployment()
	contracts := make(map[string]string, len(deployment.Contracts))
	for _, name := range deployment.Names() {
		contracts[name] = deployment.Contracts[name].Hex()
	}
	return model.SessionStatus{
		Network:   s.network.Label(),
		ChainID:   s.network.ChainID,
		Contracts: contracts,
	}
}

func (s *runtimeState) newDashboardCommand() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Collateral, minted ZUSD, health factor and wallet balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			snap, err := s.snapshot(ctx, address)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), snap, nil)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Account to inspect (default: connected wallet)")
	return cmd
}

func (s *runtimeState) snapshot(ctx context.Context, owner string) (model.DashboardSnapshot, error) {
	identity, address, err := s.resolveAccount(ctx, "address", owner)
	if err != nil {
		return model.DashboardSnapshot{}, err
	}
	assets, err := s.registry.LoadAssets(ctx, identity)
	if err != nil {
		return model.DashboardSnapshot{}, err
	}
	agg := dashboard.NewAggregator(s.registry, assets, s.settings.ReadConcurrency)
	snap, err := agg.FetchSnapshot(ctx, identity, common.HexToAddress(address))
	if err != nil {
		s.metrics.IncReadFailure("dashboard")
		return model.DashboardSnapshot{}, err
	}
	return snap, nil
}
