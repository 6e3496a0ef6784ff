package app

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/zephyra-labs/zephyra-cli/internal/bridge"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/httpx"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/market"
	"github.com/zephyra-labs/zephyra-cli/internal/nft"
)

func (s *runtimeState) newMarketCommand() *cobra.Command {
	root := &cobra.Command{Use: "market", Short: "Protocol participants and liquidations"}

	var caller string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every participant with debt, collateral and liquidation eligibility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			var warnings []string
			identity, self, err := s.resolveAccount(ctx, "caller", caller)
			if clierr.HasCode(err, clierr.CodeNoWalletProvider) {
				identity, err = s.readIdentity(ctx)
				self = common.Address{}.Hex()
				warnings = append(warnings, "no wallet configured; eligibility does not exclude your own position")
			}
			if err != nil {
				return err
			}
			assets, err := s.registry.LoadAssets(ctx, identity)
			if err != nil {
				return err
			}
			scanner := market.NewScanner(s.orchestrator(), assets, s.settings.ReadConcurrency)
			participants, err := scanner.ListParticipants(ctx, identity, common.HexToAddress(self))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), participants, warnings)
		},
	}
	list.Flags().StringVar(&caller, "caller", "", "Account excluded from eligibility (default: connected wallet)")

	var req market.LiquidationRequest
	liquidate := writeCommand(&cobra.Command{
		Use:   "liquidate",
		Short: "Cover a participant's ZUSD debt and seize collateral",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := s.connect(ctx)
			if err != nil {
				return err
			}
			assets, err := s.registry.LoadAssets(ctx, sess.ReadIdentity())
			if err != nil {
				return err
			}
			res, err := market.NewScanner(s.orchestrator(), assets, s.settings.ReadConcurrency).Liquidate(ctx, sess, req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	})
	liquidate.Flags().StringVar(&req.User, "user", "", "Address of the position to liquidate")
	liquidate.Flags().StringVar(&req.Collateral, "collateral", "", "Collateral to seize (weth|wbtc)")
	liquidate.Flags().StringVar(&req.DebtToCover, "debt", "", "ZUSD debt to cover in decimal units")
	_ = liquidate.MarkFlagRequired("user")
	_ = liquidate.MarkFlagRequired("collateral")
	_ = liquidate.MarkFlagRequired("debt")

	root.AddCommand(list, liquidate)
	return root
}

func (s *runtimeState) newNFTCommand() *cobra.Command {
	root := &cobra.Command{Use: "nft", Short: "Protocol NFT collection"}
	var owner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List owned tokens with resolved metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			identity, holder, err := s.resolveAccount(ctx, "owner", owner)
			if err != nil {
				return err
			}
			opts := nft.Options{MaxFetch: s.settings.NFTMaxFetch, Concurrency: s.settings.ReadConcurrency}
			if s.settings.NFTFromBlock > 0 {
				opts.FromBlock = new(big.Int).SetUint64(s.settings.NFTFromBlock)
			}
			resolver := nft.NewResolver(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.IPFSGateway)
			result, err := nft.NewEngine(s.registry, resolver, opts).Discover(ctx, identity, common.HexToAddress(holder))
			if err != nil {
				return err
			}
			var warnings []string
			if opts.MaxFetch > 0 && len(result.Tokens) == opts.MaxFetch {
				warnings = append(warnings, "result reached the fetch limit; raise nft.max_fetch to see more")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, warnings)
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "Owner address (default: connected wallet)")
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newRaffleCommand() *cobra.Command {
	root := &cobra.Command{Use: "raffle", Short: "NFT raffle"}
	status := &cobra.Command{
		Use:   "status",
		Short: "Raffle state, entry fee, players and the most recent winner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			identity, err := s.readIdentity(ctx)
			if err != nil {
				return err
			}
			data, err := nft.NewRaffle(s.orchestrator()).Status(ctx, identity)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	enter := writeCommand(&cobra.Command{
		Use:   "enter",
		Short: "Pay the ZUSD entry fee and enter the raffle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := s.connect(ctx)
			if err != nil {
				return err
			}
			res, err := nft.NewRaffle(s.orchestrator()).Enter(ctx, sess)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	})
	root.AddCommand(status, enter)
	return root
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	root := &cobra.Command{Use: "bridge", Short: "Move ZUSD to another chain over CCIP"}

	chains := &cobra.Command{
		Use:   "chains",
		Short: "List supported destination chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), bridge.Chains(), nil)
		},
	}

	var quoteReq bridge.Request
	quote := &cobra.Command{
		Use:   "quote",
		Short: "Quote the native fee for a transfer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.readContext(cmd)
			defer cancel()
			identity, err := s.readIdentity(ctx)
			if err != nil {
				return err
			}
			data, err := s.coordinator().Quote(ctx, identity, quoteReq)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	bindBridgeFlags(quote, &quoteReq)
	_ = quote.MarkFlagRequired("receiver")

	var sendReq bridge.Request
	var feeWei string
	send := writeCommand(&cobra.Command{
		Use:   "send",
		Short: "Approve the router and send ZUSD, paying the quoted fee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payment, err := parseFeeWei(feeWei)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := s.connect(ctx)
			if err != nil {
				return err
			}
			req := sendReq
			if strings.TrimSpace(req.Receiver) == "" {
				req.Receiver = sess.Address.Hex()
			}
			data, err := s.coordinator().SubmitQuoted(ctx, sess, req, payment)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	})
	bindBridgeFlags(send, &sendReq)
	send.Flags().StringVar(&feeWei, "fee-wei", "", "Expected fee from a prior quote; rejected if the fee changed")

	root.AddCommand(chains, quote, send)
	return root
}

func (s *runtimeState) coordinator() *bridge.Coordinator {
	return bridge.NewCoordinator(s.orchestrator(), s.settings.BridgeGasLimit)
}

func bindBridgeFlags(cmd *cobra.Command, req *bridge.Request) {
	cmd.Flags().StringVar(&req.Destination, "to", "", "Destination chain (base-sepolia|fuji|sepolia)")
	cmd.Flags().StringVar(&req.Receiver, "receiver", "", "Receiver on the destination chain (send defaults to your address)")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "ZUSD amount in decimal units")
	cmd.Flags().Uint64Var(&req.GasLimit, "gas-limit", 0, "Destination execution gas limit")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
}

func parseFeeWei(v string) (*big.Int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	fee, err := id.ToBaseUnits(v, 0)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse --fee-wei", err)
	}
	return fee, nil
}
