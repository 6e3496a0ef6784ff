package app

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/schema"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

func writeCommand(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[schema.AnnotationWrites] = "true"
	return cmd
}

type vaultAction func(ctx context.Context, vault *execution.Vault, sess session.Session) (execution.Result, error)

// runVault connects, loads assets when the action involves collateral, and
// emits the confirmed result.
func (s *runtimeState) runVault(cmd *cobra.Command, needsCollateral bool, action vaultAction) error {
	ctx := cmd.Context()
	sess, err := s.connect(ctx)
	if err != nil {
		return err
	}
	var assets registry.Assets
	if needsCollateral {
		assets, err = s.registry.LoadAssets(ctx, sess.ReadIdentity())
		if err != nil {
			return err
		}
	}
	res, err := action(ctx, execution.NewVault(s.orchestrator(), assets), sess)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
}

func (s *runtimeState) newVaultCommands() []*cobra.Command {
	var depositCollateral, depositAmount string
	deposit := writeCommand(&cobra.Command{
		Use:   "deposit",
		Short: "Deposit collateral into the vault (approves the vault first when needed)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, true, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.Deposit(ctx, sess, depositCollateral, depositAmount)
			})
		},
	})
	deposit.Flags().StringVar(&depositCollateral, "collateral", "", "Collateral symbol (weth|wbtc)")
	deposit.Flags().StringVar(&depositAmount, "amount", "", "Collateral amount in decimal units")
	_ = deposit.MarkFlagRequired("collateral")
	_ = deposit.MarkFlagRequired("amount")

	var mintAmount string
	mint := writeCommand(&cobra.Command{
		Use:   "mint",
		Short: "Mint ZUSD against deposited collateral",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, false, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.Mint(ctx, sess, mintAmount)
			})
		},
	})
	mint.Flags().StringVar(&mintAmount, "amount", "", "ZUSD amount in decimal units")
	_ = mint.MarkFlagRequired("amount")

	var dmCollateral, dmAmount, dmMint string
	depositMint := writeCommand(&cobra.Command{
		Use:   "deposit-mint",
		Short: "Deposit collateral and mint ZUSD in one vault call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, true, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.DepositAndMint(ctx, sess, dmCollateral, dmAmount, dmMint)
			})
		},
	})
	depositMint.Flags().StringVar(&dmCollateral, "collateral", "", "Collateral symbol (weth|wbtc)")
	depositMint.Flags().StringVar(&dmAmount, "amount", "", "Collateral amount in decimal units")
	depositMint.Flags().StringVar(&dmMint, "mint", "", "ZUSD to mint in decimal units")
	_ = depositMint.MarkFlagRequired("collateral")
	_ = depositMint.MarkFlagRequired("amount")
	_ = depositMint.MarkFlagRequired("mint")

	var burnAmount string
	burn := writeCommand(&cobra.Command{
		Use:   "burn",
		Short: "Burn ZUSD to reduce minted debt (approves the vault first when needed)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, false, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.Burn(ctx, sess, burnAmount)
			})
		},
	})
	burn.Flags().StringVar(&burnAmount, "amount", "", "ZUSD amount in decimal units")
	_ = burn.MarkFlagRequired("amount")

	var redeemCollateral, redeemAmount string
	redeem := writeCommand(&cobra.Command{
		Use:   "redeem",
		Short: "Withdraw deposited collateral",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, true, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.Redeem(ctx, sess, redeemCollateral, redeemAmount)
			})
		},
	})
	redeem.Flags().StringVar(&redeemCollateral, "collateral", "", "Collateral symbol (weth|wbtc)")
	redeem.Flags().StringVar(&redeemAmount, "amount", "", "Collateral amount in decimal units")
	_ = redeem.MarkFlagRequired("collateral")
	_ = redeem.MarkFlagRequired("amount")

	var swapCollateral, swapAmount, swapBurn string
	swap := writeCommand(&cobra.Command{
		Use:   "swap",
		Short: "Burn ZUSD and redeem collateral in one vault call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runVault(cmd, true, func(ctx context.Context, v *execution.Vault, sess session.Session) (execution.Result, error) {
				return v.RedeemForZusd(ctx, sess, swapCollateral, swapAmount, swapBurn)
			})
		},
	})
	swap.Flags().StringVar(&swapCollateral, "collateral", "", "Collateral symbol to receive (weth|wbtc)")
	swap.Flags().StringVar(&swapAmount, "amount", "", "Collateral amount in decimal units")
	swap.Flags().StringVar(&swapBurn, "burn", "", "ZUSD to burn in decimal units")
	_ = swap.MarkFlagRequired("collateral")
	_ = swap.MarkFlagRequired("amount")
	_ = swap.MarkFlagRequired("burn")

	return []*cobra.Command{deposit, mint, depositMint, burn, redeem, swap}
}
