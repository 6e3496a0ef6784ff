package execution

import (
	"context"

	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

// Vault exposes the vault's user actions with decimal inputs.
type Vault struct {
	orch   *Orchestrator
	assets registry.Assets
}

// NewVault takes the deployment's loaded assets; Mint and Burn work with an
// empty Assets since ZUSD precision is fixed.
func NewVault(orch *Orchestrator, assets registry.Assets) *Vault {
	return &Vault{orch: orch, assets: assets}
}

func (v *Vault) Deposit(ctx context.Context, sess session.Session, collateral, amount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	asset, err := v.assets.CollateralBySymbol(collateral)
	if err != nil {
		return Result{}, err
	}
	wei, err := id.ParsePositiveAmount("amount", amount, asset.Decimals)
	if err != nil {
		return Result{}, err
	}
	vault, token, err := v.handles(sess, asset)
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "deposit",
		Spend:  &Spend{Token: token, Owner: sess.Address, Spender: vault.Address, Amount: wei},
		Call:   Call{Handle: vault, Method: "depositCollateral", Args: []any{asset.Address, wei}},
	})
}

func (v *Vault) Mint(ctx context.Context, sess session.Session, amount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	wei, err := id.ParsePositiveAmount("amount", amount, id.StablecoinDecimals)
	if err != nil {
		return Result{}, err
	}
	vault, err := v.orch.registry.Handle(registry.NameVault, sess.Identity())
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "mint",
		Call:   Call{Handle: vault, Method: "mintZusd", Args: []any{wei}},
	})
}

func (v *Vault) DepositAndMint(ctx context.Context, sess session.Session, collateral, collateralAmount, mintAmount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	asset, err := v.assets.CollateralBySymbol(collateral)
	if err != nil {
		return Result{}, err
	}
	collateralWei, err := id.ParsePositiveAmount("collateral amount", collateralAmount, asset.Decimals)
	if err != nil {
		return Result{}, err
	}
	mintWei, err := id.ParsePositiveAmount("mint amount", mintAmount, id.StablecoinDecimals)
	if err != nil {
		return Result{}, err
	}
	vault, token, err := v.handles(sess, asset)
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "deposit-mint",
		Spend:  &Spend{Token: token, Owner: sess.Address, Spender: vault.Address, Amount: collateralWei},
		Call:   Call{Handle: vault, Method: "depositCollateralAndMintZusd", Args: []any{asset.Address, collateralWei, mintWei}},
	})
}

func (v *Vault) Burn(ctx context.Context, sess session.Session, amount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	wei, err := id.ParsePositiveAmount("amount", amount, id.StablecoinDecimals)
	if err != nil {
		return Result{}, err
	}
	vault, zusd, err := v.zusdHandles(sess)
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "burn",
		Spend:  &Spend{Token: zusd, Owner: sess.Address, Spender: vault.Address, Amount: wei},
		Call:   Call{Handle: vault, Method: "burnZusd", Args: []any{wei}},
	})
}

func (v *Vault) Redeem(ctx context.Context, sess session.Session, collateral, amount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	asset, err := v.assets.CollateralBySymbol(collateral)
	if err != nil {
		return Result{}, err
	}
	wei, err := id.ParsePositiveAmount("amount", amount, asset.Decimals)
	if err != nil {
		return Result{}, err
	}
	vault, err := v.orch.registry.Handle(registry.NameVault, sess.Identity())
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "redeem",
		Call:   Call{Handle: vault, Method: "redeemCollateral", Args: []any{asset.Address, wei}},
	})
}

// RedeemForZusd burns ZUSD and withdraws collateral in one call.
func (v *Vault) RedeemForZusd(ctx context.Context, sess session.Session, collateral, collateralAmount, burnAmount string) (Result, error) {
	if err := CheckSession(sess, v.orch.registry); err != nil {
		return Result{}, err
	}
	asset, err := v.assets.CollateralBySymbol(collateral)
	if err != nil {
		return Result{}, err
	}
	collateralWei, err := id.ParsePositiveAmount("collateral amount", collateralAmount, asset.Decimals)
	if err != nil {
		return Result{}, err
	}
	burnWei, err := id.ParsePositiveAmount("burn amount", burnAmount, id.StablecoinDecimals)
	if err != nil {
		return Result{}, err
	}
	vault, zusd, err := v.zusdHandles(sess)
	if err != nil {
		return Result{}, err
	}
	return v.orch.Run(ctx, Plan{
		Action: "redeem-for-zusd",
		Spend:  &Spend{Token: zusd, Owner: sess.Address, Spender: vault.Address, Amount: burnWei},
		Call:   Call{Handle: vault, Method: "redeemCollateralForZusd", Args: []any{asset.Address, collateralWei, burnWei}},
	})
}

func (v *Vault) handles(sess session.Session, asset id.AssetDescriptor) (*registry.Handle, *registry.Handle, error) {
	identity := sess.Identity()
	vault, err := v.orch.registry.Handle(registry.NameVault, identity)
	if err != nil {
		return nil, nil, err
	}
	token, err := v.orch.registry.TokenHandle(asset.Symbol, asset.Address, identity)
	if err != nil {
		return nil, nil, err
	}
	return vault, token, nil
}

func (v *Vault) zusdHandles(sess session.Session) (*registry.Handle, *registry.Handle, error) {
	identity := sess.Identity()
	vault, err := v.orch.registry.Handle(registry.NameVault, identity)
	if err != nil {
		return nil, nil, err
	}
	zusd, err := v.orch.registry.Handle(registry.NameZUSD, identity)
	if err != nil {
		return nil, nil, err
	}
	return vault, zusd, nil
}
