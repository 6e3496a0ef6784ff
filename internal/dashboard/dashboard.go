// Package dashboard assembles a user's position from concurrent vault and
// token reads.
package dashboard

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

const displayPlaces = 6

type Aggregator struct {
	registry    *registry.Registry
	assets      registry.Assets
	concurrency int
	now         func() time.Time
}

func NewAggregator(reg *registry.Registry, assets registry.Assets, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{registry: reg, assets: assets, concurrency: concurrency, now: time.Now}
}

// FetchSnapshot reads everything for owner concurrently. Any failed read
// fails the whole snapshot with PartialReadFailure.
func (a *Aggregator) FetchSnapshot(ctx context.Context, identity registry.Identity, owner common.Address) (model.DashboardSnapshot, error) {
	vault, err := a.registry.Handle(registry.NameVault, identity)
	if err != nil {
		return model.DashboardSnapshot{}, err
	}
	zusd, err := a.registry.Handle(registry.NameZUSD, identity)
	if err != nil {
		return model.DashboardSnapshot{}, err
	}
	tokens := make([]*registry.Handle, len(a.assets.Collateral))
	for i, asset := range a.assets.Collateral {
		tokens[i], err = a.registry.TokenHandle(asset.Symbol, asset.Address, identity)
		if err != nil {
			return model.DashboardSnapshot{}, err
		}
	}

	var (
		minted, health *big.Int
		deposited      = make([]*big.Int, len(a.assets.Collateral))
		held           = make([]*big.Int, len(a.assets.Collateral))
		zusdHeld       *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	g.Go(func() (err error) {
		minted, err = vault.BigInt(gctx, "getMintedZusd", owner)
		return err
	})
	g.Go(func() (err error) {
		health, err = vault.BigInt(gctx, "getHealthFactor", owner)
		return err
	})
	g.Go(func() (err error) {
		zusdHeld, err = zusd.BigInt(gctx, "balanceOf", owner)
		return err
	})
	for i, asset := range a.assets.Collateral {
		g.Go(func() (err error) {
			deposited[i], err = vault.BigInt(gctx, "getUserCollateralBalance", owner, asset.Address)
			return err
		})
		g.Go(func() (err error) {
			held[i], err = tokens[i].BigInt(gctx, "balanceOf", owner)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return model.DashboardSnapshot{}, clierr.Wrap(clierr.CodePartialReadFailure, "dashboard read failed; no snapshot produced", err)
	}

	snap := model.DashboardSnapshot{
		Address:      owner.Hex(),
		Network:      a.registry.Deployment().Network.Label(),
		HealthFactor: model.NewHealthFactor(health),
		MintedDebt:   Amount(a.assets.Stablecoin, minted),
		Collateral:   make([]model.AssetAmount, 0, len(a.assets.Collateral)),
		Wallet:       make([]model.AssetAmount, 0, len(a.assets.Collateral)+1),
		FetchedAt:    a.now().UTC(),
	}
	for i, asset := range a.assets.Collateral {
		snap.Collateral = append(snap.Collateral, Amount(asset, deposited[i]))
		snap.Wallet = append(snap.Wallet, Amount(asset, held[i]))
	}
	snap.Wallet = append(snap.Wallet, Amount(a.assets.Stablecoin, zusdHeld))
	return snap, nil
}

// Amount renders base units for one asset.
func Amount(asset id.AssetDescriptor, baseUnits *big.Int) model.AssetAmount {
	if baseUnits == nil {
		baseUnits = new(big.Int)
	}
	return model.AssetAmount{
		Symbol:    asset.Symbol,
		Address:   asset.Address.Hex(),
		Decimals:  asset.Decimals,
		Amount:    id.FormatUnits(baseUnits, asset.Decimals, displayPlaces),
		BaseUnits: baseUnits.String(),
	}
}
