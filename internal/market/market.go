// Package market lists protocol participants and liquidates unhealthy
// positions.
package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zephyra-labs/zephyra-cli/internal/dashboard"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
	"golang.org/x/sync/errgroup"
)

// Eligible is the liquidation rule: an unhealthy position that is not the
// caller's own.
func Eligible(healthFactor *big.Int, participant, caller common.Address) bool {
	return model.Liquidatable(healthFactor) && participant != caller
}

type Scanner struct {
	orch        *execution.Orchestrator
	assets      registry.Assets
	concurrency int
}

func NewScanner(orch *execution.Orchestrator, assets registry.Assets, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = dashboard.DefaultConcurrency
	}
	return &Scanner{orch: orch, assets: assets, concurrency: concurrency}
}

type position struct {
	collateral []*big.Int
	minted     *big.Int
	health     *big.Int
}

func (s *Scanner) readPosition(ctx context.Context, vault *registry.Handle, user common.Address) (position, error) {
	p := position{collateral: make([]*big.Int, len(s.assets.Collateral))}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		p.minted, err = vault.BigInt(gctx, "getMintedZusd", user)
		return err
	})
	g.Go(func() (err error) {
		p.health, err = vault.BigInt(gctx, "getHealthFactor", user)
		return err
	})
	for i, asset := range s.assets.Collateral {
		g.Go(func() (err error) {
			p.collateral[i], err = vault.BigInt(gctx, "getUserCollateralBalance", user, asset.Address)
			return err
		})
	}
	return p, g.Wait()
}

// ListParticipants returns every participant in the vault's enumeration
// order. caller may be the zero address for a read-only view.
func (s *Scanner) ListParticipants(ctx context.Context, identity registry.Identity, caller common.Address) ([]model.MarketParticipant, error) {
	vault, err := s.orch.Registry().Handle(registry.NameVault, identity)
	if err != nil {
		return nil, err
	}
	users, err := vault.Addresses(ctx, "getUsers")
	if err != nil {
		return nil, err
	}

	positions := make([]position, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, user := range users {
		g.Go(func() (err error) {
			positions[i], err = s.readPosition(gctx, vault, user)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, clierr.Wrap(clierr.CodePartialReadFailure, "market read failed", err)
	}

	out := make([]model.MarketParticipant, 0, len(users))
	for i, user := range users {
		p := positions[i]
		participant := model.MarketParticipant{
			Address:      user.Hex(),
			Collateral:   make([]model.AssetAmount, 0, len(s.assets.Collateral)),
			MintedDebt:   dashboard.Amount(s.assets.Stablecoin, p.minted),
			HealthFactor: model.NewHealthFactor(p.health),
			Eligible:     Eligible(p.health, user, caller),
		}
		for j, asset := range s.assets.Collateral {
			participant.Collateral = append(participant.Collateral, dashboard.Amount(asset, p.collateral[j]))
		}
		out = append(out, participant)
	}
	return out, nil
}

type LiquidationRequest struct {
	User        string
	Collateral  string
	DebtToCover string
}

// Liquidate re-checks eligibility against fresh chain state, then covers
// debt in ZUSD and seizes the chosen collateral.
func (s *Scanner) Liquidate(ctx context.Context, sess session.Session, req LiquidationRequest) (execution.Result, error) {
	reg := s.orch.Registry()
	if err := execution.CheckSession(sess, reg); err != nil {
		return execution.Result{}, err
	}
	target, err := id.ParseAddress("user", req.User)
	if err != nil {
		return execution.Result{}, err
	}
	asset, err := s.assets.CollateralBySymbol(req.Collateral)
	if err != nil {
		return execution.Result{}, err
	}
	debt, err := id.ParsePositiveAmount("debt", req.DebtToCover, id.StablecoinDecimals)
	if err != nil {
		return execution.Result{}, err
	}
	if target == sess.Address {
		return execution.Result{}, clierr.New(clierr.CodeNotEligible, "cannot liquidate your own position")
	}
	identity := sess.Identity()
	vault, err := reg.Handle(registry.NameVault, identity)
	if err != nil {
		return execution.Result{}, err
	}
	zusd, err := reg.Handle(registry.NameZUSD, identity)
	if err != nil {
		return execution.Result{}, err
	}
	health, err := vault.BigInt(ctx, "getHealthFactor", target)
	if err != nil {
		return execution.Result{}, err
	}
	if !Eligible(health, target, sess.Address) {
		return execution.Result{}, clierr.New(clierr.CodeNotEligible, fmt.Sprintf(
			"%s is not liquidatable (health factor %s)", target.Hex(), model.NewHealthFactor(health).Display))
	}
	return s.orch.Run(ctx, execution.Plan{
		Action: "liquidate",
		Spend:  &execution.Spend{Token: zusd, Owner: sess.Address, Spender: vault.Address, Amount: debt},
		Call:   execution.Call{Handle: vault, Method: "liquidate", Args: []any{asset.Address, target, debt}},
	})
}
