package registry

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
)

// Assets holds the resolved descriptors for a deployment.
type Assets struct {
	Stablecoin id.AssetDescriptor
	Collateral []id.AssetDescriptor
}

// LoadAssets reads each collateral token's decimals from chain. Collaterals
// with no configured address are skipped; ZUSD is fixed at 18 decimals.
func (r *Registry) LoadAssets(ctx context.Context, identity Identity) (Assets, error) {
	zusd, err := r.Address(NameZUSD)
	if err != nil {
		return Assets{}, err
	}
	out := Assets{Stablecoin: id.AssetDescriptor{Symbol: "ZUSD", Address: zusd, Decimals: id.StablecoinDecimals}}
	for _, name := range CollateralNames {
		if _, err := r.Address(name); err != nil {
			continue
		}
		handle, err := r.Handle(name, identity)
		if err != nil {
			return Assets{}, err
		}
		decimals, err := handle.Uint8(ctx, "decimals")
		if err != nil {
			return Assets{}, err
		}
		out.Collateral = append(out.Collateral, id.AssetDescriptor{
			Symbol:   strings.ToUpper(name),
			Address:  handle.Address,
			Decimals: int(decimals),
		})
	}
	if len(out.Collateral) == 0 {
		return Assets{}, clierr.New(clierr.CodeMissingAddress, fmt.Sprintf("no collateral tokens configured for %s", r.deployment.Network.Label()))
	}
	return out, nil
}

// CollateralBySymbol finds a collateral descriptor case-insensitively.
func (a Assets) CollateralBySymbol(symbol string) (id.AssetDescriptor, error) {
	want := strings.ToUpper(strings.TrimSpace(symbol))
	for _, asset := range a.Collateral {
		if asset.Symbol == want {
			return asset, nil
		}
	}
	known := make([]string, 0, len(a.Collateral))
	for _, asset := range a.Collateral {
		known = append(known, asset.Symbol)
	}
	return id.AssetDescriptor{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("unknown collateral %q (expected one of %s)", symbol, strings.Join(known, ", ")))
}
