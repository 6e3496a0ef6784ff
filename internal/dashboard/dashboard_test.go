package dashboard

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/registry/registrytest"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	zusdAddr  = common.HexToAddress("0x0000000000000000000000000000000000000101")
	wethAddr  = common.HexToAddress("0x0000000000000000000000000000000000000102")
	wbtcAddr  = common.HexToAddress("0x0000000000000000000000000000000000000103")
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000105")
)

type fixture struct {
	chain *registrytest.Chain
	reg   *registry.Registry
	vault *registrytest.Contract
	weth  *registrytest.Token
	wbtc  *registrytest.Token
	zusd  *registrytest.Token
	agg   *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	network, _ := id.ParseNetwork("sepolia")
	d, err := registry.DefaultDeployment(network).WithOverrides(map[string]string{
		"zusd":  zusdAddr.Hex(),
		"weth":  wethAddr.Hex(),
		"wbtc":  wbtcAddr.Hex(),
		"vault": vaultAddr.Hex(),
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	f := &fixture{chain: registrytest.NewChain(), reg: registry.New(d)}
	f.weth = f.chain.DeployToken(wethAddr, 18)
	f.wbtc = f.chain.DeployToken(wbtcAddr, 8)
	f.zusd = f.chain.DeployToken(zusdAddr, 18)
	f.vault = f.chain.Deploy(vaultAddr, registry.VaultABI)
	assets, err := f.reg.LoadAssets(context.Background(), registry.ReadOnly(f.chain))
	if err != nil {
		t.Fatalf("LoadAssets: %v", err)
	}
	f.agg = NewAggregator(f.reg, assets, 2)
	return f
}

func TestZeroPositionRendersZerosAndUnbounded(t *testing.T) {
	f := newFixture(t)
	f.vault.Returns("getMintedZusd", big.NewInt(0))
	f.vault.Returns("getHealthFactor", new(big.Int).Set(math.MaxBig256))
	f.vault.Returns("getUserCollateralBalance", big.NewInt(0))

	snap, err := f.agg.FetchSnapshot(context.Background(), registry.ReadOnly(f.chain), owner)
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if !snap.HealthFactor.Unbounded || snap.HealthFactor.Display != "unbounded" {
		t.Fatalf("expected unbounded health factor, got %+v", snap.HealthFactor)
	}
	if snap.MintedDebt.Amount != "0" {
		t.Fatalf("expected zero debt, got %s", snap.MintedDebt.Amount)
	}
	if len(snap.Collateral) != 2 {
		t.Fatalf("expected two collateral rows, got %d", len(snap.Collateral))
	}
	for _, c := range snap.Collateral {
		if c.Amount != "0" {
			t.Fatalf("expected zero %s deposit, got %s", c.Symbol, c.Amount)
		}
	}
	if len(snap.Wallet) != 3 || snap.Wallet[2].Symbol != "ZUSD" {
		t.Fatalf("unexpected wallet rows %+v", snap.Wallet)
	}
}

func TestSnapshotUsesPerAssetDecimals(t *testing.T) {
	f := newFixture(t)
	minted, _ := new(big.Int).SetString("1250500000000000000000", 10)
	health, _ := new(big.Int).SetString("1512345678900000000", 10)
	f.vault.Returns("getMintedZusd", minted)
	f.vault.Returns("getHealthFactor", health)
	f.vault.On("getUserCollateralBalance", func(call registrytest.Call) ([]any, error) {
		if call.Args[1].(common.Address) == wbtcAddr {
			return []any{big.NewInt(150_000_000)}, nil
		}
		return []any{big.NewInt(2e18)}, nil
	})
	f.wbtc.SetBalance(owner, big.NewInt(1))

	snap, err := f.agg.FetchSnapshot(context.Background(), registry.ReadOnly(f.chain), owner)
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if snap.MintedDebt.Amount != "1250.5" {
		t.Fatalf("unexpected debt %s", snap.MintedDebt.Amount)
	}
	if snap.HealthFactor.Display != "1.5123" || snap.HealthFactor.Unbounded {
		t.Fatalf("unexpected health factor %+v", snap.HealthFactor)
	}
	if snap.Collateral[0].Symbol != "WETH" || snap.Collateral[0].Amount != "2" {
		t.Fatalf("unexpected WETH row %+v", snap.Collateral[0])
	}
	if snap.Collateral[1].Symbol != "WBTC" || snap.Collateral[1].Amount != "1.5" {
		t.Fatalf("unexpected WBTC row %+v", snap.Collateral[1])
	}
	if snap.Wallet[1].Amount != "0.00000001" {
		t.Fatalf("unexpected WBTC wallet balance %s", snap.Wallet[1].Amount)
	}
}

func TestOneFailedReadFailsTheSnapshot(t *testing.T) {
	f := newFixture(t)
	f.vault.Returns("getMintedZusd", big.NewInt(10))
	f.vault.Reverts("getHealthFactor", "oracle stale")
	f.vault.Returns("getUserCollateralBalance", big.NewInt(0))

	snap, err := f.agg.FetchSnapshot(context.Background(), registry.ReadOnly(f.chain), owner)
	if !clierr.HasCode(err, clierr.CodePartialReadFailure) {
		t.Fatalf("expected PartialReadFailure, got %v", err)
	}
	if snap.Address != "" || snap.Collateral != nil {
		t.Fatalf("failed fetch must not expose a partial snapshot, got %+v", snap)
	}
}

func TestMissingVaultAddress(t *testing.T) {
	network, _ := id.ParseNetwork("sepolia")
	reg := registry.New(registry.DefaultDeployment(network))
	agg := NewAggregator(reg, registry.Assets{}, 0)
	if _, err := agg.FetchSnapshot(context.Background(), registry.ReadOnly(registrytest.NewChain()), owner); !clierr.HasCode(err, clierr.CodeMissingAddress) {
		t.Fatalf("expected MissingAddress, got %v", err)
	}
}
