package registry_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/registry/registrytest"
)

var (
	user    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	zusd    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	weth    = common.HexToAddress("0x0000000000000000000000000000000000000102")
	wbtc    = common.HexToAddress("0x0000000000000000000000000000000000000103")
	nftAddr = common.HexToAddress("0x0000000000000000000000000000000000000104")
)

func testDeployment(t *testing.T) registry.Deployment {
	t.Helper()
	network, err := id.ParseNetwork("sepolia")
	if err != nil {
		t.Fatalf("ParseNetwork: %v", err)
	}
	d, err := registry.DefaultDeployment(network).WithOverrides(map[string]string{
		"zusd": zusd.Hex(),
		"WETH": weth.Hex(),
		"wbtc": wbtc.Hex(),
		"nft":  nftAddr.Hex(),
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	return d
}

func TestHandleMissingAddress(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	if _, err := reg.Handle(registry.NameVault, registry.ReadOnly(chain)); !clierr.HasCode(err, clierr.CodeMissingAddress) {
		t.Fatalf("expected MissingAddress for vault, got %v", err)
	}
	if _, err := reg.Handle(registry.NameRouter, registry.ReadOnly(chain)); err != nil {
		t.Fatalf("expected built-in sepolia router, got %v", err)
	}
}

func TestWithOverridesValidation(t *testing.T) {
	base := testDeployment(t)
	if _, err := base.WithOverrides(map[string]string{"oracle": zusd.Hex()}); err == nil {
		t.Fatal("expected unknown name error")
	}
	if _, err := base.WithOverrides(map[string]string{"vault": "0x1234"}); err == nil {
		t.Fatal("expected invalid address error")
	}
	removed, err := base.WithOverrides(map[string]string{"router": ""})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	if _, ok := removed.Contracts[registry.NameRouter]; ok {
		t.Fatal("expected empty override to remove router")
	}
	if _, ok := base.Contracts[registry.NameRouter]; !ok {
		t.Fatal("overrides must not mutate the source deployment")
	}
}

func TestReadOnlyHandleCannotTransact(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	chain.DeployToken(zusd, 18)
	handle, err := reg.Handle(registry.NameZUSD, registry.ReadOnly(chain))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	_, err = handle.Transact(context.Background(), nil, "approve", user, big.NewInt(1))
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected PreconditionFailed, got %v", err)
	}
	if len(chain.Sent("")) != 0 {
		t.Fatal("read-only handle must not submit")
	}
}

func TestHandleCallAndTransact(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	token := chain.DeployToken(zusd, 18)
	token.SetBalance(user, big.NewInt(500))

	identity := registry.Signing(chain, chain.Transactor(user))
	handle, err := reg.Handle(registry.NameZUSD, identity)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	bal, err := handle.BigInt(context.Background(), "balanceOf", user)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if bal.Int64() != 500 {
		t.Fatalf("unexpected balance %s", bal)
	}

	spender := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	hash, err := handle.Transact(context.Background(), nil, "approve", spender, big.NewInt(42))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := handle.Wait(context.Background(), hash); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := token.Allowance(user, spender); got.Int64() != 42 {
		t.Fatalf("unexpected allowance %s", got)
	}
}

func TestHandleWaitRevertedReceipt(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	chain.DeployToken(zusd, 18)
	chain.FailReceipt("approve")
	handle, _ := reg.Handle(registry.NameZUSD, registry.Signing(chain, chain.Transactor(user)))
	hash, err := handle.Transact(context.Background(), nil, "approve", user, big.NewInt(1))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := handle.Wait(context.Background(), hash); err == nil {
		t.Fatal("expected reverted receipt error")
	}
}

func TestFilterEventsByIndexedArgs(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	chain.Deploy(nftAddr, registry.NFTABI)
	handle, _ := reg.Handle(registry.NameNFT, registry.ReadOnly(chain))
	transfer := handle.ABI().Events["Transfer"].ID
	other := common.HexToAddress("0x00000000000000000000000000000000000000c3")

	mint := func(to common.Address, tokenID int64) types.Log {
		return types.Log{
			Address: nftAddr,
			Topics: []common.Hash{
				transfer,
				common.BytesToHash(common.Address{}.Bytes()),
				common.BytesToHash(to.Bytes()),
				common.BigToHash(big.NewInt(tokenID)),
			},
		}
	}
	chain.AddLog(mint(user, 1))
	chain.AddLog(mint(other, 2))
	chain.AddLog(mint(user, 3))

	logs, err := handle.FilterEvents(context.Background(), "Transfer", nil, []any{common.Address{}}, []any{user})
	if err != nil {
		t.Fatalf("FilterEvents: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs for user, got %d", len(logs))
	}
	if logs[1].Topics[3].Big().Int64() != 3 {
		t.Fatalf("unexpected token id %s", logs[1].Topics[3].Big())
	}
}

func TestLoadAssetsReadsCollateralDecimals(t *testing.T) {
	reg := registry.New(testDeployment(t))
	chain := registrytest.NewChain()
	chain.DeployToken(weth, 18)
	chain.DeployToken(wbtc, 8)

	assets, err := reg.LoadAssets(context.Background(), registry.ReadOnly(chain))
	if err != nil {
		t.Fatalf("LoadAssets: %v", err)
	}
	if assets.Stablecoin.Decimals != 18 {
		t.Fatalf("unexpected stablecoin decimals %d", assets.Stablecoin.Decimals)
	}
	btc, err := assets.CollateralBySymbol("wbtc")
	if err != nil {
		t.Fatalf("CollateralBySymbol: %v", err)
	}
	if btc.Decimals != 8 {
		t.Fatalf("expected 8 decimals for WBTC, got %d", btc.Decimals)
	}
	if _, err := assets.CollateralBySymbol("DOGE"); !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected PreconditionFailed for unknown collateral, got %v", err)
	}
}

func TestGatewayURLs(t *testing.T) {
	if !registry.IsAllowedGatewayURL("https://ipfs.io/ipfs/") {
		t.Fatal("expected https gateway to be allowed")
	}
	if !registry.IsAllowedGatewayURL("http://127.0.0.1:8080/ipfs/") {
		t.Fatal("expected loopback gateway to be allowed")
	}
	if registry.IsAllowedGatewayURL("http://gateway.example/ipfs/") {
		t.Fatal("did not expect plain http gateway to be allowed")
	}
	if got := registry.NormalizeGateway("https://gw.example/ipfs//"); got != "https://gw.example/ipfs/" {
		t.Fatalf("unexpected normalized gateway %s", got)
	}
	if got := registry.CCIPMessageURL("0xabc"); got != "https://ccip.chain.link/msg/0xabc" {
		t.Fatalf("unexpected explorer url %s", got)
	}
	if rpc, err := registry.ResolveRPCURL("", 84532); err != nil || rpc == "" {
		t.Fatalf("expected base sepolia default rpc, got %q err=%v", rpc, err)
	}
}
