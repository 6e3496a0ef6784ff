package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/zephyra-labs/zephyra-cli/internal/config"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/metrics"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/registry/registrytest"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
	"github.com/zephyra-labs/zephyra-cli/internal/wallet"
	"go.uber.org/zap"
)

var (
	user      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	zusdAddr  = common.HexToAddress("0x0000000000000000000000000000000000000101")
	wethAddr  = common.HexToAddress("0x0000000000000000000000000000000000000102")
	wbtcAddr  = common.HexToAddress("0x0000000000000000000000000000000000000103")
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000105")
)

// chainProvider is a wallet backed by the fake chain.
type chainProvider struct {
	chain   *registrytest.Chain
	account common.Address
	chainID int64
	noKey   bool

	mu   sync.Mutex
	subs []chan wallet.Notification
}

func (p *chainProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	if p.noKey {
		return nil, clierr.New(clierr.CodeNoWalletProvider, "no wallet key configured")
	}
	return []common.Address{p.account}, nil
}

func (p *chainProvider) ChainID(context.Context) (int64, error) { return p.chainID, nil }

func (p *chainProvider) Signer(context.Context, common.Address) (registry.Transactor, error) {
	return p.chain.Transactor(p.account), nil
}

func (p *chainProvider) Reader(context.Context) (registry.Reader, error) { return p.chain, nil }

func (p *chainProvider) Subscribe() (<-chan wallet.Notification, func()) {
	ch := make(chan wallet.Notification, 4)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

type harness struct {
	chain    *registrytest.Chain
	weth     *registrytest.Token
	zusd     *registrytest.Token
	vault    *registrytest.Contract
	provider *chainProvider
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	runner   *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("ZEPHYRA_NETWORK", "")
	t.Setenv("ZEPHYRA_CONTRACT_ZUSD", zusdAddr.Hex())
	t.Setenv("ZEPHYRA_CONTRACT_WETH", wethAddr.Hex())
	t.Setenv("ZEPHYRA_CONTRACT_WBTC", wbtcAddr.Hex())
	t.Setenv("ZEPHYRA_CONTRACT_VAULT", vaultAddr.Hex())

	h := &harness{chain: registrytest.NewChain()}
	h.weth = h.chain.DeployToken(wethAddr, 18)
	h.chain.DeployToken(wbtcAddr, 8)
	h.zusd = h.chain.DeployToken(zusdAddr, 18)
	h.vault = h.chain.Deploy(vaultAddr, registry.VaultABI)
	h.vault.Returns("getMintedZusd", big.NewInt(0))
	h.vault.Returns("getHealthFactor", new(big.Int).Set(math.MaxBig256))
	h.vault.Returns("getUserCollateralBalance", big.NewInt(0))
	h.vault.On("depositCollateral", func(call registrytest.Call) ([]any, error) {
		amount := call.Args[1].(*big.Int)
		if err := h.weth.Spend(call.From, vaultAddr, amount); err != nil {
			return nil, err
		}
		if call.Write {
			h.weth.Move(call.From, vaultAddr, amount)
		}
		return nil, nil
	})
	h.vault.Returns("mintZusd")
	h.vault.On("redeemCollateralForZusd", func(call registrytest.Call) ([]any, error) {
		return nil, h.zusd.Spend(call.From, vaultAddr, call.Args[2].(*big.Int))
	})

	h.provider = &chainProvider{chain: h.chain, account: user, chainID: 11155111}
	h.runner = NewRunnerWithWriters(&h.stdout, &h.stderr)
	h.runner.newProvider = func(config.Settings, string, wallet.Prompt) (wallet.Provider, error) {
		return h.provider, nil
	}
	h.runner.newLogger = func(string) (*zap.Logger, error) { return zap.NewNop(), nil }
	return h
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	return h.runner.Run(args)
}

func (h *harness) errorEnvelope(t *testing.T) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(h.stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, h.stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	return env["error"].(map[string]any)
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("zephyra market liquidate"); got != "market liquidate" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	h := newHarness(t)
	if code := h.run("version"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if strings.TrimSpace(h.stdout.String()) == "" {
		t.Fatal("expected a version string")
	}
}

func TestRunnerSchemaMarksWrites(t *testing.T) {
	h := newHarness(t)
	if code := h.run("schema", "bridge", "send", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(h.stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse schema: %v output=%s", err, h.stdout.String())
	}
	if out["path"] != "zephyra bridge send" || out["writes"] != true {
		t.Fatalf("unexpected schema: %v", out)
	}
}

func TestRunnerBridgeChainsNeedsNoChain(t *testing.T) {
	h := newHarness(t)
	h.runner.newProvider = func(config.Settings, string, wallet.Prompt) (wallet.Provider, error) {
		return nil, errors.New("provider must not be built")
	}
	if code := h.run("bridge", "chains", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var chains []map[string]any
	if err := json.Unmarshal(h.stdout.Bytes(), &chains); err != nil {
		t.Fatalf("failed to parse chains: %v", err)
	}
	if len(chains) != 3 {
		t.Fatalf("expected 3 chains, got %d", len(chains))
	}
}

func TestRunnerDashboardForConnectedWallet(t *testing.T) {
	h := newHarness(t)
	h.zusd.SetBalance(user, big.NewInt(7e18))
	if code := h.run("dashboard", "--yes"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Address      string `json:"address"`
			HealthFactor struct {
				Display string `json:"display"`
			} `json:"health_factor"`
			Wallet []struct {
				Symbol string `json:"symbol"`
				Amount string `json:"amount"`
			} `json:"wallet"`
		} `json:"data"`
		Meta struct {
			Account string `json:"account"`
			Network string `json:"network"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, h.stdout.String())
	}
	if !env.Success || env.Data.Address != user.Hex() || env.Meta.Account != user.Hex() {
		t.Fatalf("unexpected envelope: %s", h.stdout.String())
	}
	if env.Data.HealthFactor.Display != "unbounded" {
		t.Fatalf("expected unbounded health factor, got %s", env.Data.HealthFactor.Display)
	}
	last := env.Data.Wallet[len(env.Data.Wallet)-1]
	if last.Symbol != "ZUSD" || last.Amount != "7" {
		t.Fatalf("unexpected ZUSD row %+v", last)
	}
}

func TestRunnerDepositApprovesThenDeposits(t *testing.T) {
	h := newHarness(t)
	h.weth.SetBalance(user, big.NewInt(5e18))
	code := h.run("deposit", "--collateral", "weth", "--amount", "1.5", "--yes", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var res map[string]any
	if err := json.Unmarshal(h.stdout.Bytes(), &res); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if res["status"] != "confirmed" || res["approval_tx_hash"] == nil || res["action"] != "deposit" {
		t.Fatalf("unexpected result %v", res)
	}
	sent := h.chain.Sent("")
	if len(sent) != 2 || sent[0].Method != "approve" || sent[1].Method != "depositCollateral" {
		t.Fatalf("expected approve then deposit, got %+v", sent)
	}
}

func TestRunnerNegativeMintMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	code := h.run("mint", "--amount=-5", "--yes")
	if code != int(clierr.CodePreconditionFailed) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodePreconditionFailed, code, h.stderr.String())
	}
	if body := h.errorEnvelope(t); body["type"] != "precondition_failed" {
		t.Fatalf("unexpected error body %v", body)
	}
	if n := len(h.chain.Sent("")); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
}

func TestRunnerReadOnlyBlocksWrites(t *testing.T) {
	h := newHarness(t)
	h.weth.SetBalance(user, big.NewInt(5e18))
	code := h.run("--read-only", "deposit", "--collateral", "weth", "--amount", "1", "--yes", "--results-only")
	if code != int(clierr.CodeBlocked) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeBlocked, code, h.stderr.String())
	}
	if body := h.errorEnvelope(t); body["type"] != "command_blocked" {
		t.Fatalf("unexpected error body %v", body)
	}
	if n := len(h.chain.Sent("")); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}

	if code := h.run("--read-only", "dashboard", "--address", user.Hex()); code != 0 {
		t.Fatalf("reads must pass under --read-only, got %d stderr=%s", code, h.stderr.String())
	}
}

func TestRunnerEnableCommandsAllowlist(t *testing.T) {
	h := newHarness(t)
	code := h.run("bridge", "chains", "--enable-commands", "dashboard", "--results-only")
	if code != int(clierr.CodeBlocked) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeBlocked, code, h.stderr.String())
	}
	h.errorEnvelope(t)
}

func TestRunnerConnectWithoutKey(t *testing.T) {
	h := newHarness(t)
	h.provider.noKey = true
	code := h.run("connect", "--yes")
	if code != int(clierr.CodeNoWalletProvider) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeNoWalletProvider, code, h.stderr.String())
	}
	if body := h.errorEnvelope(t); body["type"] != "no_wallet_provider" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestRunnerConnectWarnsOnNetworkMismatch(t *testing.T) {
	h := newHarness(t)
	h.provider.chainID = 84532
	if code := h.run("connect", "--yes"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var env struct {
		Data     map[string]any `json:"data"`
		Warnings []string       `json:"warnings"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v", err)
	}
	if env.Data["connected"] != true || len(env.Warnings) != 1 {
		t.Fatalf("expected a connected session with a network warning, got %s", h.stdout.String())
	}
}

func TestRunnerMarketListFallsBackWithoutWallet(t *testing.T) {
	h := newHarness(t)
	h.provider.noKey = true
	other := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	h.vault.Returns("getUsers", []common.Address{other})
	h.vault.Returns("getHealthFactor", big.NewInt(5e17))
	if code := h.run("market", "list"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var env struct {
		Data []struct {
			Address  string `json:"address"`
			Eligible bool   `json:"eligible"`
		} `json:"data"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v", err)
	}
	if len(env.Data) != 1 || !env.Data[0].Eligible || len(env.Warnings) != 1 {
		t.Fatalf("unexpected market output %s", h.stdout.String())
	}
}

func TestAcquireWatchLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zephyra", "watch.lock")
	first, err := acquireWatchLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer func() { _ = first.Unlock() }()

	if _, err := acquireWatchLock(path); !clierr.HasCode(err, clierr.CodeBlocked) {
		t.Fatalf("expected second watch to be blocked, got %v", err)
	}
}

func TestRunnerWritesFeedOperationMetrics(t *testing.T) {
	h := newHarness(t)
	reg := metrics.New()
	h.runner.newMetrics = func() *metrics.Registry { return reg }
	h.weth.SetBalance(user, big.NewInt(5e18))
	if code := h.run("deposit", "--collateral", "weth", "--amount", "1", "--yes"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	want := `zephyra_operation_transitions_total{action="deposit",kind="act",status="confirmed"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
}

func TestRunnerSwapApprovesBurnAmount(t *testing.T) {
	h := newHarness(t)
	h.zusd.SetBalance(user, big.NewInt(9e18))
	code := h.run("swap", "--collateral", "weth", "--amount", "0.5", "--burn", "3", "--yes", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	sent := h.chain.Sent("")
	if len(sent) != 2 || sent[0].To != zusdAddr || sent[1].Method != "redeemCollateralForZusd" {
		t.Fatalf("expected ZUSD approval then redeem, got %+v", sent)
	}
	if got := sent[0].Args[1].(*big.Int); got.Cmp(big.NewInt(3e18)) != 0 {
		t.Fatalf("expected approval for the burn amount, got %s", got)
	}
}

func TestWatchNavigatorRedirectsOnlyFromOtherViews(t *testing.T) {
	h := newHarness(t)
	nav := newWatchNavigator()
	mgr := session.NewManager(h.provider, nav, zap.NewNop())

	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if nav.CurrentView() != session.ViewDashboard || len(nav.arrived) != 1 {
		t.Fatalf("expected one dashboard arrival, view=%s pending=%d", nav.CurrentView(), len(nav.arrived))
	}
	<-nav.arrived

	// Reconnect while already on the dashboard.
	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(nav.arrived) != 0 {
		t.Fatal("reconnect on the dashboard must not navigate again")
	}

	nav.Navigate(viewConnect)
	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(nav.arrived) != 1 {
		t.Fatal("connect from another view must navigate to the dashboard")
	}
}
