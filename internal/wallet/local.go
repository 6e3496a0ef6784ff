package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution/signer"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
)

const notificationBuffer = 8

type DialFunc func(ctx context.Context, rawURL string) (Backend, error)

func DialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type LocalConfig struct {
	RPCURL string
	Keys   signer.KeyConfig
	Tx     TxOptions
	// Prompt confirms account access and every transaction. Nil approves
	// everything (--yes).
	Prompt Prompt
	Dial   DialFunc
}

// LocalProvider is a wallet backed by a key on this machine and a JSON-RPC
// endpoint.
type LocalProvider struct {
	cfg LocalConfig

	mu      sync.Mutex
	backend Backend
	closer  func()
	signer  signer.Signer
	granted bool
	subs    map[int]chan Notification
	nextSub int
}

func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.Dial == nil {
		cfg.Dial = DialEthclient
	}
	return &LocalProvider{cfg: cfg, subs: map[int]chan Notification{}}
}

func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	s, err := p.loadSigner()
	if err != nil {
		return nil, err
	}
	backend, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	if p.cfg.Prompt != nil {
		label := "unknown chain"
		if chainID, err := backend.ChainID(ctx); err == nil {
			label = networkLabel(chainID.Int64())
		}
		ok, err := p.cfg.Prompt(ctx, fmt.Sprintf("connect account %s on %s", s.Address().Hex(), label))
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUserRejected, "confirm account access", err)
		}
		if !ok {
			return nil, clierr.New(clierr.CodeUserRejected, "account access declined")
		}
	}
	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()
	return []common.Address{s.Address()}, nil
}

func (p *LocalProvider) ChainID(ctx context.Context) (int64, error) {
	backend, err := p.connect(ctx)
	if err != nil {
		return 0, err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeConnection, "read chain id", err)
	}
	return chainID.Int64(), nil
}

func (p *LocalProvider) Signer(ctx context.Context, account common.Address) (registry.Transactor, error) {
	backend, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	s, granted := p.signer, p.granted
	p.mu.Unlock()
	if s == nil || !granted {
		return nil, clierr.New(clierr.CodePreconditionFailed, "account access has not been granted")
	}
	if s.Address() != account {
		return nil, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("account %s is not available in this wallet", account.Hex()))
	}
	return NewAccount(backend, s, p.cfg.Tx, p.cfg.Prompt), nil
}

func (p *LocalProvider) Reader(ctx context.Context) (registry.Reader, error) {
	return p.connect(ctx)
}

func (p *LocalProvider) Subscribe() (<-chan Notification, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.nextSub
	p.nextSub++
	ch := make(chan Notification, notificationBuffer)
	p.subs[key] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, key)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// SwitchAccount replaces the active key and notifies subscribers.
func (p *LocalProvider) SwitchAccount(s signer.Signer) {
	p.mu.Lock()
	p.signer = s
	p.mu.Unlock()
	p.notify(Notification{Kind: AccountsChanged, Accounts: []common.Address{s.Address()}})
}

// RevokeAccounts withdraws account access, as a wallet does when the user
// disconnects the site.
func (p *LocalProvider) RevokeAccounts() {
	p.mu.Lock()
	p.granted = false
	p.mu.Unlock()
	p.notify(Notification{Kind: AccountsChanged})
}

// SwitchNetwork points the wallet at another RPC endpoint.
func (p *LocalProvider) SwitchNetwork(ctx context.Context, rpcURL string) error {
	backend, closer, err := p.dial(ctx, rpcURL)
	if err != nil {
		return err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		closer()
		return clierr.Wrap(clierr.CodeConnection, "read chain id", err)
	}
	p.mu.Lock()
	old := p.closer
	p.backend, p.closer = backend, closer
	p.cfg.RPCURL = rpcURL
	p.mu.Unlock()
	if old != nil {
		old()
	}
	p.notify(Notification{Kind: ChainChanged, ChainID: chainID.Int64()})
	return nil
}

// WatchNetwork polls the endpoint's chain id and emits ChainChanged whenever
// it differs from the last observed value. It returns when ctx is done.
func (p *LocalProvider) WatchNetwork(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		current, err := p.ChainID(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if current != last {
			last = current
			p.notify(Notification{Kind: ChainChanged, ChainID: current})
		}
	}
}

func (p *LocalProvider) Close() {
	p.mu.Lock()
	closer := p.closer
	p.backend, p.closer = nil, nil
	p.mu.Unlock()
	if closer != nil {
		closer()
	}
}

func (p *LocalProvider) loadSigner() (signer.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signer != nil {
		return p.signer, nil
	}
	s, err := signer.Load(p.cfg.Keys)
	if err != nil {
		if errors.Is(err, signer.ErrNoKey) {
			return nil, clierr.New(clierr.CodeNoWalletProvider, fmt.Sprintf("no wallet key configured (set %s, %s or %s)", signer.EnvPrivateKey, signer.EnvPrivateKeyFile, signer.EnvKeystorePath))
		}
		return nil, clierr.Wrap(clierr.CodeConnection, "load wallet key", err)
	}
	p.signer = s
	return s, nil
}

func (p *LocalProvider) connect(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	if p.backend != nil {
		b := p.backend
		p.mu.Unlock()
		return b, nil
	}
	rpcURL := p.cfg.RPCURL
	p.mu.Unlock()

	backend, closer, err := p.dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		closer()
		return p.backend, nil
	}
	p.backend, p.closer = backend, closer
	return backend, nil
}

func (p *LocalProvider) dial(ctx context.Context, rpcURL string) (Backend, func(), error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, nil, clierr.New(clierr.CodeConnection, "rpc url is required")
	}
	backend, err := p.cfg.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeConnection, "connect rpc", err)
	}
	closer := func() {}
	if c, ok := backend.(interface{ Close() }); ok {
		closer = c.Close
	}
	return backend, closer, nil
}

// notify never blocks; subscribers resync from provider state, so a full
// buffer already holds a pending resync.
func (p *LocalProvider) notify(n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func networkLabel(chainID int64) string {
	if n, ok := id.NetworkByChainID(chainID); ok {
		return n.Label()
	}
	return fmt.Sprintf("chain %d", chainID)
}
