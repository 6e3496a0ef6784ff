// Package session owns the connected-wallet session: who is signing and on
// which network.
package session

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/wallet"
	"go.uber.org/zap"
)

const ViewDashboard = "dashboard"

// Navigator is the presentation layer's view router.
type Navigator interface {
	CurrentView() string
	Navigate(view string)
}

// Session is a snapshot of the connection. Address and NetworkLabel are set
// if and only if a signer is held.
type Session struct {
	Address      common.Address `json:"address"`
	ChainID      int64          `json:"chain_id"`
	NetworkLabel string         `json:"network"`
	Connecting   bool           `json:"connecting"`

	reader registry.Reader
	signer registry.Transactor
}

// Detached builds a connected snapshot outside a Manager from an identity the
// caller already holds. A nil signer yields a read-only session.
func Detached(chainID int64, reader registry.Reader, signer registry.Transactor) Session {
	s := Session{ChainID: chainID, reader: reader}
	if signer != nil {
		s.Address = signer.Address()
		s.NetworkLabel = networkLabel(chainID)
		s.signer = signer
	}
	return s
}

func (s Session) Connected() bool { return s.signer != nil }

// Identity is the signing identity, or a read-only one when disconnected.
func (s Session) Identity() registry.Identity {
	if s.signer == nil {
		return registry.ReadOnly(s.reader)
	}
	return registry.Signing(s.reader, s.signer)
}

// ReadIdentity never carries the signer.
func (s Session) ReadIdentity() registry.Identity {
	return registry.ReadOnly(s.reader)
}

// Manager is the only writer of the session.
type Manager struct {
	provider wallet.Provider
	nav      Navigator
	logger   *zap.Logger

	connectMu sync.Mutex
	mu        sync.RWMutex
	current   Session

	startOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
}

// NewManager accepts a nil provider; Connect then fails with
// NoWalletProvider.
func NewManager(provider wallet.Provider, nav Navigator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{provider: provider, nav: nav, logger: logger}
}

func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Connect requests account access and populates the session.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	if m.provider == nil {
		return Session{}, clierr.New(clierr.CodeNoWalletProvider, "no wallet provider available")
	}
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.setConnecting(true)
	defer m.setConnecting(false)

	next, err := m.establish(ctx)
	if err != nil {
		m.logger.Warn("wallet connect failed", zap.Error(err))
		return Session{}, err
	}
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	m.logger.Info("wallet connected",
		zap.String("address", next.Address.Hex()),
		zap.Int64("chain_id", next.ChainID),
		zap.String("network", next.NetworkLabel))

	if m.nav != nil && m.nav.CurrentView() != ViewDashboard {
		m.nav.Navigate(ViewDashboard)
	}
	return next, nil
}

func (m *Manager) establish(ctx context.Context) (Session, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return Session{}, connectionError("request accounts", err)
	}
	if len(accounts) == 0 {
		return Session{}, clierr.New(clierr.CodeUserRejected, "wallet granted no accounts")
	}
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return Session{}, connectionError("read network", err)
	}
	reader, err := m.provider.Reader(ctx)
	if err != nil {
		return Session{}, connectionError("open network connection", err)
	}
	signer, err := m.provider.Signer(ctx, accounts[0])
	if err != nil {
		return Session{}, connectionError("obtain signer", err)
	}
	return Session{
		Address:      accounts[0],
		ChainID:      chainID,
		NetworkLabel: networkLabel(chainID),
		reader:       reader,
		signer:       signer,
	}, nil
}

// Disconnect clears the session. It never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	was := m.current.Address
	m.current = Session{Connecting: m.current.Connecting}
	m.mu.Unlock()
	if was != (common.Address{}) {
		m.logger.Info("wallet disconnected", zap.String("address", was.Hex()))
	}
}

// Start subscribes to provider notifications and resyncs the session on a
// single goroutine. Later calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	if m.provider == nil {
		return
	}
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		notifications, unsubscribe := m.provider.Subscribe()
		m.stop = func() {
			cancel()
			unsubscribe()
		}
		m.done = make(chan struct{})
		go func() {
			defer close(m.done)
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-notifications:
					if !ok {
						return
					}
					m.resync(ctx, n)
				}
			}
		}()
	})
}

// Close ends the subscription and waits for the consumer to exit.
func (m *Manager) Close() {
	if m.stop == nil {
		return
	}
	m.stop()
	<-m.done
}

func (m *Manager) resync(ctx context.Context, n wallet.Notification) {
	m.logger.Debug("wallet notification", zap.String("kind", string(n.Kind)), zap.Int("accounts", len(n.Accounts)), zap.Int64("chain_id", n.ChainID))
	if n.Kind == wallet.AccountsChanged && len(n.Accounts) == 0 {
		m.Disconnect()
		return
	}
	m.Disconnect()
	if _, err := m.Connect(ctx); err != nil {
		m.logger.Warn("resync failed; session left disconnected", zap.Error(err))
	}
}

func (m *Manager) setConnecting(v bool) {
	m.mu.Lock()
	m.current.Connecting = v
	m.mu.Unlock()
}

func connectionError(step string, err error) error {
	if _, ok := clierr.As(err); ok {
		return err
	}
	return clierr.Wrap(clierr.CodeConnection, step, err)
}

func networkLabel(chainID int64) string {
	if n, ok := id.NetworkByChainID(chainID); ok {
		return n.Label()
	}
	return id.Network{ChainID: chainID}.Label()
}
