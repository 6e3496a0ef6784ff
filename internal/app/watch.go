package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/out"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
	"github.com/zephyra-labs/zephyra-cli/internal/wallet"
	"go.uber.org/zap"
)

type networkWatcher interface {
	WatchNetwork(ctx context.Context, interval time.Duration) error
}

type watchEvent struct {
	Kind      string                   `json:"kind"`
	Timestamp time.Time                `json:"timestamp"`
	ChainID   int64                    `json:"chain_id,omitempty"`
	Accounts  []string                 `json:"accounts,omitempty"`
	Session   *model.SessionStatus     `json:"session,omitempty"`
	Dashboard *model.DashboardSnapshot `json:"dashboard,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// acquireWatchLock keeps a single watch process per lock path.
func acquireWatchLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create lock directory", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "acquire watch lock", err)
	}
	if !locked {
		return nil, clierr.New(clierr.CodeBlocked, fmt.Sprintf("another watch process holds %s", path))
	}
	return lock, nil
}

func (s *runtimeState) newWatchCommand() *cobra.Command {
	var metricsAddr string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Hold a wallet session and stream account, network and dashboard changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lock, err := acquireWatchLock(s.settings.LockPath)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			ctx := cmd.Context()
			if metricsAddr != "" {
				stop := s.serveMetrics(metricsAddr)
				defer stop()
			}
			nav := newWatchNavigator()
			s.manager = session.NewManager(s.provider, nav, s.logger)
			return s.watch(ctx, interval, nav)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Network poll and session check interval")
	return cmd
}

const viewConnect = "connect"

// watchNavigator tracks the view the watch stream is showing. Arriving on the
// dashboard is signalled to the watch loop, which emits the snapshot.
type watchNavigator struct {
	mu      sync.Mutex
	view    string
	arrived chan struct{}
}

func newWatchNavigator() *watchNavigator {
	return &watchNavigator{view: viewConnect, arrived: make(chan struct{}, 1)}
}

func (n *watchNavigator) CurrentView() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

func (n *watchNavigator) Navigate(view string) {
	n.mu.Lock()
	n.view = view
	n.mu.Unlock()
	if view != session.ViewDashboard {
		return
	}
	select {
	case n.arrived <- struct{}{}:
	default:
	}
}

func (s *runtimeState) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	s.logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func (s *runtimeState) watch(ctx context.Context, interval time.Duration, nav *watchNavigator) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	notifications, unsubscribe := s.provider.Subscribe()
	defer unsubscribe()
	s.manager.Start(ctx)

	if _, err := s.connect(ctx); err != nil {
		return err
	}
	s.metrics.SetConnected(true)
	if err := s.emitSession(ctx, "connected", false); err != nil {
		return err
	}

	if w, ok := s.provider.(networkWatcher); ok {
		go func() {
			if err := w.WatchNetwork(ctx, interval); err != nil {
				s.logger.Warn("network watch stopped", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return s.emitEvent(watchEvent{Kind: "stopped", Timestamp: s.runner.now().UTC()})
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			s.metrics.IncNotification(string(n.Kind))
			if err := s.emitEvent(notificationEvent(n, s.runner.now().UTC())); err != nil {
				return err
			}
			pending = true
		case <-nav.arrived:
			if err := s.emitSession(ctx, "dashboard", true); err != nil {
				return err
			}
		case <-ticker.C:
			current := s.manager.Current()
			s.metrics.SetConnected(current.Connected())
			if !pending || current.Connecting {
				continue
			}
			pending = false
			if !current.Connected() {
				nav.Navigate(viewConnect)
				if err := s.emitSession(ctx, "disconnected", false); err != nil {
					return err
				}
				continue
			}
			// Still on the dashboard after a resync: refresh it in place.
			refresh := nav.CurrentView() == session.ViewDashboard
			if err := s.emitSession(ctx, "session", refresh); err != nil {
				return err
			}
		}
	}
}

func notificationEvent(n wallet.Notification, at time.Time) watchEvent {
	event := watchEvent{Kind: string(n.Kind), Timestamp: at, ChainID: n.ChainID}
	for _, account := range n.Accounts {
		event.Accounts = append(event.Accounts, account.Hex())
	}
	return event
}

// emitSession reports the manager's current session, optionally with a
// fresh dashboard snapshot.
func (s *runtimeState) emitSession(ctx context.Context, kind string, refresh bool) error {
	current := s.manager.Current()
	status := s.sessionStatus()
	status.Connected = current.Connected()
	if current.Connected() {
		status.Address = current.Address.Hex()
		status.ChainID = current.ChainID
		status.Network = current.NetworkLabel
	}
	event := watchEvent{Kind: kind, Timestamp: s.runner.now().UTC(), Session: &status}
	if refresh && current.Connected() {
		snap, err := s.snapshot(ctx, current.Address.Hex())
		if err != nil {
			event.Error = err.Error()
		} else {
			event.Dashboard = &snap
		}
	}
	return s.emitEvent(event)
}

func (s *runtimeState) emitEvent(event watchEvent) error {
	return out.RenderEvent(s.runner.stdout, event, s.settings)
}
