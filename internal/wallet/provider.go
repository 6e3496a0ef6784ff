// Package wallet is the boundary to the user's wallet: account access,
// network identity, transaction signing and change notifications.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
)

type NotificationKind string

const (
	AccountsChanged NotificationKind = "accounts_changed"
	ChainChanged    NotificationKind = "chain_changed"
)

// Notification is an account or network change pushed by the provider. An
// AccountsChanged notification with no accounts means access was revoked.
type Notification struct {
	Kind     NotificationKind
	Accounts []common.Address
	ChainID  int64
}

// Provider is an external wallet. Implementations must be safe for concurrent
// use.
type Provider interface {
	// RequestAccounts asks the user for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	// Signer returns the signing identity for an account previously granted by
	// RequestAccounts.
	Signer(ctx context.Context, account common.Address) (registry.Transactor, error)
	Reader(ctx context.Context) (registry.Reader, error)
	// Subscribe returns a notification stream and a func that ends it.
	Subscribe() (<-chan Notification, func())
}
