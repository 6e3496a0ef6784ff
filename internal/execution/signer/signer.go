package signer

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoKey means no key source yielded key material. Callers treat it as "no
// wallet present" rather than a broken wallet.
var ErrNoKey = errors.New("no signing key configured")

type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}
