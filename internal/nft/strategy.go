// Package nft discovers the tokens a wallet owns on the protocol NFT
// contract and resolves their metadata.
package nft

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"golang.org/x/sync/errgroup"
)

// EnumerableInterfaceID is the ERC-721 Enumerable ERC-165 identifier.
var EnumerableInterfaceID = [4]byte{0x78, 0x0e, 0x9d, 0x63}

const (
	StrategyEnumerable  = "enumerable"
	StrategyEventReplay = "event-replay"
)

// Strategy lists the token ids owner currently holds, at most maxFetch.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, owner common.Address) ([]*big.Int, error)
}

// ProbeEnumerable reports whether the contract advertises enumeration. A
// failing probe counts as "not supported".
func ProbeEnumerable(ctx context.Context, nft *registry.Handle) bool {
	ok, err := nft.Bool(ctx, "supportsInterface", EnumerableInterfaceID)
	return err == nil && ok
}

type EnumerableStrategy struct {
	nft      *registry.Handle
	maxFetch int
}

func NewEnumerableStrategy(nft *registry.Handle, maxFetch int) *EnumerableStrategy {
	return &EnumerableStrategy{nft: nft, maxFetch: maxFetch}
}

func (s *EnumerableStrategy) Name() string { return StrategyEnumerable }

func (s *EnumerableStrategy) Discover(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	balance, err := s.nft.BigInt(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	n := s.maxFetch
	if balance.IsInt64() && balance.Int64() < int64(n) {
		n = int(balance.Int64())
	}
	ids := make([]*big.Int, 0, n)
	for i := 0; i < n; i++ {
		tokenID, err := s.nft.BigInt(ctx, "tokenOfOwnerByIndex", owner, big.NewInt(int64(i)))
		if err != nil {
			return nil, err
		}
		ids = append(ids, tokenID)
	}
	return ids, nil
}

// EventReplayStrategy replays mints to owner and keeps only tokens ownerOf
// still attributes to owner.
type EventReplayStrategy struct {
	nft         *registry.Handle
	maxFetch    int
	fromBlock   *big.Int
	concurrency int
}

func NewEventReplayStrategy(nft *registry.Handle, maxFetch int, fromBlock *big.Int, concurrency int) *EventReplayStrategy {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &EventReplayStrategy{nft: nft, maxFetch: maxFetch, fromBlock: fromBlock, concurrency: concurrency}
}

func (s *EventReplayStrategy) Name() string { return StrategyEventReplay }

func (s *EventReplayStrategy) Discover(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	logs, err := s.nft.FilterEvents(ctx, "Transfer", s.fromBlock, []any{common.Address{}}, []any{owner})
	if err != nil {
		return nil, err
	}
	seen := map[common.Hash]bool{}
	candidates := []*big.Int{}
	for _, l := range logs {
		if len(l.Topics) < 4 || l.Removed {
			continue
		}
		if seen[l.Topics[3]] {
			continue
		}
		seen[l.Topics[3]] = true
		candidates = append(candidates, l.Topics[3].Big())
	}

	// Verify newest mints first, one batch at a time, until maxFetch owned
	// tokens are kept.
	keep := []int{}
	for end := len(candidates); end > 0 && len(keep) < s.maxFetch; {
		start := end - s.concurrency
		if start < 0 {
			start = 0
		}
		owned, err := s.verify(ctx, owner, candidates[start:end])
		if err != nil {
			return nil, err
		}
		for i := len(owned) - 1; i >= 0 && len(keep) < s.maxFetch; i-- {
			if owned[i] {
				keep = append(keep, start+i)
			}
		}
		end = start
	}
	sort.Ints(keep)
	out := make([]*big.Int, 0, len(keep))
	for _, i := range keep {
		out = append(out, candidates[i])
	}
	return out, nil
}

func (s *EventReplayStrategy) verify(ctx context.Context, owner common.Address, batch []*big.Int) ([]bool, error) {
	owned := make([]bool, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, tokenID := range batch {
		g.Go(func() error {
			current, err := s.nft.AddressResult(gctx, "ownerOf", tokenID)
			if err != nil {
				if isRevert(err) {
					return nil
				}
				return err
			}
			owned[i] = current == owner
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "verify token ownership", err)
	}
	return owned, nil
}

// isRevert separates "token does not exist" from transport failures.
func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(fmt.Sprint(err)), "revert")
}
