package nft

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxFetch    = 50
	defaultConcurrency = 8
)

type Options struct {
	MaxFetch    int
	Concurrency int
	// FromBlock bounds the mint-event replay; nil scans from genesis.
	FromBlock *big.Int
}

// Engine lists a wallet's tokens on the deployment's NFT contract. The
// enumeration capability is probed once per contract address.
type Engine struct {
	registry *registry.Registry
	resolver *Resolver
	opts     Options

	capabilities sync.Map // common.Address -> bool
}

func NewEngine(reg *registry.Registry, resolver *Resolver, opts Options) *Engine {
	if opts.MaxFetch <= 0 {
		opts.MaxFetch = DefaultMaxFetch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Engine{registry: reg, resolver: resolver, opts: opts}
}

// Strategy picks the discovery path for the contract behind nft.
func (e *Engine) Strategy(ctx context.Context, nft *registry.Handle) Strategy {
	enumerable, ok := e.capabilities.Load(nft.Address)
	if !ok {
		enumerable, _ = e.capabilities.LoadOrStore(nft.Address, ProbeEnumerable(ctx, nft))
	}
	if enumerable.(bool) {
		return NewEnumerableStrategy(nft, e.opts.MaxFetch)
	}
	return NewEventReplayStrategy(nft, e.opts.MaxFetch, e.opts.FromBlock, e.opts.Concurrency)
}

// Discover lists the tokens owner holds with their resolved metadata, in
// discovery order.
func (e *Engine) Discover(ctx context.Context, identity registry.Identity, owner common.Address) (model.NFTList, error) {
	handle, err := e.registry.Handle(registry.NameNFT, identity)
	if err != nil {
		return model.NFTList{}, err
	}
	strategy := e.Strategy(ctx, handle)
	ids, err := strategy.Discover(ctx, owner)
	if err != nil {
		return model.NFTList{}, err
	}

	records := make([]model.NFTRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, tokenID := range ids {
		g.Go(func() error {
			uri, err := handle.StringResult(gctx, "tokenURI", tokenID)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				uri = ""
			}
			records[i] = e.resolver.Resolve(gctx, tokenID, uri)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				records[i].DecodeError = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.NFTList{}, clierr.Wrap(clierr.CodeUnavailable, "fetch token metadata", err)
	}

	return model.NFTList{
		Owner:    owner.Hex(),
		Contract: handle.Address.Hex(),
		Strategy: strategy.Name(),
		Tokens:   records,
	}, nil
}
