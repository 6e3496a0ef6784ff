package nft

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
	"golang.org/x/sync/errgroup"
)

type RaffleState uint8

const (
	RaffleOpen RaffleState = iota
	RaffleClosed
)

// NewRaffleState maps the contract's enum; anything but 0 is closed.
func NewRaffleState(raw uint8) RaffleState {
	if raw == 0 {
		return RaffleOpen
	}
	return RaffleClosed
}

func (s RaffleState) String() string {
	if s == RaffleOpen {
		return "open"
	}
	return "closed"
}

const feeDisplayPlaces = 6

// Raffle reads and enters the NFT contract's raffle. Entry is paid in ZUSD.
type Raffle struct {
	orch *execution.Orchestrator
}

func NewRaffle(orch *execution.Orchestrator) *Raffle {
	return &Raffle{orch: orch}
}

type raffleReads struct {
	state   uint8
	fee     *big.Int
	players []common.Address
	winner  common.Address
}

func (r *Raffle) read(ctx context.Context, nft *registry.Handle) (raffleReads, error) {
	var out raffleReads
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.state, err = nft.Uint8(gctx, "getRaffleState")
		return err
	})
	g.Go(func() (err error) {
		out.fee, err = nft.BigInt(gctx, "getEntryFee")
		return err
	})
	g.Go(func() (err error) {
		out.players, err = nft.Addresses(gctx, "getAllPlayers")
		return err
	})
	g.Go(func() (err error) {
		out.winner, err = nft.AddressResult(gctx, "getRecentWinner")
		return err
	})
	if err := g.Wait(); err != nil {
		return raffleReads{}, clierr.Wrap(clierr.CodePartialReadFailure, "read raffle state", err)
	}
	return out, nil
}

func (r *Raffle) Status(ctx context.Context, identity registry.Identity) (model.RaffleStatus, error) {
	nft, err := r.orch.Registry().Handle(registry.NameNFT, identity)
	if err != nil {
		return model.RaffleStatus{}, err
	}
	reads, err := r.read(ctx, nft)
	if err != nil {
		return model.RaffleStatus{}, err
	}
	status := model.RaffleStatus{
		State:       NewRaffleState(reads.state).String(),
		EntryFee:    id.FormatUnits(reads.fee, id.StablecoinDecimals, feeDisplayPlaces),
		EntryFeeWei: reads.fee.String(),
		Players:     make([]string, 0, len(reads.players)),
	}
	for _, p := range reads.players {
		status.Players = append(status.Players, p.Hex())
	}
	if reads.winner != (common.Address{}) {
		status.RecentWinner = reads.winner.Hex()
	}
	return status, nil
}

// Enter pays the entry fee in ZUSD and calls tryLuck. The raffle must be
// open, the caller not yet a player, and the ZUSD balance must cover the fee.
func (r *Raffle) Enter(ctx context.Context, sess session.Session) (execution.Result, error) {
	if err := execution.CheckSession(sess, r.orch.Registry()); err != nil {
		return execution.Result{}, err
	}
	identity := sess.Identity()
	nft, err := r.orch.Registry().Handle(registry.NameNFT, identity)
	if err != nil {
		return execution.Result{}, err
	}
	zusd, err := r.orch.Registry().Handle(registry.NameZUSD, identity)
	if err != nil {
		return execution.Result{}, err
	}
	reads, err := r.read(ctx, nft)
	if err != nil {
		return execution.Result{}, err
	}
	if NewRaffleState(reads.state) != RaffleOpen {
		return execution.Result{}, clierr.New(clierr.CodePreconditionFailed, "the raffle is closed")
	}
	for _, p := range reads.players {
		if p == sess.Address {
			return execution.Result{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s already entered the raffle", sess.Address.Hex()))
		}
	}
	balance, err := zusd.BigInt(ctx, "balanceOf", sess.Address)
	if err != nil {
		return execution.Result{}, err
	}
	if balance.Cmp(reads.fee) < 0 {
		return execution.Result{}, clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf(
			"entry fee is %s ZUSD but the wallet holds %s",
			id.FormatUnits(reads.fee, id.StablecoinDecimals, feeDisplayPlaces),
			id.FormatUnits(balance, id.StablecoinDecimals, feeDisplayPlaces)))
	}
	plan := execution.Plan{
		Action: "raffle-enter",
		Call:   execution.Call{Handle: nft, Method: "tryLuck"},
	}
	if reads.fee.Sign() > 0 {
		plan.Spend = &execution.Spend{Token: zusd, Owner: sess.Address, Spender: nft.Address, Amount: reads.fee}
	}
	return r.orch.Run(ctx, plan)
}
