package nft

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/registry/registrytest"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

type raffleFixture struct {
	*nftFixture
	zusd    *registrytest.Token
	state   uint8
	fee     *big.Int
	players []common.Address
	raffle  *Raffle
	sess    session.Session
}

func newRaffleFixture(t *testing.T) *raffleFixture {
	t.Helper()
	f := &raffleFixture{nftFixture: newNFTFixture(t, true), fee: big.NewInt(5e18)}
	f.zusd = f.chain.DeployToken(zusdAddr, 18)
	f.nft.On("getRaffleState", func(registrytest.Call) ([]any, error) { return []any{f.state}, nil })
	f.nft.On("getEntryFee", func(registrytest.Call) ([]any, error) { return []any{f.fee}, nil })
	f.nft.On("getAllPlayers", func(registrytest.Call) ([]any, error) { return []any{f.players}, nil })
	f.nft.Returns("getRecentWinner", stranger)
	f.nft.On("tryLuck", func(call registrytest.Call) ([]any, error) {
		if err := f.zusd.Spend(call.From, nftAddr, f.fee); err != nil {
			return nil, err
		}
		if call.Write {
			f.zusd.Move(call.From, nftAddr, f.fee)
			f.players = append(f.players, call.From)
		}
		return nil, nil
	})
	f.raffle = NewRaffle(execution.NewOrchestrator(f.reg))
	f.sess = session.Detached(11155111, f.chain, f.chain.Transactor(owner))
	return f
}

func TestRaffleStatus(t *testing.T) {
	f := newRaffleFixture(t)
	f.players = []common.Address{stranger}
	f.state = 1

	status, err := f.raffle.Status(context.Background(), registry.ReadOnly(f.chain))
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != "closed" || status.EntryFee != "5" || status.EntryFeeWei != "5000000000000000000" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.Players) != 1 || status.RecentWinner != stranger.Hex() {
		t.Fatalf("unexpected players/winner: %+v", status)
	}
}

func TestRaffleStatusPartialRead(t *testing.T) {
	f := newRaffleFixture(t)
	f.nft.Reverts("getAllPlayers", "boom")
	_, err := f.raffle.Status(context.Background(), registry.ReadOnly(f.chain))
	if !clierr.HasCode(err, clierr.CodePartialReadFailure) {
		t.Fatalf("expected partial read failure, got %v", err)
	}
}

func TestRaffleEnterApprovesThenEnters(t *testing.T) {
	f := newRaffleFixture(t)
	f.zusd.SetBalance(owner, big.NewInt(6e18))

	res, err := f.raffle.Enter(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	if res.ApprovalTxHash == "" {
		t.Fatal("expected an approval before entering")
	}
	sent := f.chain.Sent("")
	if len(sent) != 2 || sent[0].Method != "approve" || sent[1].Method != "tryLuck" {
		t.Fatalf("unexpected submissions: %+v", sent)
	}
	if sent[0].Args[0].(common.Address) != nftAddr {
		t.Fatalf("approval must target the NFT contract, got %s", sent[0].Args[0])
	}
	if f.zusd.Balance(owner).Cmp(big.NewInt(1e18)) != 0 {
		t.Fatalf("expected fee to be charged, balance %s", f.zusd.Balance(owner))
	}
}

func TestRaffleEnterPreconditions(t *testing.T) {
	f := newRaffleFixture(t)
	f.zusd.SetBalance(owner, big.NewInt(1e18))
	_, err := f.raffle.Enter(context.Background(), f.sess)
	if !clierr.HasCode(err, clierr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	f.zusd.SetBalance(owner, big.NewInt(9e18))
	f.players = []common.Address{owner}
	_, err = f.raffle.Enter(context.Background(), f.sess)
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected already-entered rejection, got %v", err)
	}

	f.players = nil
	f.state = 1
	_, err = f.raffle.Enter(context.Background(), f.sess)
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected closed raffle rejection, got %v", err)
	}
	if n := len(f.chain.Sent("")); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
}
