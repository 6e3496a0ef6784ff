package bridge

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/registry/registrytest"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

var (
	user       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	receiver   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	zusdAddr   = common.HexToAddress("0x0000000000000000000000000000000000000101")
	routerAddr = common.HexToAddress("0x0000000000000000000000000000000000000106")
	messageID  = common.HexToHash("0x5eed00000000000000000000000000000000000000000000000000000000beef")
)

type fixture struct {
	chain     *registrytest.Chain
	zusd      *registrytest.Token
	router    *registrytest.Contract
	fee       *big.Int
	feeCalls  int
	feeBump   bool
	messages  []Message
	coord     *Coordinator
	sess      session.Session
	supported bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	network, err := id.ParseNetwork("sepolia")
	if err != nil {
		t.Fatalf("ParseNetwork: %v", err)
	}
	d, err := registry.DefaultDeployment(network).WithOverrides(map[string]string{
		"zusd":   zusdAddr.Hex(),
		"router": routerAddr.Hex(),
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	f := &fixture{chain: registrytest.NewChain(), fee: big.NewInt(3_000_000_000_000_000), supported: true}
	f.zusd = f.chain.DeployToken(zusdAddr, 18)
	f.router = f.chain.Deploy(routerAddr, registry.CCIPRouterABI)
	f.router.On("isChainSupported", func(registrytest.Call) ([]any, error) { return []any{f.supported}, nil })
	f.router.On("getFee", func(registrytest.Call) ([]any, error) {
		f.feeCalls++
		if f.feeBump && f.feeCalls > 1 {
			return []any{new(big.Int).Add(f.fee, big.NewInt(1))}, nil
		}
		return []any{f.fee}, nil
	})
	f.router.On("ccipSend", func(call registrytest.Call) ([]any, error) {
		if call.Value.Cmp(f.fee) < 0 {
			return nil, errors.New("execution reverted: InsufficientFeeTokenAmount")
		}
		msg := *abi.ConvertType(call.Args[1], new(Message)).(*Message)
		amount := msg.TokenAmounts[0].Amount
		if err := f.zusd.Spend(call.From, routerAddr, amount); err != nil {
			return nil, err
		}
		if call.Write {
			f.zusd.Move(call.From, routerAddr, amount)
			f.messages = append(f.messages, msg)
		}
		return []any{[32]byte(messageID)}, nil
	})
	f.coord = NewCoordinator(execution.NewOrchestrator(registry.New(d)), 0)
	f.sess = session.Detached(11155111, f.chain, f.chain.Transactor(user))
	return f
}

func (f *fixture) request(amount string) Request {
	return Request{Destination: "fuji", Receiver: receiver.Hex(), Amount: amount}
}

func TestEncodeExtraArgs(t *testing.T) {
	extra, err := EncodeExtraArgs(DefaultGasLimit)
	if err != nil {
		t.Fatalf("EncodeExtraArgs: %v", err)
	}
	if len(extra) != 36 {
		t.Fatalf("expected tag plus one word, got %d bytes", len(extra))
	}
	if got := hexutil.Encode(extra[:4]); got != "0x97a657c9" {
		t.Fatalf("unexpected tag %s", got)
	}
	if new(big.Int).SetBytes(extra[4:]).Uint64() != 200_000 {
		t.Fatalf("unexpected gas limit word %x", extra[4:])
	}
}

func TestSendApprovesThenPaysExactFee(t *testing.T) {
	f := newFixture(t)
	f.zusd.SetBalance(user, big.NewInt(9e18))

	transfer, err := f.coord.Send(context.Background(), f.sess, f.request("2.5"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := f.chain.Sent("")
	if len(sent) != 2 || sent[0].Method != "approve" || sent[1].Method != "ccipSend" {
		t.Fatalf("unexpected submissions: %+v", sent)
	}
	if sent[0].Args[0].(common.Address) != routerAddr {
		t.Fatalf("approval must target the router, got %s", sent[0].Args[0])
	}
	if sent[1].Value.Cmp(f.fee) != 0 {
		t.Fatalf("expected value %s, got %s", f.fee, sent[1].Value)
	}
	if sent[1].Args[0].(uint64) != 14767482510784806043 {
		t.Fatalf("unexpected destination selector %v", sent[1].Args[0])
	}

	if len(f.messages) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(f.messages))
	}
	msg := f.messages[0]
	if common.BytesToAddress(msg.Receiver) != receiver || len(msg.Receiver) != 32 {
		t.Fatalf("receiver must be abi-encoded, got %x", msg.Receiver)
	}
	if msg.FeeToken != (common.Address{}) {
		t.Fatalf("expected native fee token, got %s", msg.FeeToken)
	}
	if msg.TokenAmounts[0].Token != zusdAddr || msg.TokenAmounts[0].Amount.String() != "2500000000000000000" {
		t.Fatalf("unexpected token amounts: %+v", msg.TokenAmounts)
	}

	if transfer.MessageID != messageID.Hex() {
		t.Fatalf("expected message id %s, got %s", messageID.Hex(), transfer.MessageID)
	}
	if !strings.HasSuffix(transfer.ExplorerURL, "/msg/"+messageID.Hex()) {
		t.Fatalf("unexpected explorer url %s", transfer.ExplorerURL)
	}
	if transfer.ApprovalTxHash == "" || transfer.Quote.FeeWei != f.fee.String() {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}
}

func TestSubmitQuotedRejectsPaymentBelowFee(t *testing.T) {
	f := newFixture(t)
	f.zusd.SetBalance(user, big.NewInt(9e18))

	short := new(big.Int).Sub(f.fee, big.NewInt(1))
	_, err := f.coord.SubmitQuoted(context.Background(), f.sess, f.request("1"), short)
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if n := len(f.chain.Sent("")); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
}

func TestSendInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.zusd.SetBalance(user, big.NewInt(1e18))

	_, err := f.coord.Send(context.Background(), f.sess, f.request("2"))
	if !clierr.HasCode(err, clierr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if n := len(f.chain.Sent("")); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
}

func TestSendFeeChangeAfterApproval(t *testing.T) {
	f := newFixture(t)
	f.zusd.SetBalance(user, big.NewInt(9e18))
	f.feeBump = true

	_, err := f.coord.Send(context.Background(), f.sess, f.request("1"))
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeTransactionFailed || typed.Stage != clierr.StageAction {
		t.Fatalf("expected action-stage failure, got %v", err)
	}
	if len(f.chain.Sent("approve")) != 1 || len(f.chain.Sent("ccipSend")) != 0 {
		t.Fatalf("expected approval only, got %+v", f.chain.Sent(""))
	}
}

func TestQuoteValidation(t *testing.T) {
	f := newFixture(t)
	ro := registry.ReadOnly(f.chain)

	_, err := f.coord.Quote(context.Background(), ro, Request{Destination: "sepolia", Receiver: receiver.Hex(), Amount: "1"})
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected same-chain rejection, got %v", err)
	}
	_, err = f.coord.Quote(context.Background(), ro, Request{Destination: "fuji", Receiver: "0x123", Amount: "1"})
	if !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected receiver rejection, got %v", err)
	}

	f.supported = false
	_, err = f.coord.Quote(context.Background(), ro, f.request("1"))
	if !clierr.HasCode(err, clierr.CodeMissingCapability) {
		t.Fatalf("expected missing capability, got %v", err)
	}

	f.supported = true
	quote, err := f.coord.Quote(context.Background(), ro, Request{Destination: "base-sepolia", Receiver: receiver.Hex(), Amount: "1.5", GasLimit: 300_000})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.DestinationSelector != "10344971235874465080" || quote.GasLimit != 300_000 || quote.Fee != "0.003" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestChainsListsDestinations(t *testing.T) {
	chains := Chains()
	if len(chains) != 3 {
		t.Fatalf("expected 3 destinations, got %d", len(chains))
	}
}

func TestMustTypePanicsOnUnknownType(t *testing.T) {
	if got := mustType("uint256"); got.T != abi.UintTy || got.Size != 256 {
		t.Fatalf("unexpected type %v", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unknown abi type")
		}
	}()
	mustType("notatype")
}
