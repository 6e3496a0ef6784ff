// Package bridge moves ZUSD to another chain through the CCIP router: fee
// quote, router allowance, then a native-fee ccipSend.
package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

// DefaultGasLimit is the destination execution budget for a token-only message.
const DefaultGasLimit uint64 = 200_000

// evmExtraArgsV1Tag is bytes4(keccak256("CCIP EVMExtraArgsV1")).
var evmExtraArgsV1Tag = []byte{0x97, 0xa6, 0x57, 0xc9}

var (
	uint256Type = mustType("uint256")
	addressType = mustType("address")
)

func mustType(typ string) abi.Type {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// Message mirrors Client.EVM2AnyMessage.
type Message struct {
	Receiver     []byte
	Data         []byte
	TokenAmounts []TokenAmount
	FeeToken     common.Address
	ExtraArgs    []byte
}

// EncodeExtraArgs builds EVMExtraArgsV1{gasLimit}.
func EncodeExtraArgs(gasLimit uint64) ([]byte, error) {
	packed, err := abi.Arguments{{Type: uint256Type}}.Pack(new(big.Int).SetUint64(gasLimit))
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, evmExtraArgsV1Tag...), packed...), nil
}

// NewMessage builds a token transfer paid in the source chain's native coin.
func NewMessage(receiver, token common.Address, amount *big.Int, gasLimit uint64) (Message, error) {
	encodedReceiver, err := abi.Arguments{{Type: addressType}}.Pack(receiver)
	if err != nil {
		return Message{}, err
	}
	extra, err := EncodeExtraArgs(gasLimit)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Receiver:     encodedReceiver,
		Data:         []byte{},
		TokenAmounts: []TokenAmount{{Token: token, Amount: amount}},
		ExtraArgs:    extra,
	}, nil
}

type Request struct {
	Destination string
	Receiver    string
	Amount      string
	// GasLimit overrides the coordinator default when non-zero.
	GasLimit uint64
}

type Coordinator struct {
	orch     *execution.Orchestrator
	gasLimit uint64
}

func NewCoordinator(orch *execution.Orchestrator, gasLimit uint64) *Coordinator {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &Coordinator{orch: orch, gasLimit: gasLimit}
}

// Chains lists the supported destinations.
func Chains() []model.ChainInfo {
	out := []model.ChainInfo{}
	for _, n := range id.BridgeDestinations() {
		out = append(out, model.ChainInfo{
			Name:     n.Name,
			Slug:     n.Slug,
			ChainID:  n.ChainID,
			Selector: strconv.FormatUint(n.CCIPSelector, 10),
		})
	}
	return out
}

type prepared struct {
	destination id.Network
	receiver    common.Address
	amount      *big.Int
	gasLimit    uint64
	router      *registry.Handle
	zusd        *registry.Handle
	message     Message
}

func (c *Coordinator) prepare(identity registry.Identity, req Request) (prepared, error) {
	reg := c.orch.Registry()
	destination, err := id.ParseDestination(req.Destination)
	if err != nil {
		return prepared{}, err
	}
	if destination.ChainID == reg.ChainID() {
		return prepared{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("destination %s is the source chain", destination.Label()))
	}
	receiver, err := id.ParseAddress("receiver", req.Receiver)
	if err != nil {
		return prepared{}, err
	}
	if err := execution.RequireAddress("receiver", receiver); err != nil {
		return prepared{}, err
	}
	amount, err := id.ParsePositiveAmount("amount", req.Amount, id.StablecoinDecimals)
	if err != nil {
		return prepared{}, err
	}
	router, err := reg.Handle(registry.NameRouter, identity)
	if err != nil {
		return prepared{}, err
	}
	zusd, err := reg.Handle(registry.NameZUSD, identity)
	if err != nil {
		return prepared{}, err
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = c.gasLimit
	}
	msg, err := NewMessage(receiver, zusd.Address, amount, gasLimit)
	if err != nil {
		return prepared{}, clierr.Wrap(clierr.CodeInternal, "encode cross-chain message", err)
	}
	return prepared{
		destination: destination,
		receiver:    receiver,
		amount:      amount,
		gasLimit:    gasLimit,
		router:      router,
		zusd:        zusd,
		message:     msg,
	}, nil
}

func (c *Coordinator) fee(ctx context.Context, p prepared) (*big.Int, error) {
	supported, err := p.router.Bool(ctx, "isChainSupported", p.destination.CCIPSelector)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, clierr.New(clierr.CodeMissingCapability, fmt.Sprintf("router does not support %s", p.destination.Label()))
	}
	fee, err := p.router.BigInt(ctx, "getFee", p.destination.CCIPSelector, p.message)
	if err != nil {
		return nil, err
	}
	return fee, nil
}

func (p prepared) quote(fee *big.Int) model.BridgeQuote {
	return model.BridgeQuote{
		Destination:         p.destination.Name,
		DestinationSelector: strconv.FormatUint(p.destination.CCIPSelector, 10),
		Receiver:            p.receiver.Hex(),
		Amount:              id.FormatUnits(p.amount, id.StablecoinDecimals, -1),
		AmountBaseUnits:     p.amount.String(),
		GasLimit:            p.gasLimit,
		FeeWei:              fee.String(),
		Fee:                 id.FormatUnits(fee, 18, -1),
	}
}

// Quote returns the native fee for the exact envelope Send would submit.
func (c *Coordinator) Quote(ctx context.Context, identity registry.Identity, req Request) (model.BridgeQuote, error) {
	p, err := c.prepare(identity, req)
	if err != nil {
		return model.BridgeQuote{}, err
	}
	fee, err := c.fee(ctx, p)
	if err != nil {
		return model.BridgeQuote{}, err
	}
	return p.quote(fee), nil
}

// Send quotes and submits, paying exactly the quoted fee.
func (c *Coordinator) Send(ctx context.Context, sess session.Session, req Request) (model.BridgeTransfer, error) {
	return c.SubmitQuoted(ctx, sess, req, nil)
}

// SubmitQuoted submits with an explicit payment. A payment that differs from
// the current quote is rejected before any transaction; nil pays the quote.
func (c *Coordinator) SubmitQuoted(ctx context.Context, sess session.Session, req Request, payment *big.Int) (model.BridgeTransfer, error) {
	if err := execution.CheckSession(sess, c.orch.Registry()); err != nil {
		return model.BridgeTransfer{}, err
	}
	p, err := c.prepare(sess.Identity(), req)
	if err != nil {
		return model.BridgeTransfer{}, err
	}
	balance, err := p.zusd.BigInt(ctx, "balanceOf", sess.Address)
	if err != nil {
		return model.BridgeTransfer{}, err
	}
	if balance.Cmp(p.amount) < 0 {
		return model.BridgeTransfer{}, clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf(
			"cannot bridge %s ZUSD with a balance of %s",
			id.FormatUnits(p.amount, id.StablecoinDecimals, -1),
			id.FormatUnits(balance, id.StablecoinDecimals, -1)))
	}
	quoted, err := c.fee(ctx, p)
	if err != nil {
		return model.BridgeTransfer{}, err
	}
	if payment == nil {
		payment = quoted
	}
	if payment.Cmp(quoted) != 0 {
		return model.BridgeTransfer{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf(
			"payment of %s wei does not match the quoted fee of %s wei", payment, quoted))
	}

	var messageID common.Hash
	result, err := c.orch.Run(ctx, execution.Plan{
		Action: "bridge",
		Spend:  &execution.Spend{Token: p.zusd, Owner: sess.Address, Spender: p.router.Address, Amount: p.amount},
		Call: execution.Call{
			Handle: p.router,
			Method: "ccipSend",
			Args:   []any{p.destination.CCIPSelector, p.message},
		},
		BeforeCall: func(ctx context.Context, call *execution.Call) error {
			// The fee can move while an approval is mining.
			fee, err := c.fee(ctx, p)
			if err != nil {
				return err
			}
			if fee.Cmp(payment) != 0 {
				return clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("fee changed from %s to %s wei; quote again", payment, fee))
			}
			call.Value = new(big.Int).Set(fee)
			out, err := p.router.CallAs(ctx, sess.Address, call.Value, "ccipSend", call.Args...)
			if err != nil {
				return err
			}
			if len(out) > 0 {
				if raw, ok := out[0].([32]byte); ok {
					messageID = common.Hash(raw)
				}
			}
			return nil
		},
	})
	if err != nil {
		return model.BridgeTransfer{}, err
	}

	transfer := model.BridgeTransfer{
		Quote:          p.quote(payment),
		OperationID:    result.OperationID,
		ApprovalTxHash: result.ApprovalTxHash,
		TxHash:         result.TxHash,
		ExplorerURL:    registry.CCIPTxURL(result.TxHash),
	}
	if messageID != (common.Hash{}) {
		transfer.MessageID = hexutil.Encode(messageID[:])
		transfer.ExplorerURL = registry.CCIPMessageURL(transfer.MessageID)
	}
	return transfer, nil
}
