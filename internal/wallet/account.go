package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/execution/signer"
)

// Backend is the JSON-RPC surface the wallet needs. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type TxOptions struct {
	GasMultiplier      float64
	PollInterval       time.Duration
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultTxOptions() TxOptions {
	return TxOptions{GasMultiplier: 1.2, PollInterval: 2 * time.Second}
}

// TxRequest is what the user is asked to sign.
type TxRequest struct {
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte
	ChainID *big.Int
	Gas     uint64
}

// Prompt asks the user to approve a connection or a transaction. Returning
// false means the user declined.
type Prompt func(ctx context.Context, summary string) (bool, error)

// Account is a signing identity backed by a local key and an RPC connection.
type Account struct {
	backend Backend
	signer  signer.Signer
	opts    TxOptions
	prompt  Prompt
}

func NewAccount(backend Backend, s signer.Signer, opts TxOptions, prompt Prompt) *Account {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Account{backend: backend, signer: s, opts: opts, prompt: prompt}
}

func (a *Account) Address() common.Address { return a.signer.Address() }

// Send simulates, prices, signs and broadcasts a transaction. It returns once
// the node accepted it; confirmation is WaitMined's job.
func (a *Account) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}
	chainID, err := a.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeConnection, "read chain id", err)
	}
	from := a.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	if _, err := a.backend.CallContract(ctx, msg, nil); err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeTransactionFailed, "simulate transaction (eth_call)", err)
	}
	gasLimit, err := a.backend.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeTransactionFailed, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * a.opts.GasMultiplier)

	if a.prompt != nil {
		ok, err := a.prompt(ctx, describeTx(TxRequest{From: from, To: to, Value: value, Data: data, ChainID: chainID, Gas: gasLimit}))
		if err != nil {
			return common.Hash{}, clierr.Wrap(clierr.CodeUserRejected, "confirm transaction", err)
		}
		if !ok {
			return common.Hash{}, clierr.New(clierr.CodeUserRejected, "transaction declined")
		}
	}

	tipCap, err := a.tipCap(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	header, err := a.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeConnection, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, a.opts.MaxFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}

	unlock := acquireSignerNonceLock(chainID, from)
	defer unlock()
	nonce, err := a.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeConnection, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := a.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeInternal, "sign transaction", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeTransactionFailed, "broadcast transaction", err)
	}
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it exists or ctx is done. There is no
// built-in deadline.
func (a *Account) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, clierr.Wrap(clierr.CodeTransactionFailed, "stopped waiting for receipt", ctx.Err())
		}
		// NotFound means pending; other polling errors are treated as transient.
		select {
		case <-ctx.Done():
			return nil, clierr.Wrap(clierr.CodeTransactionFailed, "stopped waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Account) tipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(a.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(a.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := a.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tipCap), nil
}

func parseGwei(v string) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(strings.TrimSpace(v))
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func describeTx(req TxRequest) string {
	selector := "0x"
	if len(req.Data) >= 4 {
		selector = "0x" + common.Bytes2Hex(req.Data[:4])
	}
	return fmt.Sprintf("send tx from %s to %s (selector %s, value %s wei, gas %d, chain %s)",
		req.From.Hex(), req.To.Hex(), selector, req.Value, req.Gas, req.ChainID)
}

var (
	nonceLocksMu sync.Mutex
	nonceLocks   = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock serializes nonce read + broadcast per (chain, signer).
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(addr.Hex())
	nonceLocksMu.Lock()
	mu, ok := nonceLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		nonceLocks[key] = mu
	}
	nonceLocksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}
)

func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: reverted: %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}

type dataError interface {
	ErrorData() interface{}
}

func decodeRevertFromError(err error) string {
	var de dataError
	if !errors.As(err, &de) {
		return ""
	}
	switch data := de.ErrorData().(type) {
	case string:
		return decodeRevertData(common.FromHex(data))
	case []byte:
		return decodeRevertData(data)
	default:
		return ""
	}
}

func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	selector, payload := data[:4], data[4:]
	switch {
	case string(selector) == string(errorStringSelector):
		out, err := revertStringArgs.Unpack(payload)
		if err != nil || len(out) == 0 {
			return ""
		}
		reason, _ := out[0].(string)
		return reason
	case string(selector) == string(panicSelector):
		out, err := revertPanicArgs.Unpack(payload)
		if err != nil || len(out) == 0 {
			return "panic"
		}
		code, _ := out[0].(*big.Int)
		return fmt.Sprintf("panic code 0x%x", code)
	default:
		return fmt.Sprintf("custom error 0x%x", selector)
	}
}

var (
	revertStringArgs = mustArgs("string")
	revertPanicArgs  = mustArgs("uint256")
)

func mustArgs(typ string) abi.Arguments {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}
