package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
)

// Reader is a read-only network connection. *ethclient.Client satisfies it.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Transactor is a signing identity able to submit and confirm transactions.
type Transactor interface {
	Address() common.Address
	Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Identity is the caller a handle acts as: a read-only connection, or a
// connection plus the session's signer.
type Identity struct {
	Reader Reader
	Signer Transactor
}

func ReadOnly(r Reader) Identity { return Identity{Reader: r} }

func Signing(r Reader, t Transactor) Identity { return Identity{Reader: r, Signer: t} }

func (i Identity) CanSign() bool { return i.Signer != nil }

// Registry resolves logical contract names for one deployment.
type Registry struct {
	deployment Deployment
}

func New(d Deployment) *Registry {
	return &Registry{deployment: d}
}

func (r *Registry) Deployment() Deployment { return r.deployment }

func (r *Registry) ChainID() int64 { return r.deployment.Network.ChainID }

// Address resolves a logical name without building a handle.
func (r *Registry) Address(name string) (common.Address, error) {
	addr, ok := r.deployment.Contracts[name]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeMissingAddress, fmt.Sprintf("no %s address configured for %s", name, r.deployment.Network.Label()))
	}
	return addr, nil
}

// Handle builds a fresh handle every call; handles are never shared across
// identities.
func (r *Registry) Handle(name string, identity Identity) (*Handle, error) {
	addr, err := r.Address(name)
	if err != nil {
		return nil, err
	}
	schema, ok := ContractABI(name)
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("no interface schema for %s", name))
	}
	if identity.Reader == nil {
		return nil, clierr.New(clierr.CodePreconditionFailed, "no network connection")
	}
	return &Handle{Name: name, Address: addr, abi: schema, identity: identity}, nil
}

// TokenHandle builds an ERC20 handle for an arbitrary token address.
func (r *Registry) TokenHandle(symbol string, addr common.Address, identity Identity) (*Handle, error) {
	if addr == (common.Address{}) {
		return nil, clierr.New(clierr.CodeMissingAddress, fmt.Sprintf("no %s token address configured", symbol))
	}
	if identity.Reader == nil {
		return nil, clierr.New(clierr.CodePreconditionFailed, "no network connection")
	}
	return &Handle{Name: symbol, Address: addr, abi: erc20ABI, identity: identity}, nil
}

type Handle struct {
	Name     string
	Address  common.Address
	abi      abi.ABI
	identity Identity
}

func (h *Handle) ABI() abi.ABI { return h.abi }

func (h *Handle) Pack(method string, args ...any) ([]byte, error) {
	data, err := h.abi.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s.%s", h.Name, method), err)
	}
	return data, nil
}

// Call runs a view method and returns its decoded outputs.
func (h *Handle) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	var from common.Address
	if h.identity.Signer != nil {
		from = h.identity.Signer.Address()
	}
	return h.CallAs(ctx, from, nil, method, args...)
}

// CallAs simulates a method from an explicit sender and value, which lets
// callers preview the return value of a state-changing call.
func (h *Handle) CallAs(ctx context.Context, from common.Address, value *big.Int, method string, args ...any) ([]any, error) {
	data, err := h.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := h.Address
	raw, err := h.identity.Reader.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s.%s", h.Name, method), err)
	}
	outputs, err := h.abi.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s.%s", h.Name, method), err)
	}
	return outputs, nil
}

// Transact submits a state-changing call with the signing identity.
func (h *Handle) Transact(ctx context.Context, value *big.Int, method string, args ...any) (common.Hash, error) {
	if h.identity.Signer == nil {
		return common.Hash{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s.%s requires a connected wallet", h.Name, method))
	}
	data, err := h.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		value = new(big.Int)
	}
	return h.identity.Signer.Send(ctx, h.Address, value, data)
}

// Wait blocks until the transaction is mined and fails on a reverted receipt.
func (h *Handle) Wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if h.identity.Signer == nil {
		return nil, clierr.New(clierr.CodePreconditionFailed, "waiting for a receipt requires a connected wallet")
	}
	receipt, err := h.identity.Signer.WaitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted on-chain", hash.Hex())
	}
	return receipt, nil
}

// FilterEvents returns logs of the named event emitted by this contract.
// Each entry of topics filters one indexed argument; nil matches anything.
func (h *Handle) FilterEvents(ctx context.Context, event string, fromBlock *big.Int, topics ...[]any) ([]types.Log, error) {
	ev, ok := h.abi.Events[event]
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("%s has no %s event", h.Name, event))
	}
	indexed, err := abi.MakeTopics(topics...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("encode %s topics", event), err)
	}
	query := ethereum.FilterQuery{
		FromBlock: fromBlock,
		Addresses: []common.Address{h.Address},
		Topics:    append([][]common.Hash{{ev.ID}}, indexed...),
	}
	logs, err := h.identity.Reader.FilterLogs(ctx, query)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("filter %s.%s logs", h.Name, event), err)
	}
	return logs, nil
}

// BigInt calls a method returning a single uint256.
func (h *Handle) BigInt(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := firstOutput[*big.Int](out)
	if !ok {
		return nil, h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) AddressResult(ctx context.Context, method string, args ...any) (common.Address, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := firstOutput[common.Address](out)
	if !ok {
		return common.Address{}, h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) Addresses(ctx context.Context, method string, args ...any) ([]common.Address, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := firstOutput[[]common.Address](out)
	if !ok {
		return nil, h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) Bool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	v, ok := firstOutput[bool](out)
	if !ok {
		return false, h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) StringResult(ctx context.Context, method string, args ...any) (string, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	v, ok := firstOutput[string](out)
	if !ok {
		return "", h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) Uint8(ctx context.Context, method string, args ...any) (uint8, error) {
	out, err := h.Call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := firstOutput[uint8](out)
	if !ok {
		return 0, h.shapeError(method)
	}
	return v, nil
}

func (h *Handle) shapeError(method string) error {
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s.%s result shape", h.Name, method))
}

func firstOutput[T any](out []any) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}
