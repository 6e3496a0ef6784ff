// Package registrytest provides an in-memory contract backend that dispatches
// eth_call and submitted transactions to Go handlers by ABI selector.
package registrytest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is the decoded invocation passed to a handler.
type Call struct {
	From  common.Address
	Value *big.Int
	Args  []any
	// Write is true when the invocation comes from a submitted transaction.
	Write bool
}

// Method handles one contract method. Returning an error reverts the call.
type Method func(call Call) ([]any, error)

type Contract struct {
	Address common.Address
	ABI     abi.ABI
	methods map[string]Method
}

// On registers a handler for a method.
func (c *Contract) On(method string, fn Method) *Contract {
	if _, ok := c.ABI.Methods[method]; !ok {
		panic(fmt.Sprintf("registrytest: %s has no method %s", c.Address.Hex(), method))
	}
	c.methods[method] = fn
	return c
}

// Returns registers a handler that always returns the same values.
func (c *Contract) Returns(method string, values ...any) *Contract {
	return c.On(method, func(Call) ([]any, error) { return values, nil })
}

// Reverts registers a handler that always fails.
func (c *Contract) Reverts(method string, reason string) *Contract {
	return c.On(method, func(Call) ([]any, error) { return nil, fmt.Errorf("execution reverted: %s", reason) })
}

type CallRecord struct {
	To     common.Address
	From   common.Address
	Method string
}

type SentTx struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Value  *big.Int
	Method string
	Args   []any
}

// Chain is safe for concurrent use.
type Chain struct {
	mu          sync.Mutex
	contracts   map[common.Address]*Contract
	logs        []types.Log
	calls       []CallRecord
	sent        []SentTx
	failSend    map[string]error
	failReceipt map[string]bool
	nonce       uint64
}

func NewChain() *Chain {
	return &Chain{
		contracts:   map[common.Address]*Contract{},
		failSend:    map[string]error{},
		failReceipt: map[string]bool{},
	}
}

// Deploy registers a contract with the given ABI at addr.
func (c *Chain) Deploy(addr common.Address, abiJSON string) *Contract {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
	contract := &Contract{Address: addr, ABI: parsed, methods: map[string]Method{}}
	c.mu.Lock()
	c.contracts[addr] = contract
	c.mu.Unlock()
	return contract
}

// AddLog appends a log visible to FilterLogs.
func (c *Chain) AddLog(l types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.Index = uint(len(c.logs))
	c.logs = append(c.logs, l)
}

// FailSend makes every submission of method fail before broadcast.
func (c *Chain) FailSend(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend[method] = err
}

// FailReceipt makes every submission of method mine with a reverted receipt.
func (c *Chain) FailReceipt(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failReceipt[method] = true
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("contract creation is not supported")
	}
	contract, method, args, err := c.decode(*msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, CallRecord{To: *msg.To, From: msg.From, Method: method.Name})
	c.mu.Unlock()

	out, err := c.invoke(contract, method, Call{From: msg.From, Value: valueOrZero(msg.Value), Args: args})
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []types.Log{}
	for _, l := range c.logs {
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if q.FromBlock != nil && new(big.Int).SetUint64(l.BlockNumber).Cmp(q.FromBlock) < 0 {
			continue
		}
		if !topicsMatch(q.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Calls returns the eth_call records for method ("" for all).
func (c *Chain) Calls(method string) []CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []CallRecord{}
	for _, r := range c.calls {
		if method == "" || r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// Sent returns submitted transactions for method ("" for all), in order.
func (c *Chain) Sent(method string) []SentTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []SentTx{}
	for _, tx := range c.sent {
		if method == "" || tx.Method == method {
			out = append(out, tx)
		}
	}
	return out
}

// Transactor returns a signing identity bound to from.
func (c *Chain) Transactor(from common.Address) *Transactor {
	return &Transactor{chain: c, from: from}
}

type Transactor struct {
	chain *Chain
	from  common.Address
}

func (t *Transactor) Address() common.Address { return t.from }

func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	c := t.chain
	contract, method, args, err := c.decode(to, data)
	if err != nil {
		return common.Hash{}, err
	}
	c.mu.Lock()
	ferr, failing := c.failSend[method.Name]
	c.mu.Unlock()
	if failing {
		return common.Hash{}, ferr
	}
	// Reverting handlers behave like a failed pre-broadcast simulation.
	if _, err := c.invoke(contract, method, Call{From: t.from, Value: valueOrZero(value), Args: args, Write: true}); err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	hash := common.BigToHash(new(big.Int).SetUint64(c.nonce))
	c.sent = append(c.sent, SentTx{Hash: hash, From: t.from, To: to, Value: valueOrZero(value), Method: method.Name, Args: args})
	return hash, nil
}

func (t *Transactor) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := t.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.sent {
		if tx.Hash != hash {
			continue
		}
		status := types.ReceiptStatusSuccessful
		if c.failReceipt[tx.Method] {
			status = types.ReceiptStatusFailed
		}
		return &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(int64(c.nonce))}, nil
	}
	return nil, ethereum.NotFound
}

func (c *Chain) decode(to common.Address, data []byte) (*Contract, *abi.Method, []any, error) {
	c.mu.Lock()
	contract, ok := c.contracts[to]
	c.mu.Unlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, nil, fmt.Errorf("calldata too short")
	}
	method, err := contract.ABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode %s args: %w", method.Name, err)
	}
	return contract, method, args, nil
}

func (c *Chain) invoke(contract *Contract, method *abi.Method, call Call) ([]any, error) {
	c.mu.Lock()
	fn, ok := contract.methods[method.Name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s not implemented", method.Name)
	}
	return fn(call)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func containsAddress(items []common.Address, target common.Address) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func topicsMatch(filter [][]common.Hash, topics []common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		matched := false
		for _, opt := range options {
			if opt == topics[i] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
