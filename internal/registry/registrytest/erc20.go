package registrytest

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
)

// Token is a stateful ERC20 fake.
type Token struct {
	*Contract
	mu         sync.Mutex
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

// DeployToken registers an ERC20 with balance and allowance bookkeeping.
func (c *Chain) DeployToken(addr common.Address, decimals uint8) *Token {
	t := &Token{
		Contract:   c.Deploy(addr, registry.ERC20ABI),
		decimals:   decimals,
		balances:   map[common.Address]*big.Int{},
		allowances: map[[2]common.Address]*big.Int{},
	}
	t.On("decimals", func(Call) ([]any, error) { return []any{t.decimals}, nil })
	t.On("balanceOf", func(call Call) ([]any, error) {
		return []any{t.Balance(call.Args[0].(common.Address))}, nil
	})
	t.On("allowance", func(call Call) ([]any, error) {
		return []any{t.Allowance(call.Args[0].(common.Address), call.Args[1].(common.Address))}, nil
	})
	t.On("approve", func(call Call) ([]any, error) {
		if call.Write {
			t.SetAllowance(call.From, call.Args[0].(common.Address), call.Args[1].(*big.Int))
		}
		return []any{true}, nil
	})
	t.On("transferFrom", func(call Call) ([]any, error) {
		from := call.Args[0].(common.Address)
		to := call.Args[1].(common.Address)
		amount := call.Args[2].(*big.Int)
		if err := t.Spend(from, call.From, amount); err != nil {
			return nil, err
		}
		if call.Write {
			t.Move(from, to, amount)
		}
		return []any{true}, nil
	})
	return t
}

func (t *Token) SetBalance(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Set(amount)
}

func (t *Token) Balance(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *Token) SetAllowance(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Spend checks that spender may move amount of owner's balance.
func (t *Token) Spend(owner, spender common.Address, amount *big.Int) error {
	if t.Allowance(owner, spender).Cmp(amount) < 0 {
		return fmt.Errorf("execution reverted: ERC20: insufficient allowance")
	}
	if t.Balance(owner).Cmp(amount) < 0 {
		return fmt.Errorf("execution reverted: ERC20: transfer amount exceeds balance")
	}
	return nil
}

// Move transfers balance without allowance checks.
func (t *Token) Move(from, to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fromBal := t.balances[from]
	if fromBal == nil {
		fromBal = new(big.Int)
	}
	toBal := t.balances[to]
	if toBal == nil {
		toBal = new(big.Int)
	}
	t.balances[from] = new(big.Int).Sub(fromBal, amount)
	t.balances[to] = new(big.Int).Add(toBal, amount)
}
