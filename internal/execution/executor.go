package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
)

// Spend describes a token the action pulls from the owner.
type Spend struct {
	Token   *registry.Handle
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// Call is the primary state-changing call of an action.
type Call struct {
	Handle *registry.Handle
	Method string
	Args   []any
	Value  *big.Int
}

// Plan is a fully validated approve-then-act sequence. Spend is nil when the
// action moves no user tokens.
type Plan struct {
	Action string
	Spend  *Spend
	Call   Call
	// BeforeCall runs after any approval confirms and before the primary call
	// is submitted. It may adjust the call, e.g. attach a freshly quoted fee.
	BeforeCall func(ctx context.Context, call *Call) error
}

// Orchestrator sequences approve-then-act flows. It keeps no state between
// calls and is safe for concurrent use on independent actions.
type Orchestrator struct {
	registry  *registry.Registry
	observers []Observer
}

func NewOrchestrator(reg *registry.Registry, observers ...Observer) *Orchestrator {
	return &Orchestrator{registry: reg, observers: observers}
}

func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Run executes the plan: approval when the allowance falls short, then the
// primary call, then confirmation. Failures carry the stage that failed.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (Result, error) {
	if plan.Call.Handle == nil {
		return Result{}, clierr.New(clierr.CodeInternal, "plan has no primary call")
	}
	t := newTracker(plan.Action, plan.Call.Handle.Name, o.observers)

	var approvalHash common.Hash
	if plan.Spend != nil {
		hash, err := o.ensureAllowance(ctx, t, *plan.Spend)
		if err != nil {
			t.fail(err)
			return Result{}, err
		}
		approvalHash = hash
	}

	call := plan.Call
	if plan.BeforeCall != nil {
		if err := plan.BeforeCall(ctx, &call); err != nil {
			wrapped := clierr.TransactionFailed(clierr.StageAction, fmt.Sprintf("prepare %s", plan.Action), err)
			t.fail(wrapped)
			return Result{}, wrapped
		}
	}
	hash, err := call.Handle.Transact(ctx, call.Value, call.Method, call.Args...)
	if err != nil {
		wrapped := clierr.TransactionFailed(clierr.StageAction, fmt.Sprintf("submit %s", plan.Action), err)
		t.fail(wrapped)
		return Result{}, wrapped
	}
	t.transition(KindAct, call.Handle.Name, StatusSubmitted, hash.Hex())

	receipt, err := call.Handle.Wait(ctx, hash)
	if err != nil {
		wrapped := clierr.TransactionFailed(clierr.StageAction, fmt.Sprintf("confirm %s", plan.Action), err)
		t.fail(wrapped)
		return Result{}, wrapped
	}
	t.transition(KindAct, call.Handle.Name, StatusConfirmed, hash.Hex())

	result := Result{
		OperationID:    t.op.ID,
		Action:         plan.Action,
		Target:         call.Handle.Address.Hex(),
		ApprovalTxHash: hashString(approvalHash),
		TxHash:         hash.Hex(),
		GasUsed:        receipt.GasUsed,
		Status:         string(StatusConfirmed),
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

func (o *Orchestrator) ensureAllowance(ctx context.Context, t *tracker, spend Spend) (common.Hash, error) {
	if spend.Token == nil || spend.Amount == nil {
		return common.Hash{}, clierr.New(clierr.CodeInternal, "incomplete spend")
	}
	allowance, err := spend.Token.BigInt(ctx, "allowance", spend.Owner, spend.Spender)
	if err != nil {
		return common.Hash{}, clierr.TransactionFailed(clierr.StageApproval, fmt.Sprintf("read %s allowance", spend.Token.Name), err)
	}
	if allowance.Cmp(spend.Amount) >= 0 {
		return common.Hash{}, nil
	}

	t.transition(KindApprove, spend.Token.Name, StatusAwaitingApproval, "")
	hash, err := spend.Token.Transact(ctx, nil, "approve", spend.Spender, spend.Amount)
	if err != nil {
		return common.Hash{}, clierr.TransactionFailed(clierr.StageApproval, fmt.Sprintf("submit %s approval", spend.Token.Name), err)
	}
	t.transition(KindApprove, spend.Token.Name, StatusAwaitingApproval, hash.Hex())
	if _, err := spend.Token.Wait(ctx, hash); err != nil {
		return common.Hash{}, clierr.TransactionFailed(clierr.StageApproval, fmt.Sprintf("confirm %s approval", spend.Token.Name), err)
	}
	t.transition(KindApprove, spend.Token.Name, StatusApproved, hash.Hex())
	return hash, nil
}
