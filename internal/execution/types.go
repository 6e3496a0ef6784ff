package execution

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type OperationKind string

type OperationStatus string

const (
	KindApprove OperationKind = "approve"
	KindAct     OperationKind = "act"
)

const (
	StatusIdle             OperationStatus = "idle"
	StatusAwaitingApproval OperationStatus = "awaiting-approval"
	StatusApproved         OperationStatus = "approved"
	StatusSubmitted        OperationStatus = "submitted"
	StatusConfirmed        OperationStatus = "confirmed"
	StatusFailed           OperationStatus = "failed"
)

// PendingOperation tracks one user-initiated action for the duration of the
// call. It is never persisted.
type PendingOperation struct {
	ID        string          `json:"operation_id"`
	Action    string          `json:"action"`
	Kind      OperationKind   `json:"kind"`
	Target    string          `json:"target"`
	Status    OperationStatus `json:"status"`
	TxHash    string          `json:"tx_hash,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (o PendingOperation) Terminal() bool {
	return o.Status == StatusConfirmed || o.Status == StatusFailed
}

// Observer receives every PendingOperation transition. Observers run on the
// orchestrating goroutine and must not block.
type Observer interface {
	OnTransition(op PendingOperation)
}

type ObserverFunc func(op PendingOperation)

func (f ObserverFunc) OnTransition(op PendingOperation) { f(op) }

// Result is the outcome of a confirmed approve-then-act sequence.
type Result struct {
	OperationID    string `json:"operation_id"`
	Action         string `json:"action"`
	Target         string `json:"target"`
	ApprovalTxHash string `json:"approval_tx_hash,omitempty"`
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	Status         string `json:"status"`
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
