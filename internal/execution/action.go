package execution

import (
	"time"

	"github.com/google/uuid"
)

func NewOperationID() string {
	return "op_" + uuid.NewString()
}

// tracker owns one PendingOperation and fans its transitions out to observers.
type tracker struct {
	op        PendingOperation
	observers []Observer
}

func newTracker(action, target string, observers []Observer) *tracker {
	t := &tracker{
		op: PendingOperation{
			ID:     NewOperationID(),
			Action: action,
			Kind:   KindAct,
			Target: target,
			Status: StatusIdle,
		},
		observers: observers,
	}
	t.emit()
	return t
}

func (t *tracker) transition(kind OperationKind, target string, status OperationStatus, txHash string) {
	t.op.Kind = kind
	t.op.Target = target
	t.op.Status = status
	t.op.TxHash = txHash
	t.emit()
}

func (t *tracker) fail(err error) {
	t.op.Status = StatusFailed
	t.op.Error = err.Error()
	t.emit()
}

func (t *tracker) emit() {
	t.op.UpdatedAt = time.Now().UTC()
	for _, o := range t.observers {
		o.OnTransition(t.op)
	}
}
