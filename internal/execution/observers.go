package execution

import "go.uber.org/zap"

// LogObserver writes each transition as a structured log line.
func LogObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ObserverFunc(func(op PendingOperation) {
		fields := []zap.Field{
			zap.String("operation_id", op.ID),
			zap.String("action", op.Action),
			zap.String("kind", string(op.Kind)),
			zap.String("target", op.Target),
			zap.String("status", string(op.Status)),
		}
		if op.TxHash != "" {
			fields = append(fields, zap.String("tx_hash", op.TxHash))
		}
		if op.Status == StatusFailed {
			logger.Error("operation failed", append(fields, zap.String("error", op.Error))...)
			return
		}
		logger.Info("operation transition", fields...)
	})
}
