package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeBlocked     Code = 16

	CodePreconditionFailed  Code = 20
	CodeNoWalletProvider    Code = 21
	CodeUserRejected        Code = 22
	CodeConnection          Code = 23
	CodeTransactionFailed   Code = 24
	CodePartialReadFailure  Code = 25
	CodeInsufficientBalance Code = 26
	CodeNotEligible         Code = 27
	CodeMissingAddress      Code = 28
	CodeMissingCapability   Code = 29
	CodeInvalidAmount       Code = 30
)

// Stage identifies which half of an approve-then-act sequence failed.
type Stage string

const (
	StageApproval Stage = "approval"
	StageAction   Stage = "action"
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
	// Stage is only set on CodeTransactionFailed.
	Stage Stage
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// TransactionFailed reports a failed approve-then-act sequence, tagged with the
// step that failed so callers know whether allowance state may have changed.
func TransactionFailed(stage Stage, message string, cause error) *Error {
	return &Error{Code: CodeTransactionFailed, Message: message, Cause: cause, Stage: stage}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName is the stable string rendered in error envelopes.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodePreconditionFailed:
		return "precondition_failed"
	case CodeNoWalletProvider:
		return "no_wallet_provider"
	case CodeUserRejected:
		return "user_rejected"
	case CodeConnection:
		return "connection_error"
	case CodeTransactionFailed:
		return "transaction_failed"
	case CodePartialReadFailure:
		return "partial_read_failure"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeNotEligible:
		return "not_eligible"
	case CodeMissingAddress:
		return "missing_address"
	case CodeMissingCapability:
		return "missing_capability"
	case CodeInvalidAmount:
		return "invalid_amount"
	default:
		return "internal_error"
	}
}
