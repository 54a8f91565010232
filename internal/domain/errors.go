package domain

import "errors"

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrValidation             = errors.New("validation error")
	ErrSettlementFailed       = errors.New("settlement failed")
	ErrReconciliationRequired = errors.New("reconciliation required")

	ErrNotFound        = errors.New("not found")
	ErrSelfTransfer    = errors.New("cannot transfer to same account")
	ErrVersionConflict = errors.New("optimistic lock conflict")
	ErrOutcomeUnknown  = errors.New("settlement outcome unknown")
	ErrIntentResolved  = errors.New("withdrawal intent already resolved")
	ErrConflict        = errors.New("unique constraint violated")
	ErrAccountBusy     = errors.New("account is busy with another operation")

	ErrInvalidDestination = errors.New("invalid destination address")
)

type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindInsufficientBalance    ErrorKind = "insufficient_balance"
	KindDuplicateOperation     ErrorKind = "duplicate_operation"
	KindValidation             ErrorKind = "validation"
	KindSettlementFailed       ErrorKind = "settlement_failed"
	KindReconciliationRequired ErrorKind = "reconciliation_required"
	KindNotFound               ErrorKind = "not_found"
	KindInternal               ErrorKind = "internal"
)

// KindOf classifies err. Reconciliation wins over settlement failure when
// both are present in the chain.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrReconciliationRequired):
		return KindReconciliationRequired
	case errors.Is(err, ErrSettlementFailed):
		return KindSettlementFailed
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrDuplicateOperation):
		return KindDuplicateOperation
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSelfTransfer):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
