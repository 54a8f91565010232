package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionTypeTransfer   ActionType = "transfer"
	ActionTypeDeposit    ActionType = "deposit"
	ActionTypeWithdrawal ActionType = "withdrawal"
)

// Action is an immutable record of a committed balance change. The tuple
// (SourceAccountID, Hash, Type) is unique.
type Action struct {
	ID              uuid.UUID
	Type            ActionType
	Amount          decimal.Decimal
	SourceAccountID uuid.UUID
	TargetAccountID *uuid.UUID
	Hash            string
	Address         *string
	CreatedAt       time.Time
}
