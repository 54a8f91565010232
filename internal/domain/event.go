package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeTransfer   EventType = "TRANSFER"
	EventTypeDeposit    EventType = "DEPOSIT"
	EventTypeWithdrawal EventType = "WITHDRAWAL"
)

// Event is a post-commit notification of a balance change.
type Event struct {
	Type       EventType
	ActionID   uuid.UUID
	Source     *Account
	Target     *Account
	Amount     decimal.Decimal
	Hash       string
	Address    string
	OccurredAt time.Time
}
