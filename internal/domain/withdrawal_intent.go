package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCommitted WithdrawalStatus = "committed"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
	WithdrawalStatusUnknown   WithdrawalStatus = "unknown"
)

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCommitted || s == WithdrawalStatusFailed
}

// WithdrawalIntent is written before the gateway is contacted so that a
// crash between a successful send and the local commit leaves a trace.
// Held reports whether the amount has been debited while the outcome is
// unknown.
type WithdrawalIntent struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Hash          string
	Address       string
	Source        string
	Asset         string
	Amount        decimal.Decimal
	Status        WithdrawalStatus
	Held          bool
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
