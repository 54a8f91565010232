package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementType string

const (
	SettlementTypeDeposit    SettlementType = "deposit"
	SettlementTypeWithdrawal SettlementType = "withdrawal"
)

type SettlementRecord struct {
	ID        uuid.UUID
	Type      SettlementType
	Hash      string
	Source    string
	Target    string
	Amount    decimal.Decimal
	Asset     string
	MemoID    *string
	Credited  bool
	CreatedAt time.Time
}
