package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID             uuid.UUID
	Platform       string
	PlatformUserID string
	MemoID         string
	Balance        decimal.Decimal
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NormalizeUserID(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

func NormalizeMemoID(memoID string) string {
	return strings.ToLower(strings.TrimSpace(memoID))
}

// DefaultMemoID is the memo an account receives on creation.
func DefaultMemoID(platform, userID string) string {
	return NormalizeMemoID(platform + "/" + userID)
}

// AccountOption overrides a default of a newly created account. Options are
// ignored when the account already exists.
type AccountOption func(*Account)

func WithMemoID(memoID string) AccountOption {
	return func(a *Account) { a.MemoID = NormalizeMemoID(memoID) }
}

// WithOpeningBalance seeds the balance of an imported account.
func WithOpeningBalance(balance decimal.Decimal) AccountOption {
	return func(a *Account) { a.Balance = NormalizeAmount(balance) }
}
