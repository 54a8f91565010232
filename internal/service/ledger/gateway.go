package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway builds and submits settlement transactions on the payment
// network. Send returns an error wrapping domain.ErrOutcomeUnknown (or a
// context error) when the submission may still land.
type Gateway interface {
	Address() string
	Asset() string
	CreateTransaction(ctx context.Context, destination string, amount decimal.Decimal, hash string) (*Transaction, error)
	Send(ctx context.Context, tx *Transaction) (*SettlementResult, error)
}

type Transaction struct {
	ID          string
	Destination string
	Amount      decimal.Decimal
	Hash        string
	Envelope    string
}

type SettlementResult struct {
	NetworkHash string
	Ledger      int64
}
