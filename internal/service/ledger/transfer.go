package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

// Transfer moves amount from source to target. A second call with the same
// hash for the same source reports domain.ErrDuplicateOperation and changes
// nothing. On success the passed accounts carry the committed balances.
func (e *Engine) Transfer(ctx context.Context, source, target *domain.Account, amount decimal.Decimal, hash string) (action *domain.Action, err error) {
	start := time.Now()
	defer func() { e.record("transfer", start, err) }()

	amount = domain.NormalizeAmount(amount)
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if err := validateHash(hash); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if !e.CanPay(source, amount) {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrInsufficientBalance)
	}

	unlock, err := e.lockAccount(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	defer unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Transfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockAccountsInOrder(ctx, tx, e.accounts, source.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	src, dst := locked[source.ID], locked[target.ID]

	exists, err := e.actions.Exists(ctx, tx, src.ID, hash, domain.ActionTypeTransfer)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrDuplicateOperation)
	}

	if src.Balance.LessThan(amount) {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrInsufficientBalance)
	}

	if src.ID != dst.ID {
		src.Balance = domain.NormalizeAmount(src.Balance.Sub(amount))
		src.Version++
		if err := e.accounts.UpdateBalance(ctx, tx, src.ID, src.Balance, src.Version); err != nil {
			return nil, fmt.Errorf("Transfer: debit: %w", err)
		}

		dst.Balance = domain.NormalizeAmount(dst.Balance.Add(amount))
		dst.Version++
		if err := e.accounts.UpdateBalance(ctx, tx, dst.ID, dst.Balance, dst.Version); err != nil {
			return nil, fmt.Errorf("Transfer: credit: %w", err)
		}
	}

	targetID := dst.ID
	action = &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeTransfer,
		Amount:          amount,
		SourceAccountID: src.ID,
		TargetAccountID: &targetID,
		Hash:            hash,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.actions.Create(ctx, tx, action); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("Transfer: %w", domain.ErrDuplicateOperation)
		}
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Transfer: commit: %w", err)
	}

	applyCommitted(source, src)
	applyCommitted(target, dst)

	logging.FromContext(ctx).Info("transfer committed",
		"action_id", action.ID,
		"source_account_id", src.ID,
		"target_account_id", dst.ID,
		"amount", domain.FormatAmount(amount),
		"hash", hash,
	)

	e.recorder.AddVolume("transfer", amount)
	e.notify(ctx, domain.Event{
		Type:       domain.EventTypeTransfer,
		ActionID:   action.ID,
		Source:     source,
		Target:     target,
		Amount:     amount,
		Hash:       hash,
		OccurredAt: action.CreatedAt,
	})
	return action, nil
}
