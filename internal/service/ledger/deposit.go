package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

// RecordDeposit stores an incoming deposit record, returning the stored row
// when one with the same (hash, type, target) already exists.
func (e *Engine) RecordDeposit(ctx context.Context, rec *domain.SettlementRecord) (*domain.SettlementRecord, error) {
	if err := validateHash(rec.Hash); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	rec.Amount = domain.NormalizeAmount(rec.Amount)
	if err := domain.ValidatePositiveAmount(rec.Amount); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	rec.Target = strings.TrimSpace(rec.Target)
	if rec.Target == "" {
		return nil, fmt.Errorf("RecordDeposit: target is required: %w", domain.ErrValidation)
	}
	if rec.MemoID != nil {
		memo := domain.NormalizeMemoID(*rec.MemoID)
		rec.MemoID = &memo
	}

	rec.Type = domain.SettlementTypeDeposit
	rec.Credited = false
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored, err := e.settlements.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	return stored, nil
}

// Deposit credits account by rec.Amount exactly once per
// (account, rec.Hash). The record is stored if it was not recorded before.
func (e *Engine) Deposit(ctx context.Context, account *domain.Account, rec *domain.SettlementRecord) (action *domain.Action, err error) {
	start := time.Now()
	defer func() { e.record("deposit", start, err) }()

	if err := validateHash(rec.Hash); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if err := domain.ValidatePositiveAmount(rec.Amount); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	rec.Target = strings.TrimSpace(rec.Target)
	if rec.Target == "" {
		return nil, fmt.Errorf("Deposit: target is required: %w", domain.ErrValidation)
	}
	rec.Type = domain.SettlementTypeDeposit

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Deposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := e.accounts.GetForUpdate(ctx, tx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	exists, err := e.actions.Exists(ctx, tx, acct.ID, rec.Hash, domain.ActionTypeDeposit)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrDuplicateOperation)
	}

	stored, err := e.settlements.GetForUpdate(ctx, tx, rec.Hash, rec.Type, rec.Target)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		rec.Amount = domain.NormalizeAmount(rec.Amount)
		rec.Credited = false
		if err := e.settlements.Create(ctx, tx, rec); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, fmt.Errorf("Deposit: %w", domain.ErrDuplicateOperation)
			}
			return nil, fmt.Errorf("Deposit: %w", err)
		}
		stored = rec
	case err != nil:
		return nil, fmt.Errorf("Deposit: %w", err)
	case stored.Credited:
		return nil, fmt.Errorf("Deposit: %w", domain.ErrDuplicateOperation)
	}

	amount := domain.NormalizeAmount(stored.Amount)
	acct.Balance = domain.NormalizeAmount(acct.Balance.Add(amount))
	acct.Version++
	if err := e.accounts.UpdateBalance(ctx, tx, acct.ID, acct.Balance, acct.Version); err != nil {
		return nil, fmt.Errorf("Deposit: credit: %w", err)
	}

	if err := e.settlements.MarkCredited(ctx, tx, stored.ID); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	action = &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeDeposit,
		Amount:          amount,
		SourceAccountID: acct.ID,
		Hash:            rec.Hash,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.actions.Create(ctx, tx, action); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("Deposit: %w", domain.ErrDuplicateOperation)
		}
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Deposit: commit: %w", err)
	}

	stored.Credited = true
	rec.Credited = true
	applyCommitted(account, acct)

	logging.FromContext(ctx).Info("deposit credited",
		"action_id", action.ID,
		"account_id", acct.ID,
		"amount", domain.FormatAmount(amount),
		"hash", rec.Hash,
	)

	e.recorder.AddVolume("deposit", amount)
	e.notify(ctx, domain.Event{
		Type:       domain.EventTypeDeposit,
		ActionID:   action.ID,
		Source:     account,
		Amount:     amount,
		Hash:       rec.Hash,
		OccurredAt: action.CreatedAt,
	})
	return action, nil
}
