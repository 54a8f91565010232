package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

const staleBatchSize = 100

func (e *Engine) ListUnresolvedWithdrawals(ctx context.Context, limit int) ([]domain.WithdrawalIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	intents, err := e.intents.ListByStatus(ctx, []domain.WithdrawalStatus{
		domain.WithdrawalStatusPending,
		domain.WithdrawalStatusUnknown,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("ListUnresolvedWithdrawals: %w", err)
	}
	return intents, nil
}

func (e *Engine) CountUnresolvedWithdrawals(ctx context.Context) (int, error) {
	n, err := e.intents.CountUnresolved(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountUnresolvedWithdrawals: %w", err)
	}
	e.recorder.SetUnresolvedWithdrawals(n)
	return n, nil
}

// ResolveWithdrawal closes an unknown intent after an operator has checked
// the network. settled commits the withdrawal; otherwise any held amount is
// returned to the account. A pending intent may still have a gateway call in
// flight and is rejected with domain.ErrValidation.
func (e *Engine) ResolveWithdrawal(ctx context.Context, intentID uuid.UUID, settled bool) (resolved *domain.WithdrawalIntent, err error) {
	start := time.Now()
	defer func() { e.record("resolve_withdrawal", start, err) }()

	intent, err := e.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("ResolveWithdrawal: %w", err)
	}

	unlock, err := e.lockAccount(ctx, intent.AccountID)
	if err != nil {
		return nil, fmt.Errorf("ResolveWithdrawal: %w", err)
	}
	defer unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ResolveWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	intent, err = e.intents.GetForUpdate(ctx, tx, intentID)
	if err != nil {
		return nil, fmt.Errorf("ResolveWithdrawal: %w", err)
	}
	if intent.Status.IsTerminal() {
		return nil, fmt.Errorf("ResolveWithdrawal: intent is %s: %w: %w",
			intent.Status, domain.ErrValidation, domain.ErrIntentResolved)
	}
	if intent.Status != domain.WithdrawalStatusUnknown {
		return nil, fmt.Errorf("ResolveWithdrawal: intent is %s, settlement may be in flight: %w",
			intent.Status, domain.ErrValidation)
	}

	var (
		action *domain.Action
		acct   *domain.Account
	)
	if settled {
		action, acct, err = e.settleIntent(ctx, tx, intent)
		if err != nil {
			return nil, fmt.Errorf("ResolveWithdrawal: %w", err)
		}
		intent.Status = domain.WithdrawalStatusCommitted
		intent.FailureReason = nil
	} else {
		reason := "refunded by operator"
		acct, err = e.refundIntent(ctx, tx, intent, reason)
		if err != nil {
			return nil, fmt.Errorf("ResolveWithdrawal: %w", err)
		}
		intent.Status = domain.WithdrawalStatusFailed
		intent.FailureReason = &reason
	}
	wasHeld := intent.Held
	intent.Held = false

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ResolveWithdrawal: commit: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal intent resolved",
		"intent_id", intent.ID,
		"account_id", intent.AccountID,
		"status", intent.Status,
		"was_held", wasHeld,
		"amount", domain.FormatAmount(intent.Amount),
	)

	e.refreshUnresolved(ctx)
	if action != nil {
		e.recorder.AddVolume("withdrawal", intent.Amount)
		e.notify(ctx, domain.Event{
			Type:       domain.EventTypeWithdrawal,
			ActionID:   action.ID,
			Source:     acct,
			Amount:     intent.Amount,
			Hash:       intent.Hash,
			Address:    intent.Address,
			OccurredAt: action.CreatedAt,
		})
	}
	return intent, nil
}

// EscalateStaleWithdrawals moves pending intents untouched for olderThan to
// unknown, holding their funds. A pending intent that old means the process
// died between the gateway call and the local commit.
func (e *Engine) EscalateStaleWithdrawals(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := e.intents.ListStale(ctx, time.Now().Add(-olderThan), staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("EscalateStaleWithdrawals: %w", err)
	}

	log := logging.FromContext(ctx)
	escalated := 0
	for _, intent := range stale {
		if ctx.Err() != nil {
			break
		}
		held, err := e.escalateIntent(ctx, intent)
		if err != nil {
			if !errors.Is(err, domain.ErrIntentResolved) {
				log.Warn("failed to escalate stale withdrawal", "intent_id", intent.ID, "error", err)
			}
			continue
		}
		escalated++
		e.recorder.IncEscalations()
		log.Warn("stale withdrawal escalated",
			"intent_id", intent.ID,
			"account_id", intent.AccountID,
			"held", held,
		)
	}

	e.refreshUnresolved(ctx)
	return escalated, nil
}

func (e *Engine) escalateIntent(ctx context.Context, intent domain.WithdrawalIntent) (bool, error) {
	unlock, err := e.lockAccount(ctx, intent.AccountID)
	if err != nil {
		return false, err
	}
	defer unlock()

	_, held, err := e.holdIntent(ctx, intent.ID, "stale pending intent")
	return held, err
}
