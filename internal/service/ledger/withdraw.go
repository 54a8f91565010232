package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

// Withdraw debits account and settles amount to address through gw.
//
// A pending intent is committed before the gateway is contacted. A
// definitive gateway failure restores the balance and returns
// domain.ErrSettlementFailed. When the outcome cannot be known the funds are
// held and domain.ErrReconciliationRequired is returned; the intent then
// waits for an operator.
func (e *Engine) Withdraw(ctx context.Context, gw Gateway, account *domain.Account, address string, amount decimal.Decimal, hash string) (action *domain.Action, err error) {
	start := time.Now()
	defer func() { e.record("withdraw", start, err) }()

	amount = domain.NormalizeAmount(amount)
	address = strings.TrimSpace(address)
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if err := validateHash(hash); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if address == "" {
		return nil, fmt.Errorf("Withdraw: address is required: %w", domain.ErrValidation)
	}
	if gw == nil {
		return nil, fmt.Errorf("Withdraw: gateway is required: %w", domain.ErrValidation)
	}
	if !e.CanPay(account, amount) {
		return nil, fmt.Errorf("Withdraw: %w", domain.ErrInsufficientBalance)
	}

	unlock, err := e.lockAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	defer unlock()

	intent, err := e.prepareWithdrawal(ctx, gw, account.ID, address, amount, hash)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	log := logging.FromContext(ctx).With(
		"intent_id", intent.ID,
		"account_id", account.ID,
		"hash", hash,
	)

	before := account.Balance
	account.Balance = domain.NormalizeAmount(account.Balance.Sub(amount))

	// Once the intent is armed the caller can no longer abandon the
	// settlement; bookkeeping must follow whatever the network did.
	bg := context.WithoutCancel(ctx)

	result, unknown, sendErr := e.settle(bg, gw, address, amount, hash)

	if sendErr != nil && unknown {
		log.Error("withdrawal outcome unknown", "error", sendErr)
		e.escalate(bg, account, before, intent.ID, "outcome unknown: "+sendErr.Error())
		return nil, fmt.Errorf("Withdraw: %w: %w", domain.ErrReconciliationRequired, sendErr)
	}
	if sendErr != nil {
		account.Balance = before
		if err := e.failIntent(bg, intent.ID, sendErr.Error()); err != nil {
			log.Error("failed to mark withdrawal intent failed", "error", err)
		}
		log.Warn("withdrawal settlement failed", "error", sendErr)
		return nil, fmt.Errorf("Withdraw: %w: %w", domain.ErrSettlementFailed, sendErr)
	}

	action, committed, err := e.commitWithdrawal(bg, intent.ID)
	if err != nil {
		log.Error("withdrawal settled on network but local commit failed",
			"error", err,
			"network_hash", result.NetworkHash,
		)
		e.escalate(bg, account, before, intent.ID, "local commit failed: "+err.Error())
		return nil, fmt.Errorf("Withdraw: %w: %w", domain.ErrReconciliationRequired, err)
	}
	applyCommitted(account, committed)

	log.Info("withdrawal committed",
		"action_id", action.ID,
		"address", address,
		"amount", domain.FormatAmount(amount),
		"network_hash", result.NetworkHash,
		"network_ledger", result.Ledger,
	)

	e.recorder.AddVolume("withdrawal", amount)
	e.notify(bg, domain.Event{
		Type:       domain.EventTypeWithdrawal,
		ActionID:   action.ID,
		Source:     account,
		Amount:     amount,
		Hash:       hash,
		Address:    address,
		OccurredAt: action.CreatedAt,
	})
	return action, nil
}

func (e *Engine) prepareWithdrawal(ctx context.Context, gw Gateway, accountID uuid.UUID, address string, amount decimal.Decimal, hash string) (*domain.WithdrawalIntent, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("prepareWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := e.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("prepareWithdrawal: %w", err)
	}
	if acct.Balance.LessThan(amount) {
		return nil, fmt.Errorf("prepareWithdrawal: %w", domain.ErrInsufficientBalance)
	}

	_, err = e.settlements.GetForUpdate(ctx, tx, hash, domain.SettlementTypeWithdrawal, address)
	if err == nil {
		return nil, fmt.Errorf("prepareWithdrawal: %w", domain.ErrDuplicateOperation)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("prepareWithdrawal: %w", err)
	}

	exists, err := e.actions.Exists(ctx, tx, acct.ID, hash, domain.ActionTypeWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("prepareWithdrawal: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("prepareWithdrawal: %w", domain.ErrDuplicateOperation)
	}

	armed, err := e.intents.Arm(ctx, tx, &domain.WithdrawalIntent{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Hash:      hash,
		Address:   address,
		Source:    gw.Address(),
		Asset:     gw.Asset(),
		Amount:    amount,
		Status:    domain.WithdrawalStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) && armed != nil {
			if armed.Status == domain.WithdrawalStatusCommitted {
				return nil, fmt.Errorf("prepareWithdrawal: %w", domain.ErrDuplicateOperation)
			}
			return nil, fmt.Errorf("prepareWithdrawal: intent %s is %s: %w",
				armed.ID, armed.Status, domain.ErrReconciliationRequired)
		}
		return nil, fmt.Errorf("prepareWithdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("prepareWithdrawal: commit: %w", err)
	}
	return armed, nil
}

// settle runs the gateway calls under the settle timeout, detached from any
// caller cancellation. unknown reports whether a failed submission may
// still land on the network.
func (e *Engine) settle(ctx context.Context, gw Gateway, address string, amount decimal.Decimal, hash string) (result *SettlementResult, unknown bool, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settings.SettleTimeout)
	defer cancel()

	txn, err := gw.CreateTransaction(ctx, address, amount, hash)
	if err != nil {
		return nil, false, fmt.Errorf("create transaction: %w", err)
	}

	result, err = gw.Send(ctx, txn)
	if err != nil {
		return nil, outcomeUnknown(err), fmt.Errorf("send: %w", err)
	}
	return result, false, nil
}

func outcomeUnknown(err error) bool {
	return errors.Is(err, domain.ErrOutcomeUnknown) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) escalate(ctx context.Context, account *domain.Account, before decimal.Decimal, intentID uuid.UUID, reason string) {
	acct, held, err := e.holdIntent(ctx, intentID, reason)
	if err != nil {
		account.Balance = before
		logging.FromContext(ctx).Error("failed to escalate withdrawal intent",
			"intent_id", intentID,
			"error", err,
		)
	} else {
		applyCommitted(account, acct)
		logging.FromContext(ctx).Warn("withdrawal intent escalated",
			"intent_id", intentID,
			"held", held,
		)
	}
	e.recorder.IncEscalations()
	e.refreshUnresolved(ctx)
}

// holdIntent moves a pending intent to unknown and debits its amount when
// the balance allows, so the funds cannot be spent twice while an operator
// decides.
func (e *Engine) holdIntent(ctx context.Context, intentID uuid.UUID, reason string) (*domain.Account, bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("holdIntent: begin tx: %w", err)
	}
	defer tx.Rollback()

	intent, err := e.intents.GetForUpdate(ctx, tx, intentID)
	if err != nil {
		return nil, false, fmt.Errorf("holdIntent: %w", err)
	}
	if intent.Status != domain.WithdrawalStatusPending {
		return nil, false, fmt.Errorf("holdIntent: intent is %s: %w", intent.Status, domain.ErrIntentResolved)
	}

	acct, err := e.accounts.GetForUpdate(ctx, tx, intent.AccountID)
	if err != nil {
		return nil, false, fmt.Errorf("holdIntent: %w", err)
	}

	held := false
	if acct.Balance.GreaterThanOrEqual(intent.Amount) {
		acct.Balance = domain.NormalizeAmount(acct.Balance.Sub(intent.Amount))
		acct.Version++
		if err := e.accounts.UpdateBalance(ctx, tx, acct.ID, acct.Balance, acct.Version); err != nil {
			return nil, false, fmt.Errorf("holdIntent: %w", err)
		}
		held = true
	}

	if err := e.intents.UpdateStatus(ctx, tx, intent.ID, domain.WithdrawalStatusUnknown, held, &reason); err != nil {
		return nil, false, fmt.Errorf("holdIntent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("holdIntent: commit: %w", err)
	}
	return acct, held, nil
}

func (e *Engine) failIntent(ctx context.Context, intentID uuid.UUID, reason string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failIntent: begin tx: %w", err)
	}
	defer tx.Rollback()

	intent, err := e.intents.GetForUpdate(ctx, tx, intentID)
	if err != nil {
		return fmt.Errorf("failIntent: %w", err)
	}
	if intent.Status.IsTerminal() {
		return fmt.Errorf("failIntent: %w", domain.ErrIntentResolved)
	}
	if _, err := e.refundIntent(ctx, tx, intent, reason); err != nil {
		return fmt.Errorf("failIntent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failIntent: commit: %w", err)
	}
	return nil
}

func (e *Engine) commitWithdrawal(ctx context.Context, intentID uuid.UUID) (*domain.Action, *domain.Account, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("commitWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	intent, err := e.intents.GetForUpdate(ctx, tx, intentID)
	if err != nil {
		return nil, nil, fmt.Errorf("commitWithdrawal: %w", err)
	}
	if intent.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("commitWithdrawal: intent is %s: %w", intent.Status, domain.ErrIntentResolved)
	}

	action, acct, err := e.settleIntent(ctx, tx, intent)
	if err != nil {
		return nil, nil, fmt.Errorf("commitWithdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commitWithdrawal: commit: %w", err)
	}
	return action, acct, nil
}

// settleIntent applies a settled withdrawal inside tx: debit unless already
// held, settlement record, action and committed intent.
func (e *Engine) settleIntent(ctx context.Context, tx *sql.Tx, intent *domain.WithdrawalIntent) (*domain.Action, *domain.Account, error) {
	acct, err := e.accounts.GetForUpdate(ctx, tx, intent.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("settleIntent: %w", err)
	}

	if !intent.Held {
		if acct.Balance.LessThan(intent.Amount) {
			return nil, nil, fmt.Errorf("settleIntent: %w", domain.ErrInsufficientBalance)
		}
		acct.Balance = domain.NormalizeAmount(acct.Balance.Sub(intent.Amount))
		acct.Version++
		if err := e.accounts.UpdateBalance(ctx, tx, acct.ID, acct.Balance, acct.Version); err != nil {
			return nil, nil, fmt.Errorf("settleIntent: debit: %w", err)
		}
	}

	now := time.Now().UTC()
	var memo *string
	if e.settings.WithdrawalMemo != "" {
		m := e.settings.WithdrawalMemo
		memo = &m
	}
	rec := &domain.SettlementRecord{
		ID:        uuid.New(),
		Type:      domain.SettlementTypeWithdrawal,
		Hash:      intent.Hash,
		Source:    intent.Source,
		Target:    intent.Address,
		Amount:    intent.Amount,
		Asset:     intent.Asset,
		MemoID:    memo,
		CreatedAt: now,
	}
	if err := e.settlements.Create(ctx, tx, rec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, nil, fmt.Errorf("settleIntent: %w", domain.ErrDuplicateOperation)
		}
		return nil, nil, fmt.Errorf("settleIntent: %w", err)
	}

	address := intent.Address
	action := &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeWithdrawal,
		Amount:          intent.Amount,
		SourceAccountID: acct.ID,
		Hash:            intent.Hash,
		Address:         &address,
		CreatedAt:       now,
	}
	if err := e.actions.Create(ctx, tx, action); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, nil, fmt.Errorf("settleIntent: %w", domain.ErrDuplicateOperation)
		}
		return nil, nil, fmt.Errorf("settleIntent: %w", err)
	}

	if err := e.intents.UpdateStatus(ctx, tx, intent.ID, domain.WithdrawalStatusCommitted, false, nil); err != nil {
		return nil, nil, fmt.Errorf("settleIntent: %w", err)
	}
	return action, acct, nil
}

// refundIntent marks intent failed inside tx and credits back a held amount.
func (e *Engine) refundIntent(ctx context.Context, tx *sql.Tx, intent *domain.WithdrawalIntent, reason string) (*domain.Account, error) {
	acct, err := e.accounts.GetForUpdate(ctx, tx, intent.AccountID)
	if err != nil {
		return nil, fmt.Errorf("refundIntent: %w", err)
	}

	if intent.Held {
		acct.Balance = domain.NormalizeAmount(acct.Balance.Add(intent.Amount))
		acct.Version++
		if err := e.accounts.UpdateBalance(ctx, tx, acct.ID, acct.Balance, acct.Version); err != nil {
			return nil, fmt.Errorf("refundIntent: credit: %w", err)
		}
	}

	if err := e.intents.UpdateStatus(ctx, tx, intent.ID, domain.WithdrawalStatusFailed, false, &reason); err != nil {
		return nil, fmt.Errorf("refundIntent: %w", err)
	}
	return acct, nil
}

func (e *Engine) refreshUnresolved(ctx context.Context) {
	n, err := e.intents.CountUnresolved(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to count unresolved withdrawals", "error", err)
		return
	}
	e.recorder.SetUnresolvedWithdrawals(n)
}
