package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

// GetOrCreate returns the account for (platform, userID), creating it with
// a zero balance on first contact. opts override the creation defaults and
// have no effect on an existing account. Concurrent first calls converge on
// one row.
func (e *Engine) GetOrCreate(ctx context.Context, platform, userID string, opts ...domain.AccountOption) (acct *domain.Account, err error) {
	start := time.Now()
	defer func() { e.record("get_or_create", start, err) }()

	platform, userID, err = normalizeIdentity(platform, userID)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	acct, err = e.accounts.GetByPlatformUser(ctx, platform, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	now := time.Now().UTC()
	acct = &domain.Account{
		ID:             uuid.New(),
		Platform:       platform,
		PlatformUserID: userID,
		MemoID:         domain.DefaultMemoID(platform, userID),
		Balance:        decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(acct)
	}
	if err := validateNewAccount(acct); err != nil {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	if err := e.createAccount(ctx, acct); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("GetOrCreate: %w", err)
		}
		existing, readErr := e.accounts.GetByPlatformUser(ctx, platform, userID)
		if readErr != nil {
			if errors.Is(readErr, domain.ErrNotFound) {
				return nil, fmt.Errorf("GetOrCreate: memo %q taken: %w: %w", acct.MemoID, domain.ErrValidation, err)
			}
			return nil, fmt.Errorf("GetOrCreate: re-read: %w", readErr)
		}
		return existing, nil
	}

	logging.FromContext(ctx).Info("account created",
		"account_id", acct.ID,
		"platform", platform,
		"platform_user_id", userID,
	)
	return acct, nil
}

func validateNewAccount(acct *domain.Account) error {
	if acct.MemoID == "" {
		return fmt.Errorf("memo id is required: %w", domain.ErrValidation)
	}
	if len(acct.MemoID) > 255 {
		return fmt.Errorf("memo id exceeds 255 characters: %w", domain.ErrValidation)
	}
	if acct.Balance.IsNegative() || !domain.AmountInRange(acct.Balance) {
		return fmt.Errorf("opening balance %s out of range: %w", acct.Balance, domain.ErrValidation)
	}
	return nil
}

func (e *Engine) createAccount(ctx context.Context, acct *domain.Account) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("createAccount: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.accounts.Create(ctx, tx, acct); err != nil {
		return fmt.Errorf("createAccount: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("createAccount: commit: %w", err)
	}
	return nil
}

func (e *Engine) Find(ctx context.Context, platform, userID string) (*domain.Account, error) {
	platform, userID, err := normalizeIdentity(platform, userID)
	if err != nil {
		return nil, fmt.Errorf("Find: %w", err)
	}
	acct, err := e.accounts.GetByPlatformUser(ctx, platform, userID)
	if err != nil {
		return nil, fmt.Errorf("Find: %w", err)
	}
	return acct, nil
}

func (e *Engine) FindByMemoID(ctx context.Context, memoID string) (*domain.Account, error) {
	memoID = domain.NormalizeMemoID(memoID)
	if memoID == "" {
		return nil, fmt.Errorf("FindByMemoID: memo id is required: %w", domain.ErrValidation)
	}
	acct, err := e.accounts.GetByMemoID(ctx, memoID)
	if err != nil {
		return nil, fmt.Errorf("FindByMemoID: %w", err)
	}
	return acct, nil
}

// RefreshMemoID assigns a fresh random memo. A collision surfaces as a
// validation error and the caller may retry.
func (e *Engine) RefreshMemoID(ctx context.Context, account *domain.Account) (memo string, err error) {
	start := time.Now()
	defer func() { e.record("refresh_memo", start, err) }()

	memo, err = newMemoID()
	if err != nil {
		return "", fmt.Errorf("RefreshMemoID: %w", err)
	}

	if err := e.accounts.UpdateMemoID(ctx, account.ID, memo); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return "", fmt.Errorf("RefreshMemoID: %w: %w", domain.ErrValidation, err)
		}
		return "", fmt.Errorf("RefreshMemoID: %w", err)
	}

	account.MemoID = memo
	logging.FromContext(ctx).Info("memo id refreshed", "account_id", account.ID)
	return memo, nil
}

func (e *Engine) History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Action, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	actions, total, err := e.actions.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return actions, total, nil
}

// Replayed returns the action previously committed for an idempotency key.
func (e *Engine) Replayed(ctx context.Context, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (*domain.Action, error) {
	a, err := e.actions.GetByKey(ctx, sourceAccountID, hash, actionType)
	if err != nil {
		return nil, fmt.Errorf("Replayed: %w", err)
	}
	return a, nil
}

func normalizeIdentity(platform, userID string) (string, string, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	userID = domain.NormalizeUserID(userID)
	if platform == "" {
		return "", "", fmt.Errorf("platform is required: %w", domain.ErrValidation)
	}
	if userID == "" {
		return "", "", fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	return platform, userID, nil
}

// newMemoID returns five dash-joined groups of four lowercase hex digits.
func newMemoID() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("newMemoID: %w", err)
	}
	groups := make([]string, 5)
	for i := range groups {
		groups[i] = hex.EncodeToString(buf[i*2 : i*2+2])
	}
	return strings.Join(groups, "-"), nil
}
