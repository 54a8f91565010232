package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, platform, userID, balance string) *domain.Account {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.Account{
		ID:             uuid.New(),
		Platform:       platform,
		PlatformUserID: domain.NormalizeUserID(userID),
		MemoID:         domain.DefaultMemoID(platform, userID),
		Balance:        domain.NormalizeAmount(decimal.RequireFromString(balance)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, platform, platform_user_id, memo_id, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Platform, a.PlatformUserID, a.MemoID, a.Balance, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s/%s: %v", platform, userID, err)
	}
	return a
}

func GetBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) string {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s: %v", accountID, err)
	}
	return domain.FormatAmount(balance)
}

func CountActions(t *testing.T, db *sql.DB, accountID uuid.UUID, hash string, actionType domain.ActionType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE source_account_id = $1 AND hash = $2 AND type = $3`,
		accountID, hash, actionType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count actions for %s/%s: %v", accountID, hash, err)
	}
	return count
}

func CountSettlements(t *testing.T, db *sql.DB, hash string, settlementType domain.SettlementType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM settlement_records WHERE hash = $1 AND type = $2`,
		hash, settlementType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count settlements for %s: %v", hash, err)
	}
	return count
}

func GetIntentStatus(t *testing.T, db *sql.DB, accountID uuid.UUID, hash string) (domain.WithdrawalStatus, bool) {
	t.Helper()

	var (
		status domain.WithdrawalStatus
		held   bool
	)
	err := db.QueryRow(
		`SELECT status, held FROM withdrawal_intents WHERE account_id = $1 AND hash = $2`,
		accountID, hash,
	).Scan(&status, &held)
	if err != nil {
		t.Fatalf("get intent %s/%s: %v", accountID, hash, err)
	}
	return status, held
}
