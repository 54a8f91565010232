package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipbot/ledger/internal/domain"
)

var settlementRowColumns = []string{
	"id", "type", "hash", "source", "target", "amount", "asset", "memo_id", "credited", "created_at",
}

func TestSettlementRepository_MarkCredited(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettlementRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE settlement_records SET credited = true WHERE id = $1 AND credited = false`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE settlement_records SET credited = true`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	require.NoError(t, repo.MarkCredited(context.Background(), tx, id))
	assert.ErrorIs(t, repo.MarkCredited(context.Background(), tx, id), domain.ErrDuplicateOperation)

	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepository_Upsert_ReturnsExisting(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettlementRepository(db)
	existingID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (hash, type, target) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE hash = $1 AND type = $2 AND target = $3`)).
		WithArgs("tx1", domain.SettlementTypeDeposit, "GDEST").
		WillReturnRows(sqlmock.NewRows(settlementRowColumns).
			AddRow(existingID.String(), "deposit", "tx1", "GSRC", "GDEST", "5.0000000", "MOBI", "reddit/alice", true, now))

	memo := "reddit/alice"
	rec, err := repo.Upsert(context.Background(), &domain.SettlementRecord{
		ID:        uuid.New(),
		Type:      domain.SettlementTypeDeposit,
		Hash:      "tx1",
		Source:    "GSRC",
		Target:    "GDEST",
		Amount:    decimal.RequireFromString("5"),
		Asset:     "MOBI",
		MemoID:    &memo,
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, existingID, rec.ID)
	assert.True(t, rec.Credited)
	require.NotNil(t, rec.MemoID)
	assert.Equal(t, "reddit/alice", *rec.MemoID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
