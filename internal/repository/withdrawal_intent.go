package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tipbot/ledger/internal/domain"
)

const intentColumns = `id, account_id, hash, address, source, asset, amount, status,
	held, failure_reason, created_at, updated_at`

type WithdrawalIntentRepository struct {
	db *sql.DB
}

func NewWithdrawalIntentRepository(db *sql.DB) *WithdrawalIntentRepository {
	return &WithdrawalIntentRepository{db: db}
}

// Arm inserts a pending intent, re-arming a previously failed one for the
// same (account, hash). It returns domain.ErrConflict together with the
// existing intent when that intent is not in a failed state.
func (r *WithdrawalIntentRepository) Arm(ctx context.Context, tx *sql.Tx, intent *domain.WithdrawalIntent) (*domain.WithdrawalIntent, error) {
	row := tx.QueryRowContext(ctx,
		`INSERT INTO withdrawal_intents (
			id, account_id, hash, address, source, asset, amount, status, held,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', false, $8, $8)
		ON CONFLICT (account_id, hash) DO UPDATE SET
			address = EXCLUDED.address,
			source = EXCLUDED.source,
			asset = EXCLUDED.asset,
			amount = EXCLUDED.amount,
			status = 'pending',
			held = false,
			failure_reason = NULL,
			updated_at = EXCLUDED.updated_at
		WHERE withdrawal_intents.status = 'failed'
		RETURNING `+intentColumns,
		intent.ID, intent.AccountID, intent.Hash, intent.Address, intent.Source,
		intent.Asset, intent.Amount, intent.CreatedAt,
	)
	armed, err := scanIntent(row)
	if err == nil {
		return armed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Arm: %w", err)
	}

	existing, err := scanIntent(tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM withdrawal_intents
		WHERE account_id = $1 AND hash = $2`,
		intent.AccountID, intent.Hash,
	))
	if err != nil {
		return nil, fmt.Errorf("Arm: existing: %w", err)
	}
	return existing, fmt.Errorf("Arm: %w", domain.ErrConflict)
}

func (r *WithdrawalIntentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalIntent, error) {
	i, err := scanIntent(r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM withdrawal_intents WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return i, nil
}

func (r *WithdrawalIntentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalIntent, error) {
	i, err := scanIntent(tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM withdrawal_intents WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return i, nil
}

func (r *WithdrawalIntentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, held bool, failureReason *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_intents
		SET status = $1, held = $2, failure_reason = $3, updated_at = now()
		WHERE id = $4`,
		status, held, nullString(failureReason), id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WithdrawalIntentRepository) ListByStatus(ctx context.Context, statuses []domain.WithdrawalStatus, limit int) ([]domain.WithdrawalIntent, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.list(ctx, "ListByStatus",
		`SELECT `+intentColumns+` FROM withdrawal_intents
		WHERE status = ANY($1) ORDER BY created_at LIMIT $2`,
		pq.Array(names), limit,
	)
}

// ListStale returns pending intents not touched since before.
func (r *WithdrawalIntentRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.WithdrawalIntent, error) {
	return r.list(ctx, "ListStale",
		`SELECT `+intentColumns+` FROM withdrawal_intents
		WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		domain.WithdrawalStatusPending, before, limit,
	)
}

func (r *WithdrawalIntentRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_intents WHERE status IN ($1, $2)`,
		domain.WithdrawalStatusPending, domain.WithdrawalStatusUnknown,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountUnresolved: %w", err)
	}
	return n, nil
}

func (r *WithdrawalIntentRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.WithdrawalIntent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var intents []domain.WithdrawalIntent
	for rows.Next() {
		i, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		intents = append(intents, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return intents, nil
}

func scanIntent(s scanner) (*domain.WithdrawalIntent, error) {
	var (
		i      domain.WithdrawalIntent
		reason sql.NullString
	)
	err := s.Scan(
		&i.ID, &i.AccountID, &i.Hash, &i.Address, &i.Source, &i.Asset, &i.Amount,
		&i.Status, &i.Held, &reason, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.FailureReason = stringPtr(reason)
	return &i, nil
}
