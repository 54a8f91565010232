package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
)

const actionColumns = `id, type, amount, source_account_id, target_account_id,
	hash, address, created_at`

type ActionRepository struct {
	db *sql.DB
}

func NewActionRepository(db *sql.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) Create(ctx context.Context, tx *sql.Tx, action *domain.Action) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO actions (
			id, type, amount, source_account_id, target_account_id, hash, address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		action.ID, action.Type, action.Amount, action.SourceAccountID,
		action.TargetAccountID, action.Hash, nullString(action.Address), action.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w: %w", domain.ErrConflict, err)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ActionRepository) Exists(ctx context.Context, tx *sql.Tx, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM actions WHERE source_account_id = $1 AND hash = $2 AND type = $3
		)`,
		sourceAccountID, hash, actionType,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}
	return exists, nil
}

func (r *ActionRepository) GetByKey(ctx context.Context, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (*domain.Action, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM actions
		WHERE source_account_id = $1 AND hash = $2 AND type = $3`,
		sourceAccountID, hash, actionType,
	)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByKey: %w", err)
	}
	return a, nil
}

func (r *ActionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Action, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE source_account_id = $1 OR target_account_id = $1`,
		accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions
		WHERE source_account_id = $1 OR target_account_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByAccount: scan: %w", err)
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: rows: %w", err)
	}
	return actions, total, nil
}

func scanAction(s scanner) (*domain.Action, error) {
	var (
		a       domain.Action
		target  uuid.NullUUID
		address sql.NullString
	)
	err := s.Scan(
		&a.ID, &a.Type, &a.Amount, &a.SourceAccountID, &target,
		&a.Hash, &address, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		id := target.UUID
		a.TargetAccountID = &id
	}
	a.Address = stringPtr(address)
	return &a, nil
}
