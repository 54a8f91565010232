package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
)

const settlementColumns = `id, type, hash, source, target, amount, asset, memo_id,
	credited, created_at`

type SettlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *sql.Tx, rec *domain.SettlementRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlement_records (
			id, type, hash, source, target, amount, asset, memo_id, credited, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Type, rec.Hash, rec.Source, rec.Target, rec.Amount, rec.Asset,
		nullString(rec.MemoID), rec.Credited, rec.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w: %w", domain.ErrConflict, err)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Upsert stores rec unless a record with the same (hash, type, target)
// exists, and returns whichever row is persisted.
func (r *SettlementRepository) Upsert(ctx context.Context, rec *domain.SettlementRecord) (*domain.SettlementRecord, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settlement_records (
			id, type, hash, source, target, amount, asset, memo_id, credited, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash, type, target) DO NOTHING`,
		rec.ID, rec.Type, rec.Hash, rec.Source, rec.Target, rec.Amount, rec.Asset,
		nullString(rec.MemoID), rec.Credited, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}

	stored, err := r.GetByKey(ctx, rec.Hash, rec.Type, rec.Target)
	if err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	return stored, nil
}

func (r *SettlementRepository) GetByKey(ctx context.Context, hash string, settlementType domain.SettlementType, target string) (*domain.SettlementRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlement_records
		WHERE hash = $1 AND type = $2 AND target = $3`,
		hash, settlementType, target,
	)
	rec, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByKey: %w", err)
	}
	return rec, nil
}

func (r *SettlementRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, hash string, settlementType domain.SettlementType, target string) (*domain.SettlementRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlement_records
		WHERE hash = $1 AND type = $2 AND target = $3 FOR UPDATE`,
		hash, settlementType, target,
	)
	rec, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return rec, nil
}

// MarkCredited flips credited once; a second call reports a duplicate.
func (r *SettlementRepository) MarkCredited(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE settlement_records SET credited = true WHERE id = $1 AND credited = false`, id,
	)
	if err != nil {
		return fmt.Errorf("MarkCredited: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkCredited: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkCredited: %w", domain.ErrDuplicateOperation)
	}
	return nil
}

func scanSettlement(s scanner) (*domain.SettlementRecord, error) {
	var (
		rec    domain.SettlementRecord
		memoID sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.Type, &rec.Hash, &rec.Source, &rec.Target, &rec.Amount,
		&rec.Asset, &memoID, &rec.Credited, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.MemoID = stringPtr(memoID)
	return &rec, nil
}
