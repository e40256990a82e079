package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
)

type BalanceKeyRepo struct {
	DB DBTX
}

const createBalanceKey = `-- name: CreateBalanceKey
INSERT INTO balance_keys (id, code, amount)
VALUES ($1, $2, $3)
RETURNING id, code, amount, is_used, used_by, used_at, created_at
`

func (r *BalanceKeyRepo) CreateBalanceKey(ctx context.Context, code string, amount decimal.Decimal) (models.BalanceKey, error) {
	rows, _ := r.DB.Query(ctx, createBalanceKey, uuid.New(), models.NormalizeKeyCode(code), amount)
	key, err := pgx.CollectOneRow(rows, rowToBalanceKey)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return key, apperrors.ErrBalanceKeyExists
		}
		return key, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

const getBalanceKeyByCode = `-- name: GetBalanceKeyByCode
SELECT id, code, amount, is_used, used_by, used_at, created_at
FROM balance_keys
WHERE code = $1
`

func (r *BalanceKeyRepo) GetByCode(ctx context.Context, code string) (models.BalanceKey, error) {
	rows, _ := r.DB.Query(ctx, getBalanceKeyByCode, code)
	key, err := pgx.CollectOneRow(rows, rowToBalanceKey)

	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, pgx.ErrNoRows):
		return key, apperrors.ErrBalanceKeyNotFound
	default:
		return key, fmt.Errorf("db error: %w", err)
	}
}

// Mark key used if it not used
// Returns nothing when the key is missing or used already; the caller tells them apart
const markBalanceKeyUsed = `-- name: MarkBalanceKeyUsed
UPDATE balance_keys
SET is_used = true, used_by = $2, used_at = $3
WHERE id = $1 AND is_used = false
RETURNING id, code, amount, is_used, used_by, used_at, created_at
`

const balanceKeyExists = `-- name: BalanceKeyExists
SELECT EXISTS (SELECT 1 FROM balance_keys WHERE id = $1)
`

func (r *BalanceKeyRepo) MarkUsed(ctx context.Context, id uuid.UUID, userID uuid.UUID, usedAt time.Time) (models.BalanceKey, error) {
	rows, _ := r.DB.Query(ctx, markBalanceKeyUsed, id, userID, usedAt)
	key, err := pgx.CollectOneRow(rows, rowToBalanceKey)

	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := r.DB.QueryRow(ctx, balanceKeyExists, id).Scan(&exists); err != nil {
			return key, fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return key, apperrors.ErrBalanceKeyNotFound
		}
		return key, apperrors.ErrAlreadyUsed
	default:
		return key, fmt.Errorf("db error: %w", err)
	}
}

func rowToBalanceKey(row pgx.CollectableRow) (models.BalanceKey, error) {
	var k models.BalanceKey
	err := row.Scan(&k.ID, &k.Code, &k.Amount, &k.IsUsed, &k.UsedBy, &k.UsedAt, &k.CreatedAt)
	return k, err
}
