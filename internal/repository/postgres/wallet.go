package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

const createWallet = `-- name: CreateWallet
INSERT INTO wallets (id, user_id, balance, version)
VALUES ($1, $2, 0, 0)
RETURNING id, user_id, balance, version, created_at, updated_at
`

func (r *WalletRepo) CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, createWallet, uuid.New(), userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return wallet, apperrors.ErrWalletExists
		}
		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

const getWallet = `-- name: GetWallet
SELECT id, user_id, balance, version, created_at, updated_at
FROM wallets
WHERE user_id = $1
`

func (r *WalletRepo) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

// Compare-and-swap on version: the row is untouched if somebody else wrote it since it was read
const updateBalance = `-- name: UpdateBalance
UPDATE wallets
SET balance = $3, version = version + 1, updated_at = now()
WHERE user_id = $1 AND version = $2
RETURNING id, user_id, balance, version, created_at, updated_at
`

func (r *WalletRepo) UpdateBalance(ctx context.Context, userID uuid.UUID, expectedVersion int64, balance decimal.Decimal) (models.Wallet, error) {
	if balance.IsNegative() {
		return models.Wallet{}, apperrors.ErrInsufficientFunds
	}

	rows, _ := r.DB.Query(ctx, updateBalance, userID, expectedVersion, balance)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletVersionConflict
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation:
		return wallet, apperrors.ErrInsufficientFunds
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
