package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
)

type ProfileRepo struct {
	DB DBTX
}

const createProfile = `-- name: CreateProfile
INSERT INTO profiles (id, username)
VALUES ($1, $2)
RETURNING id, username, is_banned, total_sales, created_at
`

func (r *ProfileRepo) CreateProfile(ctx context.Context, id uuid.UUID, username string) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, createProfile, id, username)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return profile, fmt.Errorf("profile already exists: %w", err)
		}
		return profile, fmt.Errorf("db error: %w", err)
	}

	return profile, nil
}

const getProfile = `-- name: GetProfile
SELECT id, username, is_banned, total_sales, created_at
FROM profiles
WHERE id = $1
`

func (r *ProfileRepo) GetProfile(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, getProfile, id)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)

	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, pgx.ErrNoRows):
		return profile, apperrors.ErrProfileNotFound
	default:
		return profile, fmt.Errorf("db error: %w", err)
	}
}

const setBanned = `-- name: SetBanned
UPDATE profiles SET is_banned = $2 WHERE id = $1
`

func (r *ProfileRepo) SetBanned(ctx context.Context, id uuid.UUID, banned bool) error {
	tag, err := r.DB.Exec(ctx, setBanned, id, banned)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrProfileNotFound
	default:
		return nil
	}
}

const incrementSales = `-- name: IncrementSales
UPDATE profiles SET total_sales = total_sales + 1 WHERE id = $1
`

func (r *ProfileRepo) IncrementSales(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, incrementSales, id)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrProfileNotFound
	default:
		return nil
	}
}

func rowToProfile(row pgx.CollectableRow) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Username, &p.IsBanned, &p.TotalSales, &p.CreatedAt)
	return p, err
}
