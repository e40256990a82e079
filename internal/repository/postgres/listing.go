package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

type ListingRepo struct {
	DB DBTX
}

const createListing = `-- name: CreateListing
INSERT INTO listings (id, seller_id, title, price, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, seller_id, title, price, status, created_at, updated_at
`

func (r *ListingRepo) CreateListing(ctx context.Context, sellerID uuid.UUID, price decimal.Decimal, opts ...repository.CreateListingOption) (models.Listing, error) {
	now := time.Now()

	// Listing with defaults
	l := models.Listing{
		ID:        uuid.New(),
		SellerID:  sellerID,
		Price:     price,
		Status:    models.ListingStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, option := range opts {
		option(&l)
	}

	rows, _ := r.DB.Query(ctx, createListing, l.ID, l.SellerID, l.Title, l.Price, l.Status, l.CreatedAt, l.UpdatedAt)
	l, err := pgx.CollectOneRow(rows, rowToListing)
	if err != nil {
		return l, fmt.Errorf("db error: %w", err)
	}

	return l, nil
}

const getListing = `-- name: GetListing
SELECT id, seller_id, title, price, status, created_at, updated_at
FROM listings
WHERE id = $1
`

func (r *ListingRepo) GetListing(ctx context.Context, id uuid.UUID) (models.Listing, error) {
	rows, _ := r.DB.Query(ctx, getListing, id)
	listing, err := pgx.CollectOneRow(rows, rowToListing)

	switch {
	case err == nil:
		return listing, nil
	case errors.Is(err, pgx.ErrNoRows):
		return listing, apperrors.ErrListingNotFound
	default:
		return listing, fmt.Errorf("db error: %w", err)
	}
}

const setListingStatus = `-- name: SetListingStatus
UPDATE listings SET status = $2, updated_at = now() WHERE id = $1
`

func (r *ListingRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.DB.Exec(ctx, setListingStatus, id, status)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrListingNotFound
	default:
		return nil
	}
}

func rowToListing(row pgx.CollectableRow) (models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Price, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
