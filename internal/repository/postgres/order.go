package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const createOrder = `-- name: CreateOrder
INSERT INTO orders (id, buyer_id, seller_id, listing_id, amount, status, completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, buyer_id, seller_id, listing_id, amount, status, completed_at, created_at
`

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, createOrder, o.ID, o.BuyerID, o.SellerID, o.ListingID, o.Amount, o.Status, o.CompletedAt, o.CreatedAt)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "orders_completed_listing_idx" {
			return order, apperrors.ErrListingSold
		}
		return order, fmt.Errorf("db error: %w", err)
	}

	return order, nil
}

const getOrder = `-- name: GetOrder
SELECT id, buyer_id, seller_id, listing_id, amount, status, completed_at, created_at
FROM orders
WHERE id = $1
`

func (r *OrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, getOrder, id)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

const deleteOrder = `-- name: DeleteOrder
DELETE FROM orders WHERE id = $1
`

func (r *OrderRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteOrder, id)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrOrderNotFound
	default:
		return nil
	}
}

const setOrderStatus = `-- name: SetOrderStatus
UPDATE orders SET status = $2 WHERE id = $1
`

func (r *OrderRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.DB.Exec(ctx, setOrderStatus, id, status)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrOrderNotFound
	default:
		return nil
	}
}

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)

	if opts.BuyerID != nil {
		args = append(args, *opts.BuyerID)
		where = append(where, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if opts.ListingID != nil {
		args = append(args, *opts.ListingID)
		where = append(where, fmt.Sprintf("listing_id = $%d", len(args)))
	}
	if len(opts.Statuses) > 0 {
		args = append(args, opts.Statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if opts.ListingStatus != nil {
		args = append(args, *opts.ListingStatus)
		where = append(where, fmt.Sprintf("listing_id IN (SELECT id FROM listings WHERE status = $%d)", len(args)))
	}
	if opts.CreatedBefore != nil {
		args = append(args, *opts.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := "SELECT id, buyer_id, seller_id, listing_id, amount, status, completed_at, created_at FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ListingID, &o.Amount, &o.Status, &o.CompletedAt, &o.CreatedAt)
	return o, err
}
