package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/models"
)

// Profile repository interface
type ProfileRepo interface {
	CreateProfile(ctx context.Context, id uuid.UUID, username string) (models.Profile, error)

	// If profile not found must return apperrors.ErrProfileNotFound
	GetProfile(ctx context.Context, id uuid.UUID) (models.Profile, error)

	SetBanned(ctx context.Context, id uuid.UUID, banned bool) error

	// Atomically add one to profile total sales
	// If profile not found must return apperrors.ErrProfileNotFound
	IncrementSales(ctx context.Context, id uuid.UUID) error
}

// Wallet repository interface
type WalletRepo interface {
	// Create zero balance wallet
	// If the user has a wallet already must return apperrors.ErrWalletExists
	CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// If wallet not found must return apperrors.ErrWalletNotFound
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// Replace the balance only if the stored version still equals expectedVersion
	// The version is incremented on success
	// If the version differs (or the wallet is gone) must return apperrors.ErrWalletVersionConflict
	// If balance is negative must return apperrors.ErrInsufficientFunds
	UpdateBalance(ctx context.Context, userID uuid.UUID, expectedVersion int64, balance decimal.Decimal) (models.Wallet, error)
}

type CreateListingOption func(*models.Listing)

func WithListingStatus(status string) CreateListingOption {
	return func(l *models.Listing) {
		l.Status = status
	}
}

func WithListingTitle(title string) CreateListingOption {
	return func(l *models.Listing) {
		l.Title = title
	}
}

// Listing repository interface
type ListingRepo interface {
	CreateListing(ctx context.Context, sellerID uuid.UUID, price decimal.Decimal, opts ...CreateListingOption) (models.Listing, error)

	// If listing not found must return apperrors.ErrListingNotFound
	GetListing(ctx context.Context, id uuid.UUID) (models.Listing, error)

	// If listing not found must return apperrors.ErrListingNotFound
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

type ListOrdersOpts struct {
	BuyerID   *uuid.UUID
	ListingID *uuid.UUID

	// Empty means any status
	Statuses []string

	// Only orders whose listing currently has the status
	ListingStatus *string

	// Only orders created strictly before the time
	CreatedBefore *time.Time

	// Zero means no limit
	Limit int
}

// Order repository interface
type OrderRepo interface {
	// Store the order as is
	// If the listing has a completed order already must return apperrors.ErrListingSold
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)

	// If order not found must return apperrors.ErrOrderNotFound
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	// If order not found must return apperrors.ErrOrderNotFound
	SetStatus(ctx context.Context, id uuid.UUID, status string) error

	// List orders ordered by creation time, newest first
	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)
}

// BalanceKey repository interface
type BalanceKeyRepo interface {
	// Code is normalized before storing
	// If the code exists must return apperrors.ErrBalanceKeyExists
	CreateBalanceKey(ctx context.Context, code string, amount decimal.Decimal) (models.BalanceKey, error)

	// Code has to be normalized already
	// If key not found must return apperrors.ErrBalanceKeyNotFound
	GetByCode(ctx context.Context, code string) (models.BalanceKey, error)

	// Flip is_used only if it is not set yet
	// If the key is used already must return apperrors.ErrAlreadyUsed
	// If key not found must return apperrors.ErrBalanceKeyNotFound
	MarkUsed(ctx context.Context, id uuid.UUID, userID uuid.UUID, usedAt time.Time) (models.BalanceKey, error)
}

// Storage groups repositories sharing one connection
// No cross-repository transaction is exposed: callers compensate on their own
type Storage interface {
	Profile() ProfileRepo
	Wallet() WalletRepo
	Listing() ListingRepo
	Order() OrderRepo
	BalanceKey() BalanceKeyRepo
}
