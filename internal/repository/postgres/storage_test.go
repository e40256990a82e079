package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
	"github.com/nkiryanov/walletmart/internal/testutil"
)

func TestStorage(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Failed statement aborts the transaction, so every check that expects a db error
	// runs in its own nested transaction (savepoint)
	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.WithTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	createUser := func(t *testing.T, storage repository.Storage, username string) models.Profile {
		p, err := storage.Profile().CreateProfile(t.Context(), uuid.New(), username)
		require.NoError(t, err)
		_, err = storage.Wallet().CreateWallet(t.Context(), p.ID)
		require.NoError(t, err)
		return p
	}

	t.Run("Profile", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			profile, err := storage.Profile().CreateProfile(t.Context(), uuid.New(), "seller")
			require.NoError(t, err)
			require.False(t, profile.IsBanned)
			require.Zero(t, profile.TotalSales)
			require.NotZero(t, profile.CreatedAt)

			t.Run("get", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					got, err := storage.Profile().GetProfile(t.Context(), profile.ID)
					require.NoError(t, err)
					require.Equal(t, "seller", got.Username)

					_, err = storage.Profile().GetProfile(t.Context(), uuid.New())
					require.ErrorIs(t, err, apperrors.ErrProfileNotFound)
				})
			})

			t.Run("ban and count sales", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					require.NoError(t, storage.Profile().SetBanned(t.Context(), profile.ID, true))
					require.NoError(t, storage.Profile().IncrementSales(t.Context(), profile.ID))
					require.NoError(t, storage.Profile().IncrementSales(t.Context(), profile.ID))

					got, err := storage.Profile().GetProfile(t.Context(), profile.ID)
					require.NoError(t, err)
					require.True(t, got.IsBanned)
					require.EqualValues(t, 2, got.TotalSales)

					require.ErrorIs(t, storage.Profile().IncrementSales(t.Context(), uuid.New()), apperrors.ErrProfileNotFound)
					require.ErrorIs(t, storage.Profile().SetBanned(t.Context(), uuid.New(), true), apperrors.ErrProfileNotFound)
				})
			})

			t.Run("duplicate username", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Profile().CreateProfile(t.Context(), uuid.New(), "seller")
					require.Error(t, err)
					require.Contains(t, err.Error(), "profile already exists")
				})
			})
		})
	})

	t.Run("Wallet", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			profile, err := storage.Profile().CreateProfile(t.Context(), uuid.New(), "owner")
			require.NoError(t, err)
			wallet, err := storage.Wallet().CreateWallet(t.Context(), profile.ID)
			require.NoError(t, err)
			require.True(t, wallet.Balance.IsZero(), "new wallet must be empty")
			require.Zero(t, wallet.Version)

			t.Run("get", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					got, err := storage.Wallet().GetWallet(t.Context(), profile.ID)
					require.NoError(t, err)
					require.Equal(t, wallet.ID, got.ID)

					_, err = storage.Wallet().GetWallet(t.Context(), uuid.New())
					require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
				})
			})

			t.Run("compare and swap", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					updated, err := storage.Wallet().UpdateBalance(t.Context(), profile.ID, wallet.Version, decimal.RequireFromString("12.34"))
					require.NoError(t, err)
					require.Equal(t, "12.34", updated.Balance.StringFixed(2))
					require.Equal(t, wallet.Version+1, updated.Version)
					require.False(t, updated.UpdatedAt.Before(wallet.UpdatedAt))

					_, err = storage.Wallet().UpdateBalance(t.Context(), profile.ID, wallet.Version, decimal.RequireFromString("1"))
					require.ErrorIs(t, err, apperrors.ErrWalletVersionConflict, "stale version must be rejected")

					_, err = storage.Wallet().UpdateBalance(t.Context(), uuid.New(), 0, decimal.RequireFromString("1"))
					require.ErrorIs(t, err, apperrors.ErrWalletVersionConflict, "missing wallet can't be updated")

					_, err = storage.Wallet().UpdateBalance(t.Context(), profile.ID, updated.Version, decimal.RequireFromString("-0.01"))
					require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
				})
			})

			t.Run("second wallet", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().CreateWallet(t.Context(), profile.ID)
					require.ErrorIs(t, err, apperrors.ErrWalletExists)
				})
			})
		})
	})

	t.Run("Listing", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seller := createUser(t, storage, "seller")

			listing, err := storage.Listing().CreateListing(t.Context(), seller.ID, decimal.RequireFromString("99.90"), repository.WithListingTitle("bike"))
			require.NoError(t, err)
			require.Equal(t, models.ListingStatusActive, listing.Status)
			require.Equal(t, "bike", listing.Title)

			t.Run("get and set status", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					require.NoError(t, storage.Listing().SetStatus(t.Context(), listing.ID, models.ListingStatusSold))

					got, err := storage.Listing().GetListing(t.Context(), listing.ID)
					require.NoError(t, err)
					require.Equal(t, models.ListingStatusSold, got.Status)
					require.Equal(t, "99.90", got.Price.StringFixed(2))

					_, err = storage.Listing().GetListing(t.Context(), uuid.New())
					require.ErrorIs(t, err, apperrors.ErrListingNotFound)
					require.ErrorIs(t, storage.Listing().SetStatus(t.Context(), uuid.New(), models.ListingStatusSold), apperrors.ErrListingNotFound)
				})
			})

			t.Run("created with status", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					removed, err := storage.Listing().CreateListing(t.Context(), seller.ID, decimal.NewFromInt(1), repository.WithListingStatus(models.ListingStatusRemoved))
					require.NoError(t, err)
					require.Equal(t, models.ListingStatusRemoved, removed.Status)
				})
			})
		})
	})

	t.Run("Order", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			buyer := createUser(t, storage, "buyer")
			seller := createUser(t, storage, "seller")
			listing, err := storage.Listing().CreateListing(t.Context(), seller.ID, decimal.NewFromInt(300))
			require.NoError(t, err)

			now := time.Now().UTC().Truncate(time.Microsecond)
			newOrder := func() models.Order {
				return models.Order{
					ID:          uuid.New(),
					BuyerID:     buyer.ID,
					SellerID:    seller.ID,
					ListingID:   listing.ID,
					Amount:      listing.Price,
					Status:      models.OrderStatusCompleted,
					CompletedAt: now,
					CreatedAt:   now,
				}
			}

			t.Run("create get delete", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					order, err := storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)

					got, err := storage.Order().GetOrder(t.Context(), order.ID)
					require.NoError(t, err)
					require.Equal(t, buyer.ID, got.BuyerID)
					require.True(t, got.Amount.Equal(decimal.NewFromInt(300)))
					require.True(t, now.Equal(got.CompletedAt))

					require.NoError(t, storage.Order().DeleteOrder(t.Context(), order.ID))
					_, err = storage.Order().GetOrder(t.Context(), order.ID)
					require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
					require.ErrorIs(t, storage.Order().DeleteOrder(t.Context(), order.ID), apperrors.ErrOrderNotFound)

					// Deleted order frees the listing
					_, err = storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)
				})
			})

			t.Run("list", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					order, err := storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)

					orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{BuyerID: &buyer.ID})
					require.NoError(t, err)
					require.Len(t, orders, 1)
					require.Equal(t, order.ID, orders[0].ID)

					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{BuyerID: &seller.ID})
					require.NoError(t, err)
					require.Empty(t, orders)

					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ListingID: &listing.ID})
					require.NoError(t, err)
					require.Len(t, orders, 1)

					active, sold := models.ListingStatusActive, models.ListingStatusSold
					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ListingStatus: &active, Limit: 1})
					require.NoError(t, err)
					require.Len(t, orders, 1)
					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ListingStatus: &sold})
					require.NoError(t, err)
					require.Empty(t, orders)

					later := now.Add(time.Second)
					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{CreatedBefore: &now})
					require.NoError(t, err)
					require.Empty(t, orders)
					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{CreatedBefore: &later})
					require.NoError(t, err)
					require.Len(t, orders, 1)
				})
			})

			t.Run("set status", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					order, err := storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)

					require.NoError(t, storage.Order().SetStatus(t.Context(), order.ID, models.OrderStatusFailed))

					got, err := storage.Order().GetOrder(t.Context(), order.ID)
					require.NoError(t, err)
					require.Equal(t, models.OrderStatusFailed, got.Status)

					orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{Statuses: []string{models.OrderStatusCompleted}})
					require.NoError(t, err)
					require.Empty(t, orders)
					orders, err = storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{Statuses: []string{models.OrderStatusFailed}})
					require.NoError(t, err)
					require.Len(t, orders, 1)

					// Failed order does not hold the listing
					_, err = storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)

					require.ErrorIs(t, storage.Order().SetStatus(t.Context(), uuid.New(), models.OrderStatusFailed), apperrors.ErrOrderNotFound)
				})
			})

			t.Run("second completed order", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Order().CreateOrder(t.Context(), newOrder())
					require.NoError(t, err)

					_, err = storage.Order().CreateOrder(t.Context(), newOrder())
					require.ErrorIs(t, err, apperrors.ErrListingSold)
				})
			})
		})
	})

	t.Run("BalanceKey", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user := createUser(t, storage, "user")

			key, err := storage.BalanceKey().CreateBalanceKey(t.Context(), "  abc123 ", decimal.NewFromInt(50))
			require.NoError(t, err)
			require.Equal(t, "ABC123", key.Code, "code must be stored normalized")
			require.False(t, key.IsUsed)
			require.Nil(t, key.UsedBy)
			require.Nil(t, key.UsedAt)

			t.Run("get by code", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					got, err := storage.BalanceKey().GetByCode(t.Context(), "ABC123")
					require.NoError(t, err)
					require.Equal(t, key.ID, got.ID)

					_, err = storage.BalanceKey().GetByCode(t.Context(), "NOPE")
					require.ErrorIs(t, err, apperrors.ErrBalanceKeyNotFound)
				})
			})

			t.Run("mark used once", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					usedAt := time.Now().UTC().Truncate(time.Microsecond)

					used, err := storage.BalanceKey().MarkUsed(t.Context(), key.ID, user.ID, usedAt)
					require.NoError(t, err)
					require.True(t, used.IsUsed)
					require.Equal(t, user.ID, *used.UsedBy)
					require.True(t, usedAt.Equal(*used.UsedAt))

					_, err = storage.BalanceKey().MarkUsed(t.Context(), key.ID, user.ID, usedAt)
					require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)

					_, err = storage.BalanceKey().MarkUsed(t.Context(), uuid.New(), user.ID, usedAt)
					require.ErrorIs(t, err, apperrors.ErrBalanceKeyNotFound)
				})
			})

			t.Run("duplicate code", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.BalanceKey().CreateBalanceKey(t.Context(), "abc123", decimal.NewFromInt(1))
					require.ErrorIs(t, err, apperrors.ErrBalanceKeyExists)
				})
			})
		})
	})
}
