// Package purchase moves the price of a listing from the buyer wallet to the seller wallet.
//
// There is no transaction spanning the stores: the purchase runs as a saga and every applied
// money movement is compensated if a later fatal step fails.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
	"github.com/nkiryanov/walletmart/internal/saga"
	"github.com/nkiryanov/walletmart/internal/service/balance"
)

const (
	StepCreateOrder    = "create order"
	StepDebitBuyer     = "debit buyer"
	StepCreditSeller   = "credit seller"
	StepMarkSold       = "mark listing sold"
	StepIncrementSales = "increment seller sales"
)

type Coordinator struct {
	storage repository.Storage
	runner  *saga.Runner
	logger  logger.Logger

	retries int
	now     func() time.Time
}

type Option func(*Coordinator)

// Max re-reads of a wallet after a concurrent write, balance.DefaultRetries by default
func WithRetries(n int) Option {
	return func(c *Coordinator) {
		c.retries = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(storage repository.Storage, l logger.Logger, opts ...Option) *Coordinator {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	c := &Coordinator{
		storage: storage,
		runner:  saga.NewRunner(l),
		logger:  l,
		retries: balance.DefaultRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Snapshot of everything the purchase depends on, read before any mutation
type precondition struct {
	listing models.Listing
	buyer   models.Wallet
	seller  models.Wallet
}

// Purchase buys the listing for the buyer.
//
// Precondition failures are returned as is and nothing is changed:
//   - apperrors.ErrUnauthenticated, apperrors.ErrBanned for the buyer profile
//   - *apperrors.NotFoundError for the listing, buyer wallet or seller wallet
//   - *apperrors.InvalidStateError if the listing is not active or belongs to the buyer
//   - apperrors.ErrInsufficientFunds
//
// Any failed store call is returned as *apperrors.StoreFailureError.
func (c *Coordinator) Purchase(ctx context.Context, buyerID uuid.UUID, listingID uuid.UUID) (models.Order, error) {
	l := c.logger.With("buyer_id", buyerID, "listing_id", listingID)

	pre, err := c.check(ctx, buyerID, listingID)
	if err != nil {
		l.Debug("Purchase rejected", "error", err)
		return models.Order{}, err
	}

	now := c.now()
	order := models.Order{
		ID:          uuid.New(),
		BuyerID:     buyerID,
		SellerID:    pre.listing.SellerID,
		ListingID:   listingID,
		Amount:      pre.listing.Price,
		Status:      models.OrderStatusCompleted,
		CompletedAt: now,
		CreatedAt:   now,
	}
	price := pre.listing.Price
	wallets := c.storage.Wallet()

	// Buyer wallet right after the debit, compensation starts from it
	var debited models.Wallet

	err = c.runner.Run(ctx, "purchase",
		saga.Step{
			Name: StepCreateOrder,
			Action: func(ctx context.Context) error {
				var err error
				order, err = c.storage.Order().CreateOrder(ctx, order)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return c.discardOrder(ctx, l, order.ID)
			},
		},
		saga.Step{
			Name: StepDebitBuyer,
			Action: func(ctx context.Context) error {
				var err error
				debited, err = balance.Adjust(ctx, wallets, pre.buyer, price.Neg(), c.retries)
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := balance.Adjust(ctx, wallets, debited, price, c.retries)
				return err
			},
		},
		saga.Step{
			Name: StepCreditSeller,
			Action: func(ctx context.Context) error {
				_, err := balance.Adjust(ctx, wallets, pre.seller, price, c.retries)
				return err
			},
		},
		saga.Step{
			Name:       StepMarkSold,
			BestEffort: true,
			Action: func(ctx context.Context) error {
				return c.storage.Listing().SetStatus(ctx, listingID, models.ListingStatusSold)
			},
		},
		saga.Step{
			Name:       StepIncrementSales,
			BestEffort: true,
			Action: func(ctx context.Context) error {
				return c.storage.Profile().IncrementSales(ctx, order.SellerID)
			},
		},
	)
	if err != nil {
		err = c.translate(err)

		var storeErr *apperrors.StoreFailureError
		if errors.As(err, &storeErr) && !storeErr.Compensated() {
			l.Error("Purchase left data inconsistent, manual reconciliation required",
				"order_id", order.ID,
				"seller_id", order.SellerID,
				"amount", price.String(),
				"error", err,
			)
		}
		return models.Order{}, err
	}

	l.Info("Purchase completed", "order_id", order.ID, "seller_id", order.SellerID, "amount", price.String())
	return order, nil
}

// Remove order of a rolled back purchase.
// If the row can't be removed it is marked failed, so it never counts as a sale.
func (c *Coordinator) discardOrder(ctx context.Context, l logger.Logger, orderID uuid.UUID) error {
	delErr := c.storage.Order().DeleteOrder(ctx, orderID)
	if delErr == nil {
		return nil
	}

	if err := c.storage.Order().SetStatus(ctx, orderID, models.OrderStatusFailed); err != nil {
		return errors.Join(delErr, fmt.Errorf("mark order failed: %w", err))
	}

	l.Warn("Order not removed, marked failed", "order_id", orderID, "error", delErr)
	return nil
}

func (c *Coordinator) check(ctx context.Context, buyerID uuid.UUID, listingID uuid.UUID) (precondition, error) {
	var pre precondition

	profile, err := c.storage.Profile().GetProfile(ctx, buyerID)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
		return pre, apperrors.ErrUnauthenticated
	case err != nil:
		return pre, apperrors.StoreFailure("load buyer profile", err)
	case profile.IsBanned:
		return pre, apperrors.ErrBanned
	}

	pre.listing, err = c.storage.Listing().GetListing(ctx, listingID)
	switch {
	case errors.Is(err, apperrors.ErrListingNotFound):
		return pre, apperrors.NotFound("listing")
	case err != nil:
		return pre, apperrors.StoreFailure("load listing", err)
	case pre.listing.Status != models.ListingStatusActive:
		return pre, apperrors.InvalidState("listing not active")
	case pre.listing.SellerID == buyerID:
		return pre, apperrors.InvalidState("self-purchase")
	}

	pre.buyer, err = c.storage.Wallet().GetWallet(ctx, buyerID)
	switch {
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return pre, apperrors.NotFound("wallet")
	case err != nil:
		return pre, apperrors.StoreFailure("load buyer wallet", err)
	case pre.buyer.Balance.LessThan(pre.listing.Price):
		return pre, apperrors.ErrInsufficientFunds
	}

	pre.seller, err = c.storage.Wallet().GetWallet(ctx, pre.listing.SellerID)
	switch {
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return pre, apperrors.NotFound("seller wallet")
	case err != nil:
		return pre, apperrors.StoreFailure("load seller wallet", err)
	}

	return pre, nil
}

// Turn failed saga into caller facing error
func (c *Coordinator) translate(err error) error {
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) {
		return apperrors.StoreFailure("purchase", err)
	}

	if sagaErr.CompensationErr == nil {
		switch {
		case errors.Is(sagaErr.Err, apperrors.ErrListingSold):
			// Somebody bought the listing between the precondition read and the order insert
			return apperrors.InvalidState("listing not active")
		case errors.Is(sagaErr.Err, apperrors.ErrInsufficientFunds):
			// Balance dropped below the price while retrying the debit
			return apperrors.ErrInsufficientFunds
		}
	}

	return &apperrors.StoreFailureError{
		Step:            sagaErr.Step,
		Err:             sagaErr.Err,
		CompensationErr: sagaErr.CompensationErr,
	}
}
