package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

type Consumer struct {
	countWorkers int

	listings repository.ListingRepo
	logger   logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order) {
	for {
		select {
		case <-ctx.Done():
			return

		case order, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			c.repair(ctx, order)
		}
	}
}

func (c *Consumer) repair(ctx context.Context, order models.Order) {
	l := c.logger.With("order_id", order.ID, "listing_id", order.ListingID)

	err := c.listings.SetStatus(ctx, order.ListingID, models.ListingStatusSold)
	switch {
	case err == nil:
		l.Info("Listing marked sold by reconciliation")
	case errors.Is(err, apperrors.ErrListingNotFound):
		l.Warn("Listing of completed order is gone")
	default:
		l.Error("Failed to mark listing sold", "error", err)
	}
}
