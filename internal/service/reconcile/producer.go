package reconcile

import (
	"context"
	"time"

	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

type Producer struct {
	interval    time.Duration
	gracePeriod time.Duration
	batchSize   int

	orders repository.OrderRepo
	now    func() time.Time
	logger logger.Logger
}

// Completed orders whose listing is still active, old enough to not race a running purchase
// Orders of rolled back purchases are marked failed and never picked
func (p *Producer) pending(ctx context.Context) ([]models.Order, error) {
	active := models.ListingStatusActive
	before := p.now().Add(-p.gracePeriod)

	return p.orders.ListOrders(ctx, repository.ListOrdersOpts{
		Statuses:      []string{models.OrderStatusCompleted},
		ListingStatus: &active,
		CreatedBefore: &before,
		Limit:         p.batchSize,
	})
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				orders, err := p.pending(ctx)
				if err != nil {
					p.logger.Error("Failed to list orders", "error", err)
					continue
				}
				if len(orders) > 0 {
					p.logger.Info("Found orders with active listing", "count", len(orders))
				}

				for _, order := range orders {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending orders")
						return
					case out <- order:
					}
				}
			}
		}
	}()

	return idleStopped
}
