// Package reconcile repairs listings left active after a completed purchase.
//
// Marking the listing sold is a best-effort purchase step: when it fails the
// order is committed and the listing stays active. The processor periodically
// picks such orders and flips their listings to sold.
package reconcile

import (
	"context"
	"time"

	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

const (
	DefaultInterval = time.Minute // Interval between order scans

	defaultCountWorkers = 4   // Number of workers repairing listings
	defaultBatchSize    = 100 // Orders fetched per scan

	// Orders younger than this may still belong to a running purchase which can be compensated
	defaultGracePeriod = time.Minute
)

type Option func(*Processor)

func WithInterval(d time.Duration) Option {
	return func(p *Processor) {
		p.producer.interval = d
	}
}

func WithGracePeriod(d time.Duration) Option {
	return func(p *Processor) {
		p.producer.gracePeriod = d
	}
}

func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.consumer.countWorkers = n
	}
}

type Processor struct {
	consumer *Consumer
	producer *Producer
}

func New(storage repository.Storage, l logger.Logger, opts ...Option) *Processor {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	p := &Processor{
		consumer: &Consumer{
			countWorkers: defaultCountWorkers,
			listings:     storage.Listing(),
			logger:       l,
		},
		producer: &Producer{
			interval:    DefaultInterval,
			gracePeriod: defaultGracePeriod,
			batchSize:   defaultBatchSize,
			orders:      storage.Order(),
			now:         time.Now,
			logger:      l,
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process runs producer and consumers until ctx is done
// The returned channel is closed when every goroutine stopped
func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	producerStopped := p.producer.Produce(ctx, orderChan)
	consumerStopped := p.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(orderChan)
		<-consumerStopped
		p.consumer.logger.Debug("Reconcile processor stopped")
	}()

	return idleStopped
}
