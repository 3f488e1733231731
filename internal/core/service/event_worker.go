package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

const publishTimeout = 5 * time.Second

// EventWorkers drains the committed-order queue into a publisher.
type EventWorkers struct {
	wg sync.WaitGroup
}

// StartEventWorkers starts n workers that publish every order read from queue
// until it is closed. A failed publish is logged; the order itself is already
// committed and is never rolled back.
func StartEventWorkers(queue <-chan domain.Order, publisher port.EventPublisher, n int, logger *zap.Logger) *EventWorkers {
	if n <= 0 {
		n = 1
	}
	w := &EventWorkers{}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			workerLoop(id, queue, publisher, logger)
		}(i)
	}
	logger.Info("started event workers", zap.Int("count", n))
	return w
}

// Wait blocks until the queue is closed and every worker has drained it.
func (w *EventWorkers) Wait() {
	w.wg.Wait()
}

func workerLoop(id int, queue <-chan domain.Order, publisher port.EventPublisher, logger *zap.Logger) {
	for order := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.PublishOrderPlaced(ctx, order); err != nil {
			logger.Warn("failed to publish order event",
				zap.Int("worker", id),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		} else {
			logger.Debug("published order event", zap.Int("worker", id), zap.String("order_id", order.ID))
		}

		cancel()
	}
}
