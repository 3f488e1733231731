package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

// LogPublisher records order events in the log. It stands in for Kafka when
// no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	p.logger.Info(EventOrderPlaced,
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("lines", len(order.Lines)),
		zap.String("total", order.TotalPrice.StringFixed(domain.PriceScale)),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
