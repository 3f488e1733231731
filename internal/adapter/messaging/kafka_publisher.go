package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

const EventOrderPlaced = "order.placed"

type OrderPlaced struct {
	EventID    string           `json:"event_id"`
	Type       string           `json:"type"`
	OrderID    string           `json:"order_id"`
	UserID     string           `json:"user_id"`
	TotalPrice string           `json:"total_price"`
	CreatedAt  time.Time        `json:"created_at"`
	Lines      []OrderPlacedRow `json:"lines"`
}

type OrderPlacedRow struct {
	ItemID          string `json:"item_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

func NewOrderPlaced(order domain.Order) OrderPlaced {
	rows := make([]OrderPlacedRow, 0, len(order.Lines))
	for _, l := range order.Lines {
		rows = append(rows, OrderPlacedRow{
			ItemID:          l.ItemID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(domain.PriceScale),
		})
	}
	return OrderPlaced{
		EventID:    uuid.NewString(),
		Type:       EventOrderPlaced,
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice.StringFixed(domain.PriceScale),
		CreatedAt:  order.CreatedAt,
		Lines:      rows,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by order id, so every event of an
// order lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	tracer trace.Tracer
}

var _ port.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		tracer: otel.Tracer("github.com/rl1809/grocery-store/internal/adapter/messaging"),
	}
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	ctx, span := p.tracer.Start(ctx, "publish "+EventOrderPlaced,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("order.id", order.ID)),
	)
	defer span.End()

	value, err := json.Marshal(NewOrderPlaced(order))
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{{Key: "event_type", Value: []byte(EventOrderPlaced)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(order.ID),
		Value:   value,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "write order event %s", order.ID)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
