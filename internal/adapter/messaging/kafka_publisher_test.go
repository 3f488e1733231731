package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func sampleOrder() domain.Order {
	return domain.Order{
		ID:         "order-1",
		UserID:     "user-1",
		TotalPrice: decimal.RequireFromString("10"),
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Lines: []domain.OrderLine{
			{ItemID: "apples", Quantity: 4, PriceAtPurchase: decimal.RequireFromString("2.5")},
		},
	}
}

func TestPublishOrderPlaced_WritesKeyedEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w)

	require.NoError(t, p.PublishOrderPlaced(context.Background(), sampleOrder()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))

	var ev OrderPlaced
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventOrderPlaced, ev.Type)
	assert.Equal(t, "10.00", ev.TotalPrice)
	require.Len(t, ev.Lines, 1)
	assert.Equal(t, "2.50", ev.Lines[0].PriceAtPurchase)
	assert.NotEmpty(t, ev.EventID)
}

func TestPublishOrderPlaced_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "place order")
	defer span.End()

	w := &fakeWriter{}
	require.NoError(t, newKafkaPublisher(w).PublishOrderPlaced(ctx, sampleOrder()))

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventOrderPlaced, headers["event_type"])
	assert.Contains(t, headers["traceparent"], span.SpanContext().TraceID().String())
}

func TestPublishOrderPlaced_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}

	err := newKafkaPublisher(w).PublishOrderPlaced(context.Background(), sampleOrder())
	assert.ErrorContains(t, err, "order-1")
}
