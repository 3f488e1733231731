package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

const instrumentationName = "github.com/rl1809/grocery-store/internal/core/service"

const (
	defaultTxTimeout = 5 * time.Second
	defaultQueueSize = 1024
)

type OrderOptions struct {
	// Cache enables request-id deduplication. Nil disables it.
	Cache     port.CacheRepository
	Logger    *zap.Logger
	TxTimeout time.Duration
	QueueSize int
}

type OrderService struct {
	store     port.Store
	cache     port.CacheRepository
	logger    *zap.Logger
	txTimeout time.Duration
	now       func() time.Time

	tracer   trace.Tracer
	placed   metric.Int64Counter
	rejected metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	events chan domain.Order
}

func NewOrderService(store port.Store, opts OrderOptions) *OrderService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = defaultTxTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	s := &OrderService{
		store:     store,
		cache:     opts.Cache,
		logger:    opts.Logger.Named("order"),
		txTimeout: opts.TxTimeout,
		now:       func() time.Time { return time.Now().UTC() },
		tracer:    otel.Tracer(instrumentationName),
		events:    make(chan domain.Order, opts.QueueSize),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.placed, err = meter.Int64Counter("orders.placed", metric.WithDescription("Committed orders")); err != nil {
		s.logger.Warn("create orders.placed counter", zap.Error(err))
	}
	if s.rejected, err = meter.Int64Counter("orders.rejected", metric.WithDescription("Rejected order placements by error code")); err != nil {
		s.logger.Warn("create orders.rejected counter", zap.Error(err))
	}
	return s
}

// PlaceOrder validates, prices and commits an order. Stock decrements and the
// order record are written in one transaction or not at all.
func (s *OrderService) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (_ *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer func() {
		if err != nil {
			code := string(domain.CodeOf(err))
			span.SetStatus(codes.Error, code)
			span.RecordError(err)
			if s.rejected != nil {
				s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
			}
		}
		span.End()
	}()

	if len(req.Lines) == 0 {
		return nil, domain.EmptyOrder()
	}

	if req.RequestID != "" && s.cache != nil {
		var release func()
		if release, err = s.claim(ctx, req); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				release()
			}
		}()
	}

	snapshot, err := s.store.GetItems(ctx, distinctItemIDs(req.Lines))
	if err != nil {
		return nil, s.internal(ctx, "read stock snapshot", err)
	}

	lines, total, err := PriceOrder(req.Lines, snapshot)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		TotalPrice: total,
		CreatedAt:  s.now(),
		Lines:      lines,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err = s.store.WithinTx(txCtx, func(ctx context.Context, tx port.OrderTx) error {
		if err := tx.ReserveForOrder(ctx, order.Lines); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, s.internal(ctx, "commit order", err)
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	if s.placed != nil {
		s.placed.Add(ctx, 1)
	}
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalPrice.StringFixed(domain.PriceScale)),
	)

	s.enqueue(*order)
	return order, nil
}

// claim takes the idempotency key for the request. The returned func releases
// it so a failed placement can be retried with the same request id.
func (s *OrderService) claim(ctx context.Context, req domain.PlaceOrderRequest) (func(), error) {
	key := fmt.Sprintf("order:%s:%s", req.UserID, req.RequestID)
	token := uuid.NewString()

	ok, err := s.cache.SetIdempotency(ctx, key, token)
	if err != nil {
		return nil, s.internal(ctx, "claim idempotency key", err)
	}
	if !ok {
		return nil, domain.DuplicateRequest(req.RequestID)
	}

	return func() {
		if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// GetOrder returns the order if who owns it or is an admin. Other callers get
// NOT_FOUND so order ids cannot be probed.
func (s *OrderService) GetOrder(ctx context.Context, who domain.Identity, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, s.internal(ctx, "read order", err)
	}
	if order.UserID != who.UserID && !who.IsAdmin() {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "list orders", err)
	}
	return orders, nil
}

// Events is the queue of committed orders awaiting publication. It is closed
// by Close.
func (s *OrderService) Events() <-chan domain.Order {
	return s.events
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *OrderService) enqueue(order domain.Order) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- order:
	default:
		s.logger.Warn("event queue full, dropping order notification", zap.String("order_id", order.ID))
	}
}

// internal logs the storage fault and hides it behind a generic TRANSACTION_ERROR.
func (s *OrderService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(op+" failed",
		zap.String("trace_id", trace.SpanContextFromContext(ctx).TraceID().String()),
		zap.Error(err),
	)
	return domain.Transaction()
}
