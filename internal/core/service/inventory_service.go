package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

// ListParams carries raw listing parameters as received from a transport.
type ListParams struct {
	SearchFilter string
	Limit        int
	Offset       int
	SortBy       string
	SortOrder    string
}

type ItemPage struct {
	Items      []domain.Item
	TotalCount int
}

// InventoryService covers the catalog and the Inventory Manager.
type InventoryService struct {
	store       port.InventoryRepository
	logger      *zap.Logger
	tracer      trace.Tracer
	adjustments metric.Int64Counter
}

func NewInventoryService(store port.InventoryRepository, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InventoryService{
		store:  store,
		logger: logger.Named("inventory"),
		tracer: otel.Tracer(instrumentationName),
	}

	var err error
	s.adjustments, err = otel.Meter(instrumentationName).Int64Counter("inventory.adjustments",
		metric.WithDescription("Inventory Manager stock adjustments by action"))
	if err != nil {
		s.logger.Warn("create inventory.adjustments counter", zap.Error(err))
	}
	return s
}

// AddItems validates the whole batch before writing any entry, then upserts
// each entry by name. The result holds one item per distinct name in its
// final state. Each upsert commits on its own, so a storage fault or a stock
// overflow partway through leaves the earlier entries applied.
func (s *InventoryService) AddItems(ctx context.Context, items []domain.NewItem) ([]domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.AddItems", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	if len(items) == 0 {
		return nil, domain.NewValidationError("groceries", "at least one grocery is required")
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	index := make(map[string]int, len(items))
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		saved, err := s.store.UpsertByName(ctx, it)
		if err != nil {
			return nil, s.fault("upsert item", err)
		}

		key := strings.ToLower(saved.Name)
		if i, ok := index[key]; ok {
			out[i] = *saved
			continue
		}
		index[key] = len(out)
		out = append(out, *saved)
	}

	s.logger.Info("items added", zap.Int("count", len(out)))
	return out, nil
}

func (s *InventoryService) ListItems(ctx context.Context, p ListParams) (ItemPage, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.ListItems")
	defer span.End()

	q, err := domain.NewListQuery(p.SearchFilter, p.Limit, p.Offset, p.SortBy, p.SortOrder)
	if err != nil {
		return ItemPage{}, err
	}

	items, total, err := s.store.ListItems(ctx, q)
	if err != nil {
		return ItemPage{}, s.fault("list items", err)
	}
	return ItemPage{Items: items, TotalCount: total}, nil
}

func (s *InventoryService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, s.fault("get item", err)
	}
	return item, nil
}

func (s *InventoryService) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.UpdateItem")
	defer span.End()

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	item, err := s.store.UpdateItem(ctx, id, patch)
	if err != nil {
		return nil, s.fault("update item", err)
	}
	return item, nil
}

func (s *InventoryService) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return s.fault("delete item", err)
	}
	s.logger.Info("item deleted", zap.String("item_id", id))
	return nil
}

// AdjustStock applies an increase, decrease or set to the item's stock.
// Decrease never takes stock below zero.
func (s *InventoryService) AdjustStock(ctx context.Context, id, action string, amount int) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.AdjustStock", trace.WithAttributes(
		attribute.String("item.id", id),
		attribute.String("action", action),
	))
	defer span.End()

	a, err := domain.ParseStockAction(action)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateStockAmount("amount", amount); err != nil {
		return nil, err
	}

	item, err := s.store.AdjustStock(ctx, id, a, amount)
	if err != nil {
		return nil, s.fault("adjust stock", err)
	}

	if s.adjustments != nil {
		s.adjustments.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(a))))
	}
	s.logger.Info("stock adjusted",
		zap.String("item_id", id),
		zap.String("action", string(a)),
		zap.Int("amount", amount),
		zap.Int("stock", item.Stock),
	)
	return item, nil
}

// fault passes domain errors through and hides anything else.
func (s *InventoryService) fault(op string, err error) error {
	if _, ok := domain.AsError(err); ok {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return domain.Transaction()
}
