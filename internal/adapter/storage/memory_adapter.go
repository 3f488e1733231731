package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

// MemoryAdapter is a process-local port.Store. Snapshot reads share the read
// lock; every write, including a whole order transaction, holds the write lock.
type MemoryAdapter struct {
	mu     sync.RWMutex
	items  map[string]domain.Item
	byName map[string]string // lower-cased name -> id
	orders map[string]domain.Order
	byUser map[string][]string
	now    func() time.Time
}

var _ port.Store = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items:  make(map[string]domain.Item),
		byName: make(map[string]string),
		orders: make(map[string]domain.Order),
		byUser: make(map[string][]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryAdapter) UpsertByName(ctx context.Context, in domain.NewItem) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	name := strings.TrimSpace(in.Name)
	key := strings.ToLower(name)

	if id, ok := m.byName[key]; ok {
		item := m.items[id]
		stock, err := domain.AccumulateStock(item.Stock, in.Stock)
		if err != nil {
			return nil, err
		}
		item.Stock = stock
		item.Price = in.Price
		item.Version++
		item.UpdatedAt = now
		m.items[id] = item
		return &item, nil
	}

	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      name,
		Price:     in.Price,
		Stock:     in.Stock,
		Unit:      strings.TrimSpace(in.Unit),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.items[item.ID] = item
	m.byName[key] = item.ID
	return &item, nil
}

func (m *MemoryAdapter) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, domain.NotFound("item", id)
	}
	return &item, nil
}

func (m *MemoryAdapter) GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (m *MemoryAdapter) ListItems(ctx context.Context, q domain.ListQuery) ([]domain.Item, int, error) {
	m.mu.RLock()
	matched := make([]domain.Item, 0, len(m.items))
	for _, item := range m.items {
		if q.NameContains == "" || strings.Contains(strings.ToLower(item.Name), q.NameContains) {
			matched = append(matched, item)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less, equal := compareItems(matched[i], matched[j], q.SortBy)
		if equal {
			return matched[i].ID < matched[j].ID
		}
		if q.SortOrder == domain.SortDesc {
			return !less
		}
		return less
	})

	total := len(matched)
	if q.Offset >= total {
		return []domain.Item{}, total, nil
	}
	end := min(total, q.Offset+q.Limit)
	return matched[q.Offset:end], total, nil
}

// compareItems reports whether a sorts before b on field, and whether they tie.
func compareItems(a, b domain.Item, field domain.SortField) (less, equal bool) {
	switch field {
	case domain.SortByPrice:
		c := a.Price.Cmp(b.Price)
		return c < 0, c == 0
	case domain.SortByStock:
		return a.Stock < b.Stock, a.Stock == b.Stock
	case domain.SortByUnit:
		return a.Unit < b.Unit, a.Unit == b.Unit
	case domain.SortByCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case domain.SortByUpdatedAt:
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	default:
		return a.Name < b.Name, a.Name == b.Name
	}
}

func (m *MemoryAdapter) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, domain.NotFound("item", id)
	}

	oldKey := strings.ToLower(item.Name)
	patch.Apply(&item)
	newKey := strings.ToLower(item.Name)
	if newKey != oldKey {
		if _, taken := m.byName[newKey]; taken {
			return nil, domain.NewValidationError("name", "an item with this name already exists")
		}
		delete(m.byName, oldKey)
		m.byName[newKey] = id
	}

	item.Version++
	item.UpdatedAt = m.now()
	m.items[id] = item
	return &item, nil
}

func (m *MemoryAdapter) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return domain.NotFound("item", id)
	}
	delete(m.items, id)
	delete(m.byName, strings.ToLower(item.Name))
	return nil
}

func (m *MemoryAdapter) AdjustStock(ctx context.Context, id string, action domain.StockAction, amount int) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, domain.NotFound("item", id)
	}
	stock, err := action.Apply(item.Stock, amount)
	if err != nil {
		return nil, err
	}
	item.Stock = stock
	item.Version++
	item.UpdatedAt = m.now()
	m.items[id] = item
	return &item, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	return cloneOrder(order), nil
}

func (m *MemoryAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byUser[userID]
	out := make([]domain.Order, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *cloneOrder(m.orders[ids[i]]))
	}
	return out, nil
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m, stock: make(map[string]int)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// a transaction that outlived its deadline must not commit
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "commit tx")
	}

	now := m.now()
	for id, stock := range tx.stock {
		item := m.items[id]
		item.Stock = stock
		item.Version++
		item.UpdatedAt = now
		m.items[id] = item
	}
	for _, order := range tx.orders {
		m.orders[order.ID] = order
		m.byUser[order.UserID] = append(m.byUser[order.UserID], order.ID)
	}
	return nil
}

// memoryTx stages writes; WithinTx applies them on success. The owning
// MemoryAdapter's write lock is held for the lifetime of the tx.
type memoryTx struct {
	m      *MemoryAdapter
	stock  map[string]int
	orders []domain.Order
}

func (tx *memoryTx) current(id string) (int, bool) {
	if s, ok := tx.stock[id]; ok {
		return s, true
	}
	item, ok := tx.m.items[id]
	return item.Stock, ok
}

func (tx *memoryTx) ReserveForOrder(ctx context.Context, lines []domain.OrderLine) error {
	demand := domain.Demand(lines)

	checked := make(map[string]bool, len(demand))
	for _, l := range lines {
		if checked[l.ItemID] {
			continue
		}
		checked[l.ItemID] = true

		stock, ok := tx.current(l.ItemID)
		if !ok {
			return domain.ItemNotFound(l.ItemID)
		}
		if stock < demand[l.ItemID] {
			return domain.InsufficientStock(l.ItemID)
		}
	}

	for id, qty := range demand {
		stock, _ := tx.current(id)
		tx.stock[id] = stock - qty
	}
	return nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if _, exists := tx.m.orders[order.ID]; exists {
		return errors.Errorf("order %s already exists", order.ID)
	}
	tx.orders = append(tx.orders, *cloneOrder(*order))
	return nil
}

func cloneOrder(o domain.Order) *domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &o
}
