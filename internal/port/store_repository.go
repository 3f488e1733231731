package port

import (
	"context"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

type InventoryRepository interface {
	// UpsertByName inserts the item, or adds its stock to and overwrites the
	// price of an existing item with the same name.
	UpsertByName(ctx context.Context, item domain.NewItem) (*domain.Item, error)

	GetItem(ctx context.Context, id string) (*domain.Item, error)

	// GetItems reads a stock snapshot in one round trip. Unknown ids are absent
	// from the result.
	GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error)

	ListItems(ctx context.Context, q domain.ListQuery) ([]domain.Item, int, error)

	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.Item, error)

	DeleteItem(ctx context.Context, id string) error

	// AdjustStock applies an Inventory Manager action under the row lock.
	AdjustStock(ctx context.Context, id string, action domain.StockAction, amount int) (*domain.Item, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrdersByUser returns the user's orders, newest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// OrderTx is the write side of a single storage transaction.
type OrderTx interface {
	// ReserveForOrder re-checks stock for every line under lock and decrements
	// all of them, or none. It fails with domain.InsufficientStock or
	// domain.ItemNotFound naming the first failing line.
	ReserveForOrder(ctx context.Context, lines []domain.OrderLine) error

	// CreateOrder persists the header and its lines.
	CreateOrder(ctx context.Context, order *domain.Order) error
}

// Transactor runs fn in one transaction. Nothing fn wrote is visible unless fn
// returns nil and the commit succeeds.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
}

// Store is everything the core needs from the backing store.
type Store interface {
	InventoryRepository
	OrderRepository
	Transactor
}
