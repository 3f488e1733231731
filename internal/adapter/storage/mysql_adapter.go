package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/port"
)

const (
	errDuplicateEntry = 1062
	errOutOfRange     = 1264
)

const itemColumns = `id, name, price, stock, unit, version, created_at, updated_at`

var sortColumns = map[domain.SortField]string{
	domain.SortByName:      "name",
	domain.SortByPrice:     "price",
	domain.SortByStock:     "stock",
	domain.SortByUnit:      "unit",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
}

type itemRow struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	Unit      string          `db:"unit"`
	Version   int             `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r itemRow) toDomain() *domain.Item {
	return &domain.Item{
		ID:        r.ID,
		Name:      r.Name,
		Price:     r.Price,
		Stock:     r.Stock,
		Unit:      r.Unit,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type orderRow struct {
	ID         string          `db:"id"`
	UserID     string          `db:"user_id"`
	TotalPrice decimal.Decimal `db:"total_price"`
	CreatedAt  time.Time       `db:"created_at"`
}

type orderLineRow struct {
	OrderID         string          `db:"order_id"`
	LineNo          int             `db:"line_no"`
	ItemID          string          `db:"item_id"`
	Quantity        int             `db:"quantity"`
	PriceAtPurchase decimal.Decimal `db:"price_at_purchase"`
}

// MySQLAdapter implements port.Store on InnoDB. The DSN must set parseTime=true.
type MySQLAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ port.Store = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *MySQLAdapter) UpsertByName(ctx context.Context, in domain.NewItem) (*domain.Item, error) {
	now := m.now()
	name := strings.TrimSpace(in.Name)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var current int
	err = tx.GetContext(ctx, &current, `SELECT stock FROM items WHERE name = ? FOR UPDATE`, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "lock item by name")
	default:
		if _, err := domain.AccumulateStock(current, in.Stock); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, name, price, stock, unit, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE
			stock = stock + VALUES(stock),
			price = VALUES(price),
			version = version + 1,
			updated_at = VALUES(updated_at)`,
		uuid.NewString(), name, in.Price, in.Stock, strings.TrimSpace(in.Unit), now, now,
	)
	if isOutOfRange(err) {
		return nil, domain.NewValidationError("stock", "stock out of range")
	}
	if err != nil {
		return nil, errors.Wrap(err, "upsert item")
	}

	var row itemRow
	if err := tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE name = ?`, name); err != nil {
		return nil, errors.Wrap(err, "query upserted item")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return row.toDomain(), nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var row itemRow
	err := m.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query item")
	}
	return row.toDomain(), nil
}

func (m *MySQLAdapter) GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build items query")
	}

	var rows []itemRow
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "query items")
	}
	for _, r := range rows {
		out[r.ID] = *r.toDomain()
	}
	return out, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context, q domain.ListQuery) ([]domain.Item, int, error) {
	where := ""
	var args []any
	if q.NameContains != "" {
		where = ` WHERE LOWER(name) LIKE ? ESCAPE '\\'`
		args = append(args, "%"+escapeLike(q.NameContains)+"%")
	}

	var total int
	if err := m.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM items`+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "count items")
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if q.SortOrder == domain.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM items%s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`,
		itemColumns, where, column, direction)

	var rows []itemRow
	if err := m.db.SelectContext(ctx, &rows, query, append(args, q.Limit, q.Offset)...); err != nil {
		return nil, 0, errors.Wrap(err, "list items")
	}

	items := make([]domain.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, *r.toDomain())
	}
	return items, total, nil
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.Item, error) {
	var updated *domain.Item
	err := m.lockItem(ctx, id, func(tx *sqlx.Tx, item *domain.Item) error {
		patch.Apply(item)
		item.Version++
		item.UpdatedAt = m.now()

		_, err := tx.ExecContext(ctx, `
			UPDATE items SET name = ?, price = ?, stock = ?, version = ?, updated_at = ?
			WHERE id = ?`,
			item.Name, item.Price, item.Stock, item.Version, item.UpdatedAt, item.ID,
		)
		if isDuplicateEntry(err) {
			return domain.NewValidationError("name", "an item with this name already exists")
		}
		if isOutOfRange(err) {
			return domain.NewValidationError("stock", "stock out of range")
		}
		if err != nil {
			return errors.Wrap(err, "update item")
		}
		updated = item
		return nil
	})
	return updated, err
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("item", id)
	}
	return nil
}

func (m *MySQLAdapter) AdjustStock(ctx context.Context, id string, action domain.StockAction, amount int) (*domain.Item, error) {
	var updated *domain.Item
	err := m.lockItem(ctx, id, func(tx *sqlx.Tx, item *domain.Item) error {
		stock, err := action.Apply(item.Stock, amount)
		if err != nil {
			return err
		}
		item.Stock = stock
		item.Version++
		item.UpdatedAt = m.now()

		_, err = tx.ExecContext(ctx, `
			UPDATE items SET stock = ?, version = ?, updated_at = ?
			WHERE id = ?`,
			item.Stock, item.Version, item.UpdatedAt, item.ID,
		)
		if err != nil {
			return errors.Wrap(err, "update stock")
		}
		updated = item
		return nil
	})
	return updated, err
}

// lockItem runs fn with the item's row locked for the rest of the transaction.
func (m *MySQLAdapter) lockItem(ctx context.Context, id string, fn func(tx *sqlx.Tx, item *domain.Item) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var row itemRow
	err = tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound("item", id)
	}
	if err != nil {
		return errors.Wrap(err, "lock item")
	}

	if err := fn(tx, row.toDomain()); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var header orderRow
	err := m.db.GetContext(ctx, &header, `SELECT id, user_id, total_price, created_at FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	orders, err := m.attachLines(ctx, []orderRow{header})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var headers []orderRow
	err := m.db.SelectContext(ctx, &headers, `
		SELECT id, user_id, total_price, created_at FROM orders
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	if len(headers) == 0 {
		return []domain.Order{}, nil
	}
	return m.attachLines(ctx, headers)
}

func (m *MySQLAdapter) attachLines(ctx context.Context, headers []orderRow) ([]domain.Order, error) {
	ids := make([]string, 0, len(headers))
	for _, h := range headers {
		ids = append(ids, h.ID)
	}

	query, args, err := sqlx.In(`
		SELECT order_id, line_no, item_id, quantity, price_at_purchase FROM order_lines
		WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build order lines query")
	}

	var lines []orderLineRow
	if err := m.db.SelectContext(ctx, &lines, m.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "query order lines")
	}

	byOrder := make(map[string][]domain.OrderLine, len(headers))
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], domain.OrderLine{
			ItemID:          l.ItemID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase,
		})
	}

	orders := make([]domain.Order, 0, len(headers))
	for _, h := range headers {
		orders = append(orders, domain.Order{
			ID:         h.ID,
			UserID:     h.UserID,
			TotalPrice: h.TotalPrice,
			CreatedAt:  h.CreatedAt,
			Lines:      byOrder[h.ID],
		})
	}
	return orders, nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlOrderTx{tx: tx, now: m.now}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

type mysqlOrderTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *mysqlOrderTx) ReserveForOrder(ctx context.Context, lines []domain.OrderLine) error {
	demand := domain.Demand(lines)
	ids := make([]string, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}

	// ORDER BY id makes concurrent reservations lock rows in the same order
	query, args, err := sqlx.In(`SELECT id, stock FROM items WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return errors.Wrap(err, "build lock query")
	}

	var locked []struct {
		ID    string `db:"id"`
		Stock int    `db:"stock"`
	}
	if err := t.tx.SelectContext(ctx, &locked, t.tx.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "lock items")
	}

	stock := make(map[string]int, len(locked))
	for _, r := range locked {
		stock[r.ID] = r.Stock
	}

	checked := make(map[string]bool, len(demand))
	for _, l := range lines {
		if checked[l.ItemID] {
			continue
		}
		checked[l.ItemID] = true

		current, ok := stock[l.ItemID]
		if !ok {
			return domain.ItemNotFound(l.ItemID)
		}
		if current < demand[l.ItemID] {
			return domain.InsufficientStock(l.ItemID)
		}
	}

	now := t.now()
	for _, l := range lines {
		qty, pending := demand[l.ItemID]
		if !pending {
			continue
		}
		delete(demand, l.ItemID)

		result, err := t.tx.ExecContext(ctx, `
			UPDATE items
			SET stock = stock - ?, version = version + 1, updated_at = ?
			WHERE id = ? AND stock >= ?`,
			qty, now, l.ItemID, qty,
		)
		if err != nil {
			return errors.Wrap(err, "decrement stock")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.InsufficientStock(l.ItemID)
		}
	}
	return nil
}

func (t *mysqlOrderTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_price, created_at)
		VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.TotalPrice, order.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, l := range order.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, item_id, quantity, price_at_purchase)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, i+1, l.ItemID, l.Quantity, l.PriceAtPurchase,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order line %d", i+1)
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

func isOutOfRange(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errOutOfRange
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
