package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest is one (item, quantity) pair as supplied by the client.
type LineRequest struct {
	ItemID   string
	Quantity int
}

// PlaceOrderRequest is the input of order placement. RequestID is an optional
// client idempotency key.
type PlaceOrderRequest struct {
	UserID    string
	RequestID string
	Lines     []LineRequest
}

// OrderLine is a priced line. PriceAtPurchase is the unit price captured when
// the order was validated and never follows later catalog changes.
type OrderLine struct {
	ItemID          string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

func (l OrderLine) Total() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is immutable once committed.
type Order struct {
	ID         string
	UserID     string
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
	Lines      []OrderLine
}

// SumLines returns the exact sum of line totals.
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// Demand sums requested quantities per item. Callers that need client order
// should iterate the lines themselves.
func Demand(lines []OrderLine) map[string]int {
	demand := make(map[string]int, len(lines))
	for _, l := range lines {
		demand[l.ItemID] += l.Quantity
	}
	return demand
}
