package service

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

// PriceOrder validates requested lines against a stock snapshot, in the order
// the client supplied them, and prices each line at the snapshot price.
// Quantities of repeated items are checked cumulatively. It has no side effects.
func PriceOrder(requested []domain.LineRequest, snapshot map[string]domain.Item) ([]domain.OrderLine, decimal.Decimal, error) {
	lines := make([]domain.OrderLine, 0, len(requested))
	demand := make(map[string]int, len(requested))

	for _, r := range requested {
		item, ok := snapshot[r.ItemID]
		if !ok {
			return nil, decimal.Zero, domain.ItemNotFound(r.ItemID)
		}
		if r.Quantity <= 0 {
			return nil, decimal.Zero, domain.InvalidQuantity(r.ItemID)
		}

		demand[r.ItemID] += r.Quantity
		if demand[r.ItemID] > item.Stock {
			return nil, decimal.Zero, domain.InsufficientStock(r.ItemID)
		}

		lines = append(lines, domain.OrderLine{
			ItemID:          r.ItemID,
			Quantity:        r.Quantity,
			PriceAtPurchase: item.Price,
		})
	}

	return lines, domain.SumLines(lines), nil
}

func distinctItemIDs(requested []domain.LineRequest) []string {
	seen := make(map[string]struct{}, len(requested))
	ids := make([]string, 0, len(requested))
	for _, r := range requested {
		if _, ok := seen[r.ItemID]; ok {
			continue
		}
		seen[r.ItemID] = struct{}{}
		ids = append(ids, r.ItemID)
	}
	return ids
}
