package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	ItemID  string `json:"itemId,omitempty"`
	Field   string `json:"field,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type GroceryInput struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock json.Number     `json:"stock"`
	Unit  string          `json:"unit"`
}

type AddGroceriesRequest struct {
	Groceries []GroceryInput `json:"groceries"`
}

type UpdateGroceryRequest struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *json.Number     `json:"stock"`
}

// ManageInventoryRequest accepts the amount as either "amount" or "stock".
type ManageInventoryRequest struct {
	Action string       `json:"action"`
	Amount *json.Number `json:"amount"`
	Stock  *json.Number `json:"stock"`
}

type OrderLineInput struct {
	ItemID   string      `json:"itemId"`
	Quantity json.Number `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items []OrderLineInput `json:"items"`
}

type GroceryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type GroceryPageResponse struct {
	Groceries  []GroceryResponse `json:"groceries"`
	TotalCount int               `json:"totalCount"`
}

type OrderLineResponse struct {
	ItemID          string `json:"itemId"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"priceAtPurchase"`
}

type OrderResponse struct {
	ID         string              `json:"id"`
	UserID     string              `json:"userId"`
	TotalPrice string              `json:"totalPrice"`
	CreatedAt  time.Time           `json:"createdAt"`
	Items      []OrderLineResponse `json:"items"`
}

func newGroceryResponse(it domain.Item) GroceryResponse {
	return GroceryResponse{
		ID:        it.ID,
		Name:      it.Name,
		Price:     it.Price.StringFixed(domain.PriceScale),
		Stock:     it.Stock,
		Unit:      it.Unit,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func newGroceryResponses(items []domain.Item) []GroceryResponse {
	out := make([]GroceryResponse, 0, len(items))
	for _, it := range items {
		out = append(out, newGroceryResponse(it))
	}
	return out
}

func newGroceryPage(p service.ItemPage) GroceryPageResponse {
	return GroceryPageResponse{Groceries: newGroceryResponses(p.Items), TotalCount: p.TotalCount}
}

func newOrderResponse(o domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineResponse{
			ItemID:          l.ItemID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(domain.PriceScale),
		})
	}
	return OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice.StringFixed(domain.PriceScale),
		CreatedAt:  o.CreatedAt,
		Items:      lines,
	}
}

// toInt reads an integral JSON number. Anything else, including a fraction,
// reports ok=false.
func toInt(n json.Number) (int, bool) {
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(v), true
}
