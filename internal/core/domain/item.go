package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits a price may carry.
const PriceScale = 2

// MaxStock is the largest stock level an item can hold. The stock column is a
// signed 32-bit INT.
const MaxStock = math.MaxInt32

type Item struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Unit      string
	Version   int // bumped on every write
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewItem is the catalog-add input. Adding a name that already exists
// accumulates stock and overwrites the price.
type NewItem struct {
	Name  string
	Price decimal.Decimal
	Stock int
	Unit  string
}

func (n NewItem) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if strings.TrimSpace(n.Unit) == "" {
		return NewValidationError("unit", "unit is required")
	}
	if err := validatePrice(n.Price); err != nil {
		return err
	}
	return ValidateStockAmount("stock", n.Stock)
}

// ItemPatch is a partial update; nil fields are left untouched.
type ItemPatch struct {
	Name  *string
	Price *decimal.Decimal
	Stock *int
}

func (p ItemPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewValidationError("name", "name must not be empty")
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Stock != nil {
		return ValidateStockAmount("stock", *p.Stock)
	}
	return nil
}

// Apply copies the set fields onto item.
func (p ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Stock != nil {
		item.Stock = *p.Stock
	}
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return NewValidationError("price", "price must not be negative")
	}
	if !price.Equal(price.Round(PriceScale)) {
		return NewValidationError("price", "price must have at most 2 decimal places")
	}
	return nil
}

// StockAction is an Inventory Manager adjustment mode.
type StockAction string

const (
	StockIncrease StockAction = "increase"
	StockDecrease StockAction = "decrease"
	StockSet      StockAction = "set"
)

func ParseStockAction(s string) (StockAction, error) {
	switch a := StockAction(strings.ToLower(strings.TrimSpace(s))); a {
	case StockIncrease, StockDecrease, StockSet:
		return a, nil
	}
	return "", NewValidationError("action", "invalid action, use 'increase', 'decrease', or 'set'")
}

// ValidateStockAmount checks that amount fits in [0, MaxStock], reporting field.
func ValidateStockAmount(field string, amount int) error {
	if amount < 0 {
		return NewValidationError(field, field+" must not be negative")
	}
	if amount > MaxStock {
		return NewValidationError(field, fmt.Sprintf("%s must not exceed %d", field, MaxStock))
	}
	return nil
}

// AccumulateStock adds stock from a repeated catalog add to current.
func AccumulateStock(current, added int) (int, error) {
	return addStock("stock", current, added)
}

func addStock(field string, current, amount int) (int, error) {
	if err := ValidateStockAmount(field, amount); err != nil {
		return current, err
	}
	if amount > MaxStock-current {
		return current, NewValidationError(field, fmt.Sprintf("stock would exceed %d", MaxStock))
	}
	return current + amount, nil
}

// Apply returns the stock level after applying the action to current.
// Decrease clamps at zero. A result above MaxStock is a validation error on
// amount and leaves current unchanged.
func (a StockAction) Apply(current, amount int) (int, error) {
	if err := ValidateStockAmount("amount", amount); err != nil {
		return current, err
	}
	switch a {
	case StockIncrease:
		return addStock("amount", current, amount)
	case StockDecrease:
		return max(0, current-amount), nil
	case StockSet:
		return amount, nil
	}
	return current, nil
}
