package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        string
	UserID    string
	Status    Status
	Total     decimal.Decimal
	Items     []Item
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a line of an order. Price is the unit price captured when the
// order was placed and never follows later catalog edits.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// CartLine is one (product, quantity) pair submitted by the caller.
type CartLine struct {
	ProductID string
	Quantity  int
}

func (o *Order) clone() *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}
