package order

import (
	"context"

	"github.com/MikeMC777/chili-ordenes/internal/product"
)

// Ledger is durable storage for orders plus transactional access to the
// catalog rows an order touches.
type Ledger interface {
	// Atomic runs fn as one unit of work. If fn or the commit fails, none of
	// the writes made through tx are kept. A commit that loses a race with
	// another writer returns an error wrapping ErrConflict.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*Order, error)
	// ListOrders returns orders newest first; userID "" lists every order.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
}

// Tx is the view of the ledger inside a unit of work. Reads observe the
// unit's own earlier writes.
type Tx interface {
	Product(ctx context.Context, id string) (*product.Product, error)
	// SetStock writes the stock of p, provided p.Version is still current.
	// On success p.Stock and p.Version reflect the new row.
	SetStock(ctx context.Context, p *product.Product, stock int) error

	Order(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	// SetStatus writes the status of o, provided o.Version is still current.
	SetStatus(ctx context.Context, o *Order, status Status) error
}
