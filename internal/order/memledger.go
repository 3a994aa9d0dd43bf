package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MikeMC777/chili-ordenes/internal/product"
)

// MemLedger keeps products and orders in process memory. Units of work read
// committed rows without holding the lock, buffer their writes, and validate
// every version they read when they commit.
type MemLedger struct {
	mu       sync.Mutex
	products map[string]*product.Product
	orders   map[string]*Order
	now      func() time.Time
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		products: map[string]*product.Product{},
		orders:   map[string]*Order{},
		now:      time.Now,
	}
}

// PutProduct inserts or replaces a catalog row. Replacing bumps the version
// so units of work that read the old row fail validation.
func (l *MemLedger) PutProduct(p product.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.products[p.ID]; ok {
		p.Version = cur.Version + 1
	}
	l.products[p.ID] = &p
}

// DeleteProduct removes a catalog row entirely.
func (l *MemLedger) DeleteProduct(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.products, id)
}

// Product returns a copy of the committed row.
func (l *MemLedger) Product(id string) (product.Product, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[id]
	if !ok {
		return product.Product{}, false
	}
	return *p, true
}

func (l *MemLedger) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		l:             l,
		productReads:  map[string]int64{},
		productWrites: map[string]*product.Product{},
		orderReads:    map[string]int64{},
		orderWrites:   map[string]*Order{},
		inserts:       map[string]*Order{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (l *MemLedger) GetOrder(ctx context.Context, id string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.clone(), nil
}

func (l *MemLedger) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	out := []Order{}
	for _, o := range l.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, *o.clone())
		}
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memTx struct {
	l *MemLedger

	productReads  map[string]int64
	productWrites map[string]*product.Product
	orderReads    map[string]int64
	orderWrites   map[string]*Order
	inserts       map[string]*Order
}

func (t *memTx) Product(ctx context.Context, id string) (*product.Product, error) {
	if p, ok := t.productWrites[id]; ok {
		cp := *p
		return &cp, nil
	}
	t.l.mu.Lock()
	p, ok := t.l.products[id]
	var cp product.Product
	if ok {
		cp = *p
	}
	t.l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if _, seen := t.productReads[id]; !seen {
		t.productReads[id] = cp.Version
	}
	return &cp, nil
}

func (t *memTx) SetStock(ctx context.Context, p *product.Product, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: product %s would drop to %d", ErrInsufficientStock, p.ID, stock)
	}
	expected, ok := t.productReads[p.ID]
	if w, staged := t.productWrites[p.ID]; staged {
		expected, ok = w.Version, true
	}
	if !ok || expected != p.Version {
		return fmt.Errorf("%w: product %s changed", ErrConflict, p.ID)
	}
	p.Stock = stock
	p.Version++
	p.UpdatedAt = t.l.now()
	cp := *p
	t.productWrites[p.ID] = &cp
	return nil
}

func (t *memTx) Order(ctx context.Context, id string) (*Order, error) {
	if o, ok := t.orderWrites[id]; ok {
		return o.clone(), nil
	}
	if o, ok := t.inserts[id]; ok {
		return o.clone(), nil
	}
	t.l.mu.Lock()
	o, ok := t.l.orders[id]
	var cp *Order
	if ok {
		cp = o.clone()
	}
	t.l.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if _, seen := t.orderReads[id]; !seen {
		t.orderReads[id] = cp.Version
	}
	return cp, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *Order) error {
	if _, dup := t.inserts[o.ID]; dup {
		return fmt.Errorf("order %s inserted twice", o.ID)
	}
	t.inserts[o.ID] = o.clone()
	return nil
}

func (t *memTx) SetStatus(ctx context.Context, o *Order, status Status) error {
	if ins, ok := t.inserts[o.ID]; ok {
		ins.Status = status
		o.Status = status
		return nil
	}
	expected, ok := t.orderReads[o.ID]
	if w, staged := t.orderWrites[o.ID]; staged {
		expected, ok = w.Version, true
	}
	if !ok || expected != o.Version {
		return fmt.Errorf("%w: order %s changed", ErrConflict, o.ID)
	}
	o.Status = status
	o.Version++
	o.UpdatedAt = t.l.now()
	t.orderWrites[o.ID] = o.clone()
	return nil
}

func (t *memTx) commit() error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	for id, v := range t.productReads {
		cur, ok := t.l.products[id]
		if !ok || cur.Version != v {
			return fmt.Errorf("%w: product %s changed", ErrConflict, id)
		}
	}
	for id, v := range t.orderReads {
		cur, ok := t.l.orders[id]
		if !ok || cur.Version != v {
			return fmt.Errorf("%w: order %s changed", ErrConflict, id)
		}
	}
	for id := range t.inserts {
		if _, ok := t.l.orders[id]; ok {
			return fmt.Errorf("order %s already exists", id)
		}
	}

	for id, p := range t.productWrites {
		t.l.products[id] = p
	}
	for id, o := range t.orderWrites {
		t.l.orders[id] = o
	}
	for id, o := range t.inserts {
		t.l.orders[id] = o
	}
	return nil
}
