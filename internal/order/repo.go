package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/chili-ordenes/internal/postgres"
	"github.com/MikeMC777/chili-ordenes/internal/product"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGLedger struct{ db *pgxpool.Pool }

func NewPGLedger(db *pgxpool.Pool) *PGLedger { return &PGLedger{db: db} }

func (l *PGLedger) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (l *PGLedger) GetOrder(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return getOrder(ctx, l.db, id)
}

func (l *PGLedger) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := l.db.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		if postgres.IsInvalidText(err) {
			return []Order{}, nil
		}
		return nil, err
	}
	out := []Order{}
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		if postgres.IsInvalidText(err) {
			return []Order{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := l.db.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		it, err := scanItem(items)
		if err != nil {
			return nil, err
		}
		i := index[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, items.Err()
}

// classify folds driver-level races into ErrConflict.
func classify(err error) error {
	if err != nil && postgres.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const (
	orderColumns = `id, user_id, status, total::text, version, created_at, updated_at`
	itemColumns  = `id, order_id, product_id, quantity, price::text`
)

// The filters compare uuid columns against uuid values so the
// orders_user_created_idx and order_items (order_id, position) indexes apply.
const (
	listOrdersSQL = `
    SELECT ` + orderColumns + `
    FROM orders
    WHERE ($1::text = '' OR user_id = NULLIF($1::text, '')::uuid)
    ORDER BY created_at DESC, id
  `
	listItemsSQL = `
    SELECT ` + itemColumns + `
    FROM order_items
    WHERE order_id = ANY($1::uuid[])
    ORDER BY order_id, position
  `
)

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
		total  string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &total, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order %s: bad total %q: %w", o.ID, total, err)
	}
	o.Total = d
	return &o, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		it    Item
		price string
	)
	if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
		return Item{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Item{}, fmt.Errorf("item %s: bad price %q: %w", it.ID, price, err)
	}
	it.Price = d
	return it, nil
}

func getOrder(ctx context.Context, q querier, id string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidText(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
    SELECT `+itemColumns+`
    FROM order_items WHERE order_id=$1
    ORDER BY position
  `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

type pgTx struct{ q querier }

func (t *pgTx) Product(ctx context.Context, id string) (*product.Product, error) {
	p, err := product.Scan(t.q.QueryRow(ctx, `SELECT `+product.Columns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidText(err) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (t *pgTx) SetStock(ctx context.Context, p *product.Product, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: product %s would drop to %d", ErrInsufficientStock, p.ID, stock)
	}
	tag, err := t.q.Exec(ctx, `
    UPDATE products
    SET stock = $2, version = version + 1, updated_at = NOW()
    WHERE id = $1 AND version = $3
  `, p.ID, stock, p.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s changed", ErrConflict, p.ID)
	}
	p.Stock = stock
	p.Version++
	return nil
}

func (t *pgTx) Order(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, t.q, id)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	if _, err := t.q.Exec(ctx, `
    INSERT INTO orders (id, user_id, status, total, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, o.ID, o.UserID, string(o.Status), o.Total.String(), o.Version, o.CreatedAt, o.UpdatedAt); err != nil {
		return err
	}

	for i, it := range o.Items {
		if _, err := t.q.Exec(ctx, `
      INSERT INTO order_items (id, order_id, position, product_id, quantity, price)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, it.ID, o.ID, i, it.ProductID, it.Quantity, it.Price.String()); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, o *Order, status Status) error {
	err := t.q.QueryRow(ctx, `
    UPDATE orders
    SET status = $2, version = version + 1, updated_at = NOW()
    WHERE id = $1 AND version = $3
    RETURNING version, updated_at
  `, o.ID, string(status), o.Version).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: order %s changed", ErrConflict, o.ID)
	}
	if err != nil {
		return err
	}
	o.Status = status
	return nil
}
