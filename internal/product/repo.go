// Package product provides the repository interface and PostgreSQL implementation for managing products.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/chili-ordenes/internal/postgres"
)

var (
	ErrNotFound = errors.New("product not found")
	ErrInvalid  = errors.New("invalid product")
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, includeInactive bool) ([]Product, error)
	Update(ctx context.Context, p *Product) error
	Deactivate(ctx context.Context, id string) error
}

// Validate checks the catalog rules shared by create and update.
func Validate(p *Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalid)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalid)
	}
	return nil
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// Columns is the select list understood by Scan.
const Columns = `id, name, description, price::text, stock, is_active, version, created_at, updated_at`

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return &p, nil
}

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, stock, is_active, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,NOW(),NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.IsActive).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := Scan(r.db.QueryRow(ctx, `SELECT `+Columns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidText(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) List(ctx context.Context, includeInactive bool) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+`
		FROM products
		WHERE ($1 OR is_active)
		ORDER BY created_at DESC
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update replaces the editable fields. Stock edits bump the version so that
// in-flight order placements on the same row retry instead of overwriting.
func (r *PGRepo) Update(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4,
		    stock = $5,
		    is_active = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING version, created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.IsActive).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidText(err) {
		return ErrNotFound
	}
	return err
}

func (r *PGRepo) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id=$1`, id)
	if postgres.IsInvalidText(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
