package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    bool            `json:"is_active"`
	// Version is bumped on every stock write; order placement uses it for
	// optimistic concurrency.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HTTPError represents a standard error in JSON.
// swagger:model
type HTTPError struct {
	// Error message
	// example: not found
	Error string `json:"error"`
}

// ProductResponse is the wire shape of a product, with the price rendered
// with two decimals.
// swagger:model ProductResponse
type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"       example:"199.90"`
	Stock       int       `json:"stock"       example:"10"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToResponse(p Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProductRequest payload of creation and full update.
// swagger:model ProductRequest
type ProductRequest struct {
	Name        string `json:"name"        example:"Chili Hoodie"`
	Description string `json:"description" example:"Cotton, unisex"`
	Price       string `json:"price"       example:"49.90"`
	Stock       int    `json:"stock"       example:"10"`
	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active,omitempty"`
}
