package order

import "errors"

var (
	ErrValidation        = errors.New("invalid request")
	ErrNotFound          = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInactiveProduct   = errors.New("product is not active")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict means a concurrent writer changed a row this unit of work
	// depended on. Retried internally; surfaced once attempts run out.
	ErrConflict = errors.New("concurrent modification")
)
