package order

import "time"

// CreateOrderItem is one cart line.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  example:"2"`
}

// CreateOrderRequest is the cart submitted by the authenticated user.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items"`
}

func (r CreateOrderRequest) Cart() []CartLine {
	out := make([]CartLine, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// UpdateStatusRequest sets an order's status.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status string `json:"status" example:"PREPARING"`
}

// swagger:model ItemResponse
type ItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price" example:"10.00"`
}

// swagger:model OrderResponse
type OrderResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Status    string         `json:"status" example:"PENDING"`
	Total     string         `json:"total" example:"20.00"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Items     []ItemResponse `json:"items"`
}

func ToResponse(o *Order) OrderResponse {
	items := make([]ItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return OrderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Total:     o.Total.StringFixed(2),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Items:     items,
	}
}
