package user

import (
	"time"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterRequest payload de registro.
// swagger:model RegisterRequest
type RegisterRequest struct {
	Name     string `json:"name" example:"Ana"`
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password" example:"s3cret!"`
}

// LoginRequest payload de login.
// swagger:model LoginRequest
type LoginRequest struct {
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password" example:"s3cret!"`
}

// swagger:model LoginResponse
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
