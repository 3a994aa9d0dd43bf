package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
)

var (
	ErrInvalid            = errors.New("invalid user")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type TokenIssuer interface {
	Issue(userID, email string, role auth.Role) (string, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
}

func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Register creates a USER account. Emails are stored lower-cased.
func (s *Service) Register(ctx context.Context, in RegisterRequest) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalid)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleUser,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	log.Printf("[users] registered id=%s", u.ID)
	return u, nil
}

// Login checks the password and issues a bearer token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalid)
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResponse{Token: tok, UserID: u.ID, Email: u.Email, Role: string(u.Role)}, nil
}
