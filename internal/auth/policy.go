// Package auth carries the caller identity consumed by the services and the
// single authorization policy every order operation goes through.
package auth

import (
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole normalizes a role claim. Unknown roles are returned as-is so
// that they never satisfy HasRole for a known role.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Identity is what the access gateway hands to the core: who is calling and
// with which role. The token format never leaks past this type.
type Identity struct {
	UserID string
	Role   Role
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Requirement is a capability predicate over the caller.
type Requirement func(Identity) bool

func HasRole(r Role) Requirement {
	return func(id Identity) bool { return id.Role == r }
}

// Owns is satisfied when the caller is the owner of the resource.
func Owns(ownerID string) Requirement {
	return func(id Identity) bool { return ownerID != "" && id.UserID == ownerID }
}

// Authorize allows the call when at least one requirement holds.
func Authorize(caller Identity, reqs ...Requirement) error {
	if caller.UserID == "" {
		return ErrUnauthenticated
	}
	for _, req := range reqs {
		if req(caller) {
			return nil
		}
	}
	return ErrForbidden
}
