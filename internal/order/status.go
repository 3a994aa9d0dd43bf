package order

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var allStatuses = []Status{StatusPending, StatusPreparing, StatusDelivered, StatusCancelled}

// ParseStatus accepts only the enumerated values (case-insensitive).
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range allStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Actor is who drives a transition.
type Actor int

const (
	ActorAdmin Actor = iota
	ActorOwner
)

// Transitions is the table consulted by every status change.
type Transitions struct {
	name  string
	edges map[Actor]map[Status]map[Status]bool
}

func (t Transitions) String() string { return t.name }

func (t Transitions) Allowed(actor Actor, from, to Status) bool {
	return t.edges[actor][from][to]
}

var ownerEdges = map[Status]map[Status]bool{
	StatusPending: {StatusCancelled: true},
}

// StrictTransitions enforces the lifecycle
// PENDING -> PREPARING -> DELIVERED with cancellation from PENDING or
// PREPARING. DELIVERED and CANCELLED are terminal.
var StrictTransitions = Transitions{
	name: "strict",
	edges: map[Actor]map[Status]map[Status]bool{
		ActorAdmin: {
			StatusPending:   {StatusPreparing: true, StatusCancelled: true},
			StatusPreparing: {StatusDelivered: true, StatusCancelled: true},
			StatusDelivered: {},
			StatusCancelled: {},
		},
		ActorOwner: ownerEdges,
	},
}

// PermissiveTransitions lets an admin set any status from any status,
// including reopening DELIVERED or CANCELLED orders. Owners still only
// cancel PENDING orders.
var PermissiveTransitions = Transitions{
	name: "permissive",
	edges: map[Actor]map[Status]map[Status]bool{
		ActorAdmin: func() map[Status]map[Status]bool {
			m := make(map[Status]map[Status]bool, len(allStatuses))
			for _, from := range allStatuses {
				m[from] = make(map[Status]bool, len(allStatuses))
				for _, to := range allStatuses {
					m[from][to] = true
				}
			}
			return m
		}(),
		ActorOwner: ownerEdges,
	},
}

// TransitionsByName maps the ORDER_TRANSITIONS setting; unknown names fall
// back to strict.
func TransitionsByName(name string) Transitions {
	if strings.EqualFold(strings.TrimSpace(name), PermissiveTransitions.name) {
		return PermissiveTransitions
	}
	return StrictTransitions
}
