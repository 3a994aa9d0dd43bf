// Package idempotency remembers which order an Idempotency-Key produced so a
// retried POST replays the original result instead of placing a new order.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const pending = "pending"

var (
	TTLPending = time.Minute
	TTLResult  = 24 * time.Hour
)

// ErrInFlight means another request holding the same key has not finished.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

type Store interface {
	// Claim reserves key. If the key already produced an order, its id is
	// returned with claimed=false.
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	// Release forgets a claim whose request failed, so the client may retry.
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to one user.
func Key(userID, clientKey string) string {
	return fmt.Sprintf("idem:order:create:%s:%s", userID, clientKey)
}
