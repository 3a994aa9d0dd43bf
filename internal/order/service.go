package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/events"
	"github.com/MikeMC777/chili-ordenes/internal/metrics"
)

// Service places orders and drives their lifecycle.
type Service struct {
	ledger      Ledger
	events      events.Publisher
	producer    string
	transitions Transitions
	attempts    int
	retryBase   time.Duration
	metrics     *metrics.OrderMetrics
	now         func() time.Time
	newID       func() string
}

type Option func(*Service)

func WithPublisher(p events.Publisher, producer string) Option {
	return func(s *Service) {
		s.events = p
		s.producer = producer
	}
}

func WithTransitions(t Transitions) Option {
	return func(s *Service) { s.transitions = t }
}

// WithRetry bounds how many times a unit of work is attempted when it loses
// an optimistic concurrency race. base is the first backoff step.
func WithRetry(attempts int, base time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if base >= 0 {
			s.retryBase = base
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(ledger Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:      ledger,
		events:      events.Nop{},
		producer:    "order-service",
		transitions: StrictTransitions,
		attempts:    5,
		retryBase:   10 * time.Millisecond,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Transitions() Transitions { return s.transitions }

// PlaceOrder turns a cart into a PENDING order owned by the caller, taking
// the stock for every line in the same unit of work.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Identity, cart []CartLine) (*Order, error) {
	if err := auth.Authorize(caller, auth.HasRole(auth.RoleUser)); err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	var placed *Order
	err := s.atomic(ctx, "place", func(tx Tx) error {
		now := s.now().UTC()
		o := &Order{
			ID:        s.newID(),
			UserID:    caller.UserID,
			Status:    StatusPending,
			Total:     decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for i, line := range cart {
			if strings.TrimSpace(line.ProductID) == "" {
				return fmt.Errorf("%w: line %d: product_id is required", ErrValidation, i)
			}
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: line %d: quantity must be > 0", ErrValidation, i)
			}
			p, err := tx.Product(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return fmt.Errorf("%w: %s", ErrInactiveProduct, p.ID)
			}
			if p.Stock < line.Quantity {
				return fmt.Errorf("%w: product %s requested %d available %d",
					ErrInsufficientStock, p.ID, line.Quantity, p.Stock)
			}
			if err := tx.SetStock(ctx, p, p.Stock-line.Quantity); err != nil {
				return err
			}
			it := Item{
				ID:        s.newID(),
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  line.Quantity,
				Price:     p.Price,
			}
			o.Items = append(o.Items, it)
			o.Total = o.Total.Add(it.Subtotal())
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		s.metrics.Placed(outcome(err))
		return nil, err
	}

	s.metrics.Placed("ok")
	log.Printf("[orders] placed id=%s user=%s items=%d total=%s", placed.ID, placed.UserID, len(placed.Items), placed.Total.StringFixed(2))
	s.publish(ctx, events.OrderPlaced, placed, nil)
	return placed, nil
}

// AdvanceStatus is the admin path for moving an order along the transition
// table. Entering CANCELLED returns the items to stock and leaving it takes
// them again.
func (s *Service) AdvanceStatus(ctx context.Context, caller auth.Identity, orderID string, next Status) (*Order, error) {
	next, err := ParseStatus(string(next))
	if err != nil {
		return nil, err
	}
	if caller.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}

	var (
		updated   *Order
		from      Status
		restocked []Item
	)
	err = s.atomic(ctx, "advance", func(tx Tx) error {
		o, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(caller, auth.HasRole(auth.RoleAdmin)); err != nil {
			return err
		}
		if !s.transitions.Allowed(ActorAdmin, o.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
		}
		from = o.Status
		restocked = nil
		switch {
		case next == StatusCancelled && o.Status != StatusCancelled:
			if restocked, err = s.restock(ctx, tx, o); err != nil {
				return err
			}
		case o.Status == StatusCancelled && next != StatusCancelled:
			if err := s.reserve(ctx, tx, o); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, o, next); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(from), string(next))
	log.Printf("[orders] status id=%s %s->%s by=%s", updated.ID, from, next, caller.UserID)
	if next == StatusCancelled && from != StatusCancelled {
		s.publish(ctx, events.OrderCancelled, updated, restocked)
	} else {
		s.publish(ctx, events.OrderStatusChanged, updated, nil)
	}
	return updated, nil
}

// CancelOrder lets the owner cancel an order that has not started
// preparation, returning its items to stock.
func (s *Service) CancelOrder(ctx context.Context, caller auth.Identity, orderID string) (*Order, error) {
	if caller.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}

	var (
		updated   *Order
		restocked []Item
	)
	err := s.atomic(ctx, "cancel", func(tx Tx) error {
		o, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(caller, auth.Owns(o.UserID)); err != nil {
			return err
		}
		if o.Status != StatusPending || !s.transitions.Allowed(ActorOwner, o.Status, StatusCancelled) {
			return fmt.Errorf("%w: only PENDING orders can be cancelled, order is %s", ErrInvalidTransition, o.Status)
		}
		if restocked, err = s.restock(ctx, tx, o); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, o, StatusCancelled); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(StatusPending), string(StatusCancelled))
	log.Printf("[orders] cancelled id=%s by=%s restocked=%d", updated.ID, caller.UserID, len(restocked))
	s.publish(ctx, events.OrderCancelled, updated, restocked)
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, caller auth.Identity, orderID string) (*Order, error) {
	if caller.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(caller, auth.HasRole(auth.RoleAdmin), auth.Owns(o.UserID)); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns every order for an admin and the caller's own orders
// otherwise, newest first.
func (s *Service) ListOrders(ctx context.Context, caller auth.Identity) ([]Order, error) {
	if err := auth.Authorize(caller, auth.HasRole(auth.RoleAdmin), auth.HasRole(auth.RoleUser)); err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return s.ledger.ListOrders(ctx, "")
	}
	return s.ledger.ListOrders(ctx, caller.UserID)
}

// restock adds every line back to its product. Lines whose product has
// been removed from the catalog are skipped.
func (s *Service) restock(ctx context.Context, tx Tx, o *Order) ([]Item, error) {
	var done []Item
	for _, it := range o.Items {
		p, err := tx.Product(ctx, it.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			log.Printf("[orders] restock skip order=%s product=%s: not in catalog", o.ID, it.ProductID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := tx.SetStock(ctx, p, p.Stock+it.Quantity); err != nil {
			return nil, err
		}
		done = append(done, it)
	}
	return done, nil
}

// reserve takes the stock for every line again when a cancelled order is
// reopened, under the same rules as placement.
func (s *Service) reserve(ctx context.Context, tx Tx, o *Order) error {
	for _, it := range o.Items {
		p, err := tx.Product(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return fmt.Errorf("%w: %s", ErrInactiveProduct, p.ID)
		}
		if p.Stock < it.Quantity {
			return fmt.Errorf("%w: product %s requested %d available %d",
				ErrInsufficientStock, p.ID, it.Quantity, p.Stock)
		}
		if err := tx.SetStock(ctx, p, p.Stock-it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// atomic runs fn through the ledger, retrying with jittered exponential
// backoff while the commit keeps losing races.
func (s *Service) atomic(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.ledger.Atomic(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		s.metrics.Conflict(op)
		if attempt == s.attempts {
			break
		}

		backoff := s.retryBase * time.Duration(1<<(attempt-1))
		if backoff > 0 {
			backoff += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	log.Printf("[orders] %s gave up after %d attempts: %v", op, s.attempts, err)
	return err
}

type itemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type orderPayload struct {
	OrderID   string        `json:"order_id"`
	UserID    string        `json:"user_id"`
	Status    string        `json:"status"`
	Total     string        `json:"total"`
	Items     []itemPayload `json:"items"`
	Restocked []itemPayload `json:"restocked,omitempty"`
}

func toItemPayloads(items []Item) []itemPayload {
	out := make([]itemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, itemPayload{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price.StringFixed(2)})
	}
	return out
}

// publish is best-effort: the order is already committed.
func (s *Service) publish(ctx context.Context, eventType string, o *Order, restocked []Item) {
	p := orderPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
		Total:   o.Total.StringFixed(2),
		Items:   toItemPayloads(o.Items),
	}
	if len(restocked) > 0 {
		p.Restocked = toItemPayloads(restocked)
	}
	env, err := events.NewEnvelope(ctx, eventType, s.producer, p)
	if err == nil {
		err = s.events.Publish(ctx, o.ID, env)
	}
	if err != nil {
		log.Printf("[orders] publish %s id=%s failed: %v", eventType, o.ID, err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInactiveProduct):
		return "inactive_product"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
