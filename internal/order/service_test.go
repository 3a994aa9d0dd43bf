package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/events"
	"github.com/MikeMC777/chili-ordenes/internal/product"
)

var (
	alice = auth.Identity{UserID: "u-alice", Role: auth.RoleUser}
	bob   = auth.Identity{UserID: "u-bob", Role: auth.RoleUser}
	admin = auth.Identity{UserID: "u-admin", Role: auth.RoleAdmin}
	anon  = auth.Identity{}
)

func seed(id, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     "prod-" + id,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
}

// tickingClock advances one second per call so orders get distinct
// creation times.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newFixture(t *testing.T, opts []Option, products ...product.Product) (*Service, *MemLedger) {
	t.Helper()
	l := NewMemLedger()
	for _, p := range products {
		l.PutProduct(p)
	}
	opts = append([]Option{WithRetry(5, 0), WithClock(tickingClock())}, opts...)
	return NewService(l, opts...), l
}

func stockOf(t *testing.T, l *MemLedger, id string) int {
	t.Helper()
	p, ok := l.Product(id)
	require.True(t, ok, "product %s missing", id)
	return p.Stock
}

func TestPlaceOrder_Scenario(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "10.00", 5))

	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, alice.UserID, o.UserID)
	assert.Equal(t, "20.00", o.Total.StringFixed(2))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, 3, stockOf(t, l, "p1"))

	stored, err := l.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(o.Total))
}

func TestPlaceOrder_InsufficientStockLeavesNothing(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "10.00", 3))

	_, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 10}})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "p1")
	assert.Contains(t, err.Error(), "requested 10 available 3")

	assert.Equal(t, 3, stockOf(t, l, "p1"))
	all, err := l.ListOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPlaceOrder_TotalUsesPricesAtCommit(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "10.00", 5), seed("p2", "2.50", 10))

	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 3},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal())
	}
	assert.True(t, sum.Equal(o.Total))
	assert.Equal(t, "17.50", o.Total.StringFixed(2))

	repriced := seed("p1", "99.00", 4)
	l.PutProduct(repriced)

	got, err := svc.GetOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "17.50", got.Total.StringFixed(2))
	assert.Equal(t, "10.00", got.Items[0].Price.StringFixed(2))
}

func TestPlaceOrder_DuplicateLines(t *testing.T) {
	t.Run("exact fit", func(t *testing.T) {
		svc, l := newFixture(t, nil, seed("p1", "1.00", 5))
		o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		})
		require.NoError(t, err)
		assert.Len(t, o.Items, 2)
		assert.Equal(t, 0, stockOf(t, l, "p1"))
	})

	t.Run("over by one", func(t *testing.T) {
		svc, l := newFixture(t, nil, seed("p1", "1.00", 4))
		_, err := svc.PlaceOrder(context.Background(), alice, []CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		})
		require.ErrorIs(t, err, ErrInsufficientStock)
		assert.Contains(t, err.Error(), "requested 3 available 2")
		assert.Equal(t, 4, stockOf(t, l, "p1"))
	})
}

func TestPlaceOrder_LineFailures(t *testing.T) {
	inactive := seed("off", "5.00", 10)
	inactive.IsActive = false

	tests := []struct {
		name string
		cart []CartLine
		want error
	}{
		{"empty cart", nil, ErrValidation},
		{"zero quantity", []CartLine{{ProductID: "p1", Quantity: 0}}, ErrValidation},
		{"negative quantity", []CartLine{{ProductID: "p1", Quantity: -1}}, ErrValidation},
		{"blank product", []CartLine{{ProductID: "  ", Quantity: 1}}, ErrValidation},
		{"unknown product", []CartLine{{ProductID: "nope", Quantity: 1}}, ErrProductNotFound},
		{"inactive product", []CartLine{{ProductID: "off", Quantity: 1}}, ErrInactiveProduct},
		{"later line fails", []CartLine{{ProductID: "p1", Quantity: 1}, {ProductID: "nope", Quantity: 1}}, ErrProductNotFound},
		{"first violation wins", []CartLine{{ProductID: "nope", Quantity: 1}, {ProductID: "p1", Quantity: 0}}, ErrProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, l := newFixture(t, nil, seed("p1", "1.00", 5), inactive)
			_, err := svc.PlaceOrder(context.Background(), alice, tt.cart)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 5, stockOf(t, l, "p1"))
			assert.Equal(t, 10, stockOf(t, l, "off"))
		})
	}
}

func TestPlaceOrder_Authorization(t *testing.T) {
	svc, _ := newFixture(t, nil, seed("p1", "1.00", 5))
	cart := []CartLine{{ProductID: "p1", Quantity: 1}}

	_, err := svc.PlaceOrder(context.Background(), anon, cart)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = svc.PlaceOrder(context.Background(), admin, cart)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "10.00", 5))
	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 3, stockOf(t, l, "p1"))

	got, err := svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 5, stockOf(t, l, "p1"))

	_, err = svc.CancelOrder(context.Background(), alice, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 5, stockOf(t, l, "p1"))
}

func TestCancelOrder_Rejections(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "10.00", 5))
	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), alice, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CancelOrder(context.Background(), bob, o.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.CancelOrder(context.Background(), admin, o.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.AdvanceStatus(context.Background(), admin, o.ID, StatusPreparing)
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), alice, o.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := l.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, got.Status)
	assert.Equal(t, 3, stockOf(t, l, "p1"))
}

func TestCancelOrder_SkipsRemovedProducts(t *testing.T) {
	svc, l := newFixture(t, nil, seed("p1", "1.00", 5), seed("p2", "1.00", 5))
	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 2},
	})
	require.NoError(t, err)

	l.DeleteProduct("p1")

	_, err = svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, l, "p2"))
}

func TestGetOrder_Visibility(t *testing.T) {
	svc, _ := newFixture(t, nil, seed("p1", "1.00", 5))
	o, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), bob, o.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.GetOrder(context.Background(), anon, o.ID)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	for _, who := range []auth.Identity{alice, admin} {
		got, err := svc.GetOrder(context.Background(), who, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
	}

	_, err = svc.GetOrder(context.Background(), admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders_ScopeAndOrder(t *testing.T) {
	svc, _ := newFixture(t, nil, seed("p1", "1.00", 50))
	ctx := context.Background()
	line := []CartLine{{ProductID: "p1", Quantity: 1}}

	a1, err := svc.PlaceOrder(ctx, alice, line)
	require.NoError(t, err)
	b1, err := svc.PlaceOrder(ctx, bob, line)
	require.NoError(t, err)
	a2, err := svc.PlaceOrder(ctx, alice, line)
	require.NoError(t, err)

	mine, err := svc.ListOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID)
	assert.Equal(t, a1.ID, mine[1].ID)
	assert.Len(t, mine[0].Items, 1)

	all, err := svc.ListOrders(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{a2.ID, b1.ID, a1.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	_, err = svc.ListOrders(ctx, anon)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestAdvanceStatus_Strict(t *testing.T) {
	ctx := context.Background()
	svc, l := newFixture(t, nil, seed("p1", "1.00", 5))
	o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, "SHIPPED")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AdvanceStatus(ctx, alice, "missing", StatusPreparing)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AdvanceStatus(ctx, alice, o.ID, StatusPreparing)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.AdvanceStatus(ctx, admin, o.ID, "preparing")
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, got.Status)

	got, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, 3, stockOf(t, l, "p1"))

	for _, next := range []Status{StatusPending, StatusPreparing, StatusCancelled, StatusDelivered} {
		_, err = svc.AdvanceStatus(ctx, admin, o.ID, next)
		assert.ErrorIs(t, err, ErrInvalidTransition, "DELIVERED -> %s", next)
	}
	assert.Equal(t, 3, stockOf(t, l, "p1"))
}

func TestAdvanceStatus_AdminCancelRestocks(t *testing.T) {
	ctx := context.Background()
	for _, from := range []Status{StatusPending, StatusPreparing} {
		t.Run(string(from), func(t *testing.T) {
			svc, l := newFixture(t, nil, seed("p1", "1.00", 5))
			o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
			require.NoError(t, err)
			if from == StatusPreparing {
				_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusPreparing)
				require.NoError(t, err)
			}

			got, err := svc.AdvanceStatus(ctx, admin, o.ID, StatusCancelled)
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, got.Status)
			assert.Equal(t, 5, stockOf(t, l, "p1"))

			_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusPending)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestAdvanceStatus_Permissive(t *testing.T) {
	ctx := context.Background()
	svc, l := newFixture(t, []Option{WithTransitions(PermissiveTransitions)}, seed("p1", "1.00", 5))
	o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusDelivered)
	require.NoError(t, err)
	got, err := svc.AdvanceStatus(ctx, admin, o.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, l, "p1"))

	// re-entering CANCELLED must not restock twice
	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, l, "p1"))

	// owners stay limited to PENDING -> CANCELLED
	o2, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(ctx, admin, o2.ID, StatusPreparing)
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, alice, o2.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceStatus_ReopenTakesStockBack(t *testing.T) {
	ctx := context.Background()
	svc, l := newFixture(t, []Option{WithTransitions(PermissiveTransitions)}, seed("p1", "1.00", 5))
	o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 3, stockOf(t, l, "p1"))

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, l, "p1"))

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, l, "p1"))

	_, err = svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, l, "p1"))

	for _, next := range []Status{StatusPreparing, StatusCancelled, StatusDelivered, StatusCancelled} {
		_, err = svc.AdvanceStatus(ctx, admin, o.ID, next)
		require.NoError(t, err, "-> %s", next)
	}
	assert.Equal(t, 5, stockOf(t, l, "p1"))
}

func TestAdvanceStatus_ReopenRefusedWithoutStock(t *testing.T) {
	ctx := context.Background()
	svc, l := newFixture(t, []Option{WithTransitions(PermissiveTransitions)},
		seed("p1", "1.00", 5), seed("p2", "1.00", 5))
	o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}})
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, bob, []CartLine{{ProductID: "p1", Quantity: 4}})
	require.NoError(t, err)

	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	got, err := svc.GetOrder(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 1, stockOf(t, l, "p1"))
	assert.Equal(t, 5, stockOf(t, l, "p2"))

	inactive := seed("p1", "1.00", 10)
	inactive.IsActive = false
	l.PutProduct(inactive)
	_, err = svc.AdvanceStatus(ctx, admin, o.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInactiveProduct)
	assert.Equal(t, 5, stockOf(t, l, "p2"))
}

func TestPlaceOrder_ConcurrentNeverOversells(t *testing.T) {
	const stock, buyers = 10, 40
	svc, l := newFixture(t, []Option{WithRetry(1000, 0)}, seed("p1", "1.00", stock))

	var (
		wg       sync.WaitGroup
		placed   int64
		rejected int64
	)
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := auth.Identity{UserID: fmt.Sprintf("u-%d", i), Role: auth.RoleUser}
			_, err := svc.PlaceOrder(context.Background(), buyer, []CartLine{{ProductID: "p1", Quantity: 1}})
			switch {
			case err == nil:
				atomic.AddInt64(&placed, 1)
			case errors.Is(err, ErrInsufficientStock):
				atomic.AddInt64(&rejected, 1)
			default:
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.EqualValues(t, stock, placed)
	assert.EqualValues(t, buyers-stock, rejected)
	assert.Equal(t, 0, stockOf(t, l, "p1"))

	all, err := l.ListOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, stock)
}

func TestPlaceOrder_ConcurrentPlaceAndCancel(t *testing.T) {
	const initial = 20
	ctx := context.Background()
	svc, l := newFixture(t, []Option{WithRetry(1000, 0)}, seed("p1", "1.00", initial))

	var seedOrders []string
	for i := 0; i < 5; i++ {
		o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
		require.NoError(t, err)
		seedOrders = append(seedOrders, o.ID)
	}

	var wg sync.WaitGroup
	for _, id := range seedOrders {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.CancelOrder(ctx, alice, id)
			assert.NoError(t, err)
		}(id)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, bob, []CartLine{{ProductID: "p1", Quantity: 1}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, initial-5, stockOf(t, l, "p1"))
}

// conflictLedger loses every commit race until healAfter attempts.
type conflictLedger struct {
	Ledger
	calls     int
	healAfter int
}

func (c *conflictLedger) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	c.calls++
	if c.healAfter == 0 || c.calls <= c.healAfter {
		return fmt.Errorf("%w: simulated", ErrConflict)
	}
	return c.Ledger.Atomic(ctx, fn)
}

func TestPlaceOrder_ConflictRetries(t *testing.T) {
	cart := []CartLine{{ProductID: "p1", Quantity: 1}}

	t.Run("exhausted", func(t *testing.T) {
		mem := NewMemLedger()
		mem.PutProduct(seed("p1", "1.00", 5))
		cl := &conflictLedger{Ledger: mem}
		svc := NewService(cl, WithRetry(3, 0))

		_, err := svc.PlaceOrder(context.Background(), alice, cart)
		require.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, cl.calls)
		p, _ := mem.Product("p1")
		assert.Equal(t, 5, p.Stock)
	})

	t.Run("recovers", func(t *testing.T) {
		mem := NewMemLedger()
		mem.PutProduct(seed("p1", "1.00", 5))
		cl := &conflictLedger{Ledger: mem, healAfter: 2}
		svc := NewService(cl, WithRetry(3, 0))

		_, err := svc.PlaceOrder(context.Background(), alice, cart)
		require.NoError(t, err)
		assert.Equal(t, 3, cl.calls)
		p, _ := mem.Product("p1")
		assert.Equal(t, 4, p.Stock)
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		cl := &conflictLedger{Ledger: NewMemLedger()}
		svc := NewService(cl, WithRetry(5, time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.PlaceOrder(ctx, alice, cart)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, cl.calls)
	})
}

func TestMemLedger_StaleWriteConflicts(t *testing.T) {
	l := NewMemLedger()
	l.PutProduct(seed("p1", "1.00", 5))
	ctx := context.Background()

	err := l.Atomic(ctx, func(tx Tx) error {
		p, err := tx.Product(ctx, "p1")
		if err != nil {
			return err
		}
		// a catalog edit lands between the read and the commit
		l.PutProduct(seed("p1", "1.00", 7))
		return tx.SetStock(ctx, p, p.Stock-1)
	})
	require.ErrorIs(t, err, ErrConflict)
	p, _ := l.Product("p1")
	assert.Equal(t, 7, p.Stock)
}

func TestEvents_PublishedAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	pub := NewMockPublisher(ctrl)

	var seq int64
	ids := func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }
	svc, _ := newFixture(t, []Option{WithPublisher(pub, "order-service"), WithIDs(ids)}, seed("p1", "3.00", 5))
	ctx := events.WithCorrelationID(context.Background(), "rid-42")

	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), "id-1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, env events.Envelope) error {
				assert.Equal(t, events.OrderPlaced, env.EventType)
				assert.Equal(t, "rid-42", env.CorrelationID)
				assert.Equal(t, "order-service", env.Producer)
				p, err := events.Decode[orderPayload](env)
				require.NoError(t, err)
				assert.Equal(t, "6.00", p.Total)
				assert.Equal(t, "PENDING", p.Status)
				return errors.New("broker down")
			}),
		pub.EXPECT().Publish(gomock.Any(), "id-1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, env events.Envelope) error {
				assert.Equal(t, events.OrderCancelled, env.EventType)
				p, err := events.Decode[orderPayload](env)
				require.NoError(t, err)
				require.Len(t, p.Restocked, 1)
				assert.Equal(t, 2, p.Restocked[0].Quantity)
				return nil
			}),
	)

	o, err := svc.PlaceOrder(ctx, alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err, "publish failures must not fail a committed order")
	_, err = svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)
}

func TestEvents_NotPublishedOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	pub := NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	svc, _ := newFixture(t, []Option{WithPublisher(pub, "order-service")}, seed("p1", "3.00", 1))
	_, err := svc.PlaceOrder(context.Background(), alice, []CartLine{{ProductID: "p1", Quantity: 2}})
	require.ErrorIs(t, err, ErrInsufficientStock)
}
