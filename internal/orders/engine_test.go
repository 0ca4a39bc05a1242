package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progRizvi/MarketMate/internal/idempotency"
)

// memStorage is an in-memory Storage with the same version semantics as the
// DynamoDB-backed store.
type memStorage struct {
	mu     sync.Mutex
	orders map[string]Order
}

func newMemStorage() *memStorage {
	return &memStorage{orders: map[string]Order{}}
}

func (s *memStorage) Get(ctx context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (s *memStorage) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.OrderID]; ok {
		return ErrAlreadyExists
	}
	s.orders[o.OrderID] = *o
	return nil
}

func (s *memStorage) Update(ctx context.Context, o *Order, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.OrderID]
	if !ok || cur.Version != expectedVersion {
		return ErrConcurrentModification
	}
	s.orders[o.OrderID] = *o
	return nil
}

// memIdem approximates the idempotency store: fresh and reclaimable keys hand
// out a reservation, DONE and live IN_PROGRESS keys return the record.
type memIdem struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
	seq     int
}

func newMemIdem() *memIdem {
	return &memIdem{records: map[string]idempotency.Record{}}
}

func (s *memIdem) BeginOrFetch(ctx context.Context, key string) (*idempotency.Reservation, *idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && rec.Status != idempotency.StatusFailed {
		cp := rec
		return nil, &cp, nil
	}
	s.seq++
	token := string(rune('a' + s.seq))
	s.records[key] = idempotency.Record{
		IdempotencyKey: key,
		Status:         idempotency.StatusInProgress,
		HolderToken:    token,
	}
	return &idempotency.Reservation{Key: key, Token: token}, nil, nil
}

func (s *memIdem) Complete(ctx context.Context, res *idempotency.Reservation, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[res.Key]
	if rec.Status != idempotency.StatusInProgress || rec.HolderToken != res.Token {
		return idempotency.ErrReservationLost
	}
	rec.Status = idempotency.StatusDone
	rec.Result = result
	s.records[res.Key] = rec
	return nil
}

func (s *memIdem) Fail(ctx context.Context, res *idempotency.Reservation, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[res.Key]
	if rec.Status != idempotency.StatusInProgress || rec.HolderToken != res.Token {
		return idempotency.ErrReservationLost
	}
	rec.Status = idempotency.StatusFailed
	rec.Note = note
	s.records[res.Key] = rec
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memStorage, *memIdem) {
	t.Helper()
	store := newMemStorage()
	idem := newMemIdem()
	e := NewEngine(store, idem)
	e.nowFunc = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	e.newID = func() string {
		n++
		return "order-" + string(rune('0'+n))
	}
	return e, store, idem
}

func testInput() CreateOrderInput {
	return CreateOrderInput{
		BuyerID:  "buyer-1",
		ShopID:   "shop-1",
		Currency: "USD",
		Items: []LineItem{
			{ProductID: "p1", Name: "Widget", Quantity: 2, UnitPriceCents: 40},
			{ProductID: "p2", Name: "Gadget", Quantity: 1, UnitPriceCents: 20},
		},
		TaxCents:      8,
		ShippingCents: 5,
	}
}

func TestCreateComputesTotals(t *testing.T) {
	e, _, _ := newTestEngine(t)

	o, err := e.Create(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, int64(100), o.SubtotalCents)
	assert.Equal(t, int64(113), o.TotalCents)
	assert.Contains(t, o.Transitions, StatusPending)
}

func TestCreateRejectsBadItems(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := map[string]CreateOrderInput{
		"no items":     {BuyerID: "b", Currency: "USD"},
		"zero qty":     {BuyerID: "b", Currency: "USD", Items: []LineItem{{ProductID: "p", Quantity: 0, UnitPriceCents: 10}}},
		"no price":     {BuyerID: "b", Currency: "USD", Items: []LineItem{{ProductID: "p", Quantity: 1}}},
		"no product":   {BuyerID: "b", Currency: "USD", Items: []LineItem{{Quantity: 1, UnitPriceCents: 10}}},
		"negative tax": {BuyerID: "b", Currency: "USD", Items: []LineItem{{ProductID: "p", Quantity: 1, UnitPriceCents: 10}}, TaxCents: -1},
	}
	for name, in := range cases {
		_, err := e.Create(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidItems, name)
	}
}

func TestHappyPathToCompleted(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)

	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, o.Status)
	assert.Equal(t, "pi_1", o.PaymentRef)
	assert.Equal(t, int64(2), o.Version)

	o, ev, err := e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventOrderPaid, ev.Type)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, int64(3), o.Version)

	o, ev, err = e.Ship(ctx, o.OrderID, o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventOrderShipped, ev.Type)

	o, err = e.Complete(ctx, o.OrderID, o.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, int64(5), o.Version)
}

func TestMarkPaidAmountMismatch(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)

	_, _, err = e.MarkPaid(ctx, o.OrderID, "pay_1", 100, o.Version)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// nothing applied
	got, err := store.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, got.Status)
	assert.Equal(t, o.Version, got.Version)

	// the key was released, so the corrected amount can settle
	_, ev, err := e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	assert.NotNil(t, ev)
}

func TestMarkPaidReplayIsNoOp(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)

	paid, ev, err := e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)

	// same provider payment id again: current state, no second event
	replayed, ev2, err := e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	assert.Nil(t, ev2)
	assert.Equal(t, paid.Version, replayed.Version)
	assert.Equal(t, StatusPaid, replayed.Status)
}

func TestMarkPaidSealsKeyAfterCrashedAttempt(t *testing.T) {
	e, store, idem := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)

	// simulate an attempt that transitioned the order but died before
	// sealing its key
	o.Status = StatusPaid
	o.PaymentRef = "pay_1"
	o.Version++
	require.NoError(t, store.Update(ctx, o, o.Version-1))

	got, ev, err := e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, idempotency.StatusDone, idem.records["markpaid:pay_1"].Status)
}

func TestMarkPaidStaleVersion(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)

	_, _, err = e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version-1)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestCancelBeforePayment(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)

	o, ev, err := e.Cancel(ctx, o.OrderID, "changed my mind", o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventOrderCancelled, ev.Type)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "changed my mind", o.CancelReason)
}

func TestCancelRefusedOncePaid(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)
	o, _, err = e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)

	_, _, err = e.Cancel(ctx, o.OrderID, "too late", o.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConcurrentCancelOneWins(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)

	_, _, err = e.Cancel(ctx, o.OrderID, "first", o.Version)
	require.NoError(t, err)

	// a second actor holding the same stale version loses
	_, _, err = e.Cancel(ctx, o.OrderID, "second", o.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestRefundPartialThenFull(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)
	o, _, err = e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)

	o, ev, err := e.Refund(ctx, o.OrderID, 50, o.Version)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, int64(50), o.RefundedCents)

	// over-refund refused
	_, _, err = e.Refund(ctx, o.OrderID, 100, o.Version)
	assert.ErrorIs(t, err, ErrRefundExceedsPaid)

	// remainder flips to terminal REFUNDED
	o, ev, err = e.Refund(ctx, o.OrderID, 63, o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventOrderRefunded, ev.Type)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Equal(t, int64(113), o.RefundedCents)
}

func TestRefundAfterShipment(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)
	o, err = e.RecordPaymentIntent(ctx, o.OrderID, "pi_1", o.Version)
	require.NoError(t, err)
	o, _, err = e.MarkPaid(ctx, o.OrderID, "pay_1", 113, o.Version)
	require.NoError(t, err)
	o, _, err = e.Ship(ctx, o.OrderID, o.Version)
	require.NoError(t, err)

	o, ev, err := e.Refund(ctx, o.OrderID, 113, o.Version)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, StatusRefunded, o.Status)
}

func TestRefundBeforePaymentRefused(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := e.Create(ctx, testInput())
	require.NoError(t, err)

	_, _, err = e.Refund(ctx, o.OrderID, 10, o.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusAwaitingPayment))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusAwaitingPayment, StatusPaid))
	assert.True(t, CanTransition(StatusCompleted, StatusRefunded))
	assert.False(t, CanTransition(StatusPaid, StatusCancelled))
	assert.False(t, CanTransition(StatusPending, StatusShipped))
	assert.False(t, CanTransition(StatusRefunded, StatusPaid))
	assert.False(t, CanTransition(StatusCancelled, StatusAwaitingPayment))
}
