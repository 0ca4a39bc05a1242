package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/progRizvi/MarketMate/internal/idempotency"
)

// IdempotencyStore is what the engine needs to make MarkPaid replay-safe.
// Satisfied by *idempotency.Store.
type IdempotencyStore interface {
	BeginOrFetch(ctx context.Context, key string) (*idempotency.Reservation, *idempotency.Record, error)
	Complete(ctx context.Context, res *idempotency.Reservation, result string) error
	Fail(ctx context.Context, res *idempotency.Reservation, note string) error
}

// Engine owns all order state transitions. No other component writes order
// rows. Every command takes the version the caller read; a stale version
// fails with ErrConcurrentModification and applies nothing.
type Engine struct {
	store   Storage
	idem    IdempotencyStore
	nowFunc func() time.Time
	newID   func() string
}

// NewEngine wires the engine to its order storage and the idempotency store.
func NewEngine(store Storage, idem IdempotencyStore) *Engine {
	return &Engine{
		store:   store,
		idem:    idem,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// CreateOrderInput is the checkout command payload. Unit prices are the
// snapshot captured by the caller; the engine never consults live catalog
// data.
type CreateOrderInput struct {
	BuyerID       string
	ShopID        string
	Currency      string
	Items         []LineItem
	TaxCents      int64
	ShippingCents int64
}

// Create validates the line items, computes the immutable totals and stores
// a new order in PENDING at version 1.
func (e *Engine) Create(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrInvalidItems)
	}
	var subtotal int64
	for _, it := range in.Items {
		if it.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product reference", ErrInvalidItems)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: non-positive quantity for product %s", ErrInvalidItems, it.ProductID)
		}
		if it.UnitPriceCents <= 0 {
			return nil, fmt.Errorf("%w: missing price snapshot for product %s", ErrInvalidItems, it.ProductID)
		}
		subtotal += int64(it.Quantity) * it.UnitPriceCents
	}
	if in.TaxCents < 0 || in.ShippingCents < 0 {
		return nil, fmt.Errorf("%w: negative tax or shipping", ErrInvalidItems)
	}

	now := e.nowFunc()
	o := &Order{
		OrderID:       e.newID(),
		BuyerID:       in.BuyerID,
		ShopID:        in.ShopID,
		Items:         in.Items,
		SubtotalCents: subtotal,
		TaxCents:      in.TaxCents,
		ShippingCents: in.ShippingCents,
		TotalCents:    subtotal + in.TaxCents + in.ShippingCents,
		Currency:      in.Currency,
		Status:        StatusPending,
		Version:       1,
		Transitions:   map[string]time.Time{StatusPending: now},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Get loads an order by id.
func (e *Engine) Get(ctx context.Context, orderID string) (*Order, error) {
	return e.store.Get(ctx, orderID)
}

// RecordPaymentIntent moves PENDING -> AWAITING_PAYMENT and records the
// provider's intent reference. Emits no domain event.
func (e *Engine) RecordPaymentIntent(ctx context.Context, orderID, providerRef string, expectedVersion int64) (*Order, error) {
	o, err := e.load(ctx, orderID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusAwaitingPayment) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusAwaitingPayment)
	}
	o.PaymentRef = providerRef
	e.apply(o, StatusAwaitingPayment)
	if err := e.store.Update(ctx, o, expectedVersion); err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaid settles the order: AWAITING_PAYMENT -> PAID. The amount must
// equal the order total exactly. Replaying the same providerPaymentID after
// success is a no-op returning the existing state with no event, enforced
// through the idempotency store.
func (e *Engine) MarkPaid(ctx context.Context, orderID, providerPaymentID string, amountCents, expectedVersion int64) (*Order, *Event, error) {
	key := "markpaid:" + providerPaymentID
	res, existing, err := e.idem.BeginOrFetch(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if res == nil {
		if existing.Status == idempotency.StatusDone {
			o, err := e.store.Get(ctx, orderID)
			if err != nil {
				return nil, nil, err
			}
			return o, nil, nil
		}
		// a live holder is settling this payment right now
		return nil, nil, ErrConcurrentModification
	}

	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		e.release(ctx, res, err)
		return nil, nil, err
	}
	if o.Status == StatusPaid && o.PaymentRef == providerPaymentID {
		// a previous attempt transitioned the order but crashed before
		// sealing the key; seal it now and replay
		if err := e.idem.Complete(ctx, res, paidResult(o)); err != nil {
			log.Printf("[orders] seal replayed markPaid key %s: %v", key, err)
		}
		return o, nil, nil
	}
	if o.Version != expectedVersion {
		e.release(ctx, res, ErrConcurrentModification)
		return nil, nil, ErrConcurrentModification
	}
	if !CanTransition(o.Status, StatusPaid) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPaid)
		e.release(ctx, res, err)
		return nil, nil, err
	}
	if amountCents != o.TotalCents {
		err := fmt.Errorf("%w: got %d, order total %d", ErrAmountMismatch, amountCents, o.TotalCents)
		e.release(ctx, res, err)
		return nil, nil, err
	}

	o.PaymentRef = providerPaymentID
	ev := e.applyEvent(o, StatusPaid, EventOrderPaid)
	if err := e.store.Update(ctx, o, expectedVersion); err != nil {
		e.release(ctx, res, err)
		return nil, nil, err
	}
	if err := e.idem.Complete(ctx, res, paidResult(o)); err != nil {
		// transition is committed; a superseding holder will observe PAID
		// and seal the key itself
		log.Printf("[orders] complete markPaid key %s: %v", key, err)
	}
	return o, ev, nil
}

// Ship moves PAID -> SHIPPED and emits OrderShipped.
func (e *Engine) Ship(ctx context.Context, orderID string, expectedVersion int64) (*Order, *Event, error) {
	return e.transition(ctx, orderID, expectedVersion, StatusShipped, EventOrderShipped)
}

// Complete moves SHIPPED -> COMPLETED. Emits no domain event.
func (e *Engine) Complete(ctx context.Context, orderID string, expectedVersion int64) (*Order, error) {
	o, _, err := e.transition(ctx, orderID, expectedVersion, StatusCompleted, "")
	return o, err
}

// Cancel moves a pre-payment order to CANCELLED and emits OrderCancelled.
// Once money is captured, cancellation is refused: it must route through
// Refund.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string, expectedVersion int64) (*Order, *Event, error) {
	o, err := e.load(ctx, orderID, expectedVersion)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
	}
	o.CancelReason = reason
	ev := e.applyEvent(o, StatusCancelled, EventOrderCancelled)
	if err := e.store.Update(ctx, o, expectedVersion); err != nil {
		return nil, nil, err
	}
	return o, ev, nil
}

// Refund records a refund against a settled order. Partial refunds
// accumulate without changing status; the refund that reaches the captured
// total flips the order to its terminal REFUNDED state and emits
// OrderRefunded. The cumulative refund may never exceed the captured total.
func (e *Engine) Refund(ctx context.Context, orderID string, amountCents, expectedVersion int64) (*Order, *Event, error) {
	if amountCents <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive refund amount", ErrInvalidItems)
	}
	o, err := e.load(ctx, orderID, expectedVersion)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(o.Status, StatusRefunded) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusRefunded)
	}
	if o.RefundedCents+amountCents > o.TotalCents {
		return nil, nil, fmt.Errorf("%w: %d + %d > %d", ErrRefundExceedsPaid, o.RefundedCents, amountCents, o.TotalCents)
	}

	o.RefundedCents += amountCents
	var ev *Event
	if o.RefundedCents == o.TotalCents {
		ev = e.applyEvent(o, StatusRefunded, EventOrderRefunded)
	} else {
		now := e.nowFunc()
		o.UpdatedAt = now
		o.Version++
	}
	if err := e.store.Update(ctx, o, expectedVersion); err != nil {
		return nil, nil, err
	}
	return o, ev, nil
}

func (e *Engine) transition(ctx context.Context, orderID string, expectedVersion int64, to, eventType string) (*Order, *Event, error) {
	o, err := e.load(ctx, orderID, expectedVersion)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	ev := e.applyEvent(o, to, eventType)
	if err := e.store.Update(ctx, o, expectedVersion); err != nil {
		return nil, nil, err
	}
	return o, ev, nil
}

func (e *Engine) load(ctx context.Context, orderID string, expectedVersion int64) (*Order, error) {
	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Version != expectedVersion {
		return nil, ErrConcurrentModification
	}
	return o, nil
}

// apply stamps the transition and bumps the version.
func (e *Engine) apply(o *Order, to string) {
	now := e.nowFunc()
	o.Status = to
	if o.Transitions == nil {
		o.Transitions = map[string]time.Time{}
	}
	o.Transitions[to] = now
	o.UpdatedAt = now
	o.Version++
}

func (e *Engine) applyEvent(o *Order, to, eventType string) *Event {
	e.apply(o, to)
	if eventType == "" {
		return nil
	}
	return &Event{
		Type:    eventType,
		OrderID: o.OrderID,
		Version: o.Version,
		Status:  to,
		At:      o.UpdatedAt,
	}
}

func (e *Engine) release(ctx context.Context, res *idempotency.Reservation, cause error) {
	if err := e.idem.Fail(ctx, res, cause.Error()); err != nil {
		log.Printf("[orders] release idempotency key %s: %v", res.Key, err)
	}
}

func paidResult(o *Order) string {
	return fmt.Sprintf(`{"order_id":%q,"status":%q,"version":%d}`, o.OrderID, o.Status, o.Version)
}
