package orders

import "errors"

var (
	// ErrInvalidItems means a line item has a non-positive quantity or a
	// missing price snapshot. Caller-facing, never retried.
	ErrInvalidItems = errors.New("invalid order items")

	// ErrInvalidTransition means the command is not legal from the order's
	// current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAmountMismatch means a payment amount does not equal the order
	// total. Partial payments are never silently accepted as settlement.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrRefundExceedsPaid means the cumulative refund would exceed the
	// captured total.
	ErrRefundExceedsPaid = errors.New("refund exceeds captured total")

	// ErrConcurrentModification means the supplied version is stale; the
	// caller must reload the order and retry.
	ErrConcurrentModification = errors.New("order was modified concurrently")

	// ErrAlreadyExists means an order with this id is already stored.
	ErrAlreadyExists = errors.New("order already exists")

	// ErrNotFound means no order with this id is stored.
	ErrNotFound = errors.New("order not found")
)
