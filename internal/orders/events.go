package orders

import "time"

// Domain event types. Each successful transition into one of these states
// emits exactly one event; intermediate transitions (awaiting payment,
// completion) bump the version but carry no event.
const (
	EventOrderPaid      = "OrderPaid"
	EventOrderShipped   = "OrderShipped"
	EventOrderCancelled = "OrderCancelled"
	EventOrderRefunded  = "OrderRefunded"
)

// Event is the envelope handed to the effect dispatcher and published on the
// domain event stream.
type Event struct {
	Type    string    `json:"type"`
	OrderID string    `json:"order_id"`
	Version int64     `json:"version"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}
