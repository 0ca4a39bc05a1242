package payments

import "time"

// Processing outcomes recorded on payment events.
const (
	OutcomeAccepted = "ACCEPTED"
	OutcomeFailed   = "FAILED"
	OutcomeSkipped  = "SKIPPED"
)

// PaymentEvent is the audit row for a received provider webhook. Rows are
// immutable once written and retained for replay safety.
type PaymentEvent struct {
	EventID    string    `dynamodbav:"event_id"` // PK: provider-assigned id, the dedup key
	Provider   string    `dynamodbav:"provider"`
	EventType  string    `dynamodbav:"event_type"`
	Payload    string    `dynamodbav:"payload"` // raw body as received
	OrderID    string    `dynamodbav:"order_id,omitempty"`
	Outcome    string    `dynamodbav:"outcome"`
	Note       string    `dynamodbav:"note,omitempty"`
	ReceivedAt time.Time `dynamodbav:"received_at"`
}

// providerEvent is the generic wire shape we accept from providers. Concrete
// provider formats are adapted to it at the edge.
type providerEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		OrderID     string `json:"order_id"`
		PaymentID   string `json:"payment_id"`
		AmountCents int64  `json:"amount_cents"`
		Reason      string `json:"reason"`
	} `json:"data"`
}
