package orders

import "time"

// Order statuses. Cancellation branches off before payment; refunds are the
// only exit once money has been captured.
const (
	StatusPending         = "PENDING"
	StatusAwaitingPayment = "AWAITING_PAYMENT"
	StatusPaid            = "PAID"
	StatusShipped         = "SHIPPED"
	StatusCompleted       = "COMPLETED"
	StatusCancelled       = "CANCELLED"
	StatusRefunded        = "REFUNDED"
)

// LineItem is a priced order line. The unit price is snapshotted at order
// creation time and never recomputed from the live catalog.
type LineItem struct {
	ProductID      string `dynamodbav:"product_id" json:"product_id"`
	Name           string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity       int    `dynamodbav:"quantity" json:"quantity"`
	UnitPriceCents int64  `dynamodbav:"unit_price_cents" json:"unit_price_cents"`
}

// Order is the item stored in the orders table. All money amounts are minor
// units (cents). Version is a per-order monotonically increasing integer;
// every write is conditional on the version the caller read.
type Order struct {
	OrderID       string               `dynamodbav:"order_id" json:"order_id"` // PK
	BuyerID       string               `dynamodbav:"buyer_id" json:"buyer_id"`
	ShopID        string               `dynamodbav:"shop_id" json:"shop_id"`
	Items         []LineItem           `dynamodbav:"items" json:"items"`
	SubtotalCents int64                `dynamodbav:"subtotal_cents" json:"subtotal_cents"`
	TaxCents      int64                `dynamodbav:"tax_cents" json:"tax_cents"`
	ShippingCents int64                `dynamodbav:"shipping_cents" json:"shipping_cents"`
	TotalCents    int64                `dynamodbav:"total_cents" json:"total_cents"`
	Currency      string               `dynamodbav:"currency" json:"currency"`
	Status        string               `dynamodbav:"status" json:"status"`
	PaymentRef    string               `dynamodbav:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	RefundedCents int64                `dynamodbav:"refunded_cents,omitempty" json:"refunded_cents,omitempty"`
	CancelReason  string               `dynamodbav:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	Version       int64                `dynamodbav:"version" json:"version"`
	Transitions   map[string]time.Time `dynamodbav:"transitions,omitempty" json:"transitions,omitempty"` // status -> entered at
	CreatedAt     time.Time            `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `dynamodbav:"updated_at" json:"updated_at"`
}
