package jobs

// Job type names.
const (
	TypeInvoiceGenerate = "invoice.generate"
	TypeEmailSend       = "email.send"
	TypeInventoryAdjust = "inventory.adjust"
	TypeMediaResize     = "media.resize"
)

// Email templates.
const (
	TemplatePaymentConfirmation  = "payment_confirmation"
	TemplateShipmentNotification = "shipment_notification"
	TemplateRefundNotification   = "refund_notification"
)

// Inventory adjustment directions.
const (
	DirectionCommit  = "commit"  // stock leaves the shop after payment
	DirectionRelease = "release" // stock returns after cancellation
)

// InvoicePayload asks for an invoice for one order at one version. The
// version pins the idempotency key so a re-run after crash renders nothing
// twice.
type InvoicePayload struct {
	OrderID string `json:"order_id"`
	Version int64  `json:"version"`
}

// EmailPayload asks for one templated notification.
type EmailPayload struct {
	OrderID  string `json:"order_id"`
	Version  int64  `json:"version"`
	Template string `json:"template"`
}

// InventoryPayload asks for a stock adjustment for every line of the order.
type InventoryPayload struct {
	OrderID   string `json:"order_id"`
	Version   int64  `json:"version"`
	Direction string `json:"direction"`
}

// MediaPayload asks for an image variant.
type MediaPayload struct {
	AssetID string `json:"asset_id"`
	Width   int    `json:"width"`
}
