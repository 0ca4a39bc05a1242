package validation

// OrderItem is a single line in a checkout request. The unit price is the
// caller's pricing snapshot, in minor units.
type OrderItem struct {
	ProductID      string `json:"product_id" validate:"required"`
	Name           string `json:"name,omitempty"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"required,gt=0"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	BuyerID       string      `json:"buyer_id" validate:"required"`
	ShopID        string      `json:"shop_id" validate:"required"`
	Currency      string      `json:"currency" validate:"required,len=3"`
	Items         []OrderItem `json:"items" validate:"required,min=1,dive"`
	SubtotalCents int64       `json:"subtotal_cents" validate:"required,gt=0"`
	TaxCents      int64       `json:"tax_cents" validate:"min=0"`
	ShippingCents int64       `json:"shipping_cents" validate:"min=0"`
	TotalCents    int64       `json:"total_cents" validate:"required,gt=0"`
}

// CancelOrderRequest is the payload for POST /orders/:id/cancel. Version is
// the order version the caller read; a stale version is rejected.
type CancelOrderRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Version int64  `json:"version" validate:"required,gt=0"`
}

// ShipOrderRequest is the payload for POST /orders/:id/ship.
type ShipOrderRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

// CompleteOrderRequest is the payload for POST /orders/:id/complete.
type CompleteOrderRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

// ResizeMediaRequest is the payload for POST /media/:asset_id/variants.
// Widths are target pixel widths, one background job each.
type ResizeMediaRequest struct {
	Widths []int `json:"widths" validate:"required,min=1,dive,gt=0,lte=4096"`
}
