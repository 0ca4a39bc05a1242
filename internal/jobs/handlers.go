package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/progRizvi/MarketMate/internal/idempotency"
	"github.com/progRizvi/MarketMate/internal/orders"
)

// OrderLoader reads order state for handlers. Satisfied by *orders.Engine.
type OrderLoader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// IdempotencyStore is the slice of the idempotency store handlers use to
// keep their external effects exactly-once. Satisfied by *idempotency.Store.
type IdempotencyStore interface {
	BeginOrFetch(ctx context.Context, key string) (*idempotency.Reservation, *idempotency.Record, error)
	Complete(ctx context.Context, res *idempotency.Reservation, result string) error
	Fail(ctx context.Context, res *idempotency.Reservation, note string) error
}

// InvoiceRenderer produces the invoice document and returns its location.
type InvoiceRenderer interface {
	Render(ctx context.Context, o *orders.Order) (string, error)
}

// Mailer sends one templated notification.
type Mailer interface {
	Send(ctx context.Context, recipient, template string, data map[string]string) error
}

// InventoryAdjuster moves stock for one product.
type InventoryAdjuster interface {
	Adjust(ctx context.Context, productID string, delta int) error
}

// ImageResizer produces an image variant and returns its location.
type ImageResizer interface {
	Resize(ctx context.Context, assetID string, width int) (string, error)
}

// guarded runs work under an idempotency key: at most one completed
// execution per key, replays return the stored result without redoing work.
func guarded(ctx context.Context, idem IdempotencyStore, key string, work func() (string, error)) error {
	res, existing, err := idem.BeginOrFetch(ctx, key)
	if err != nil {
		return err
	}
	if res == nil {
		if existing.Status == idempotency.StatusDone {
			return nil // effect already applied by an earlier run
		}
		return fmt.Errorf("effect %s is in flight elsewhere", key)
	}
	result, err := work()
	if err != nil {
		if ferr := idem.Fail(ctx, res, err.Error()); ferr != nil {
			return fmt.Errorf("%v (release key: %w)", err, ferr)
		}
		return err
	}
	return idem.Complete(ctx, res, result)
}

// InvoiceHandler renders the invoice for a paid order.
type InvoiceHandler struct {
	Orders   OrderLoader
	Renderer InvoiceRenderer
	Idem     IdempotencyStore
}

func (h *InvoiceHandler) Type() string { return TypeInvoiceGenerate }

func (h *InvoiceHandler) Handle(ctx context.Context, payload []byte) error {
	var p InvoicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode invoice payload: %w", err)
	}
	key := fmt.Sprintf("invoice:%s:%d", p.OrderID, p.Version)
	return guarded(ctx, h.Idem, key, func() (string, error) {
		o, err := h.Orders.Get(ctx, p.OrderID)
		if err != nil {
			return "", fmt.Errorf("load order %s: %w", p.OrderID, err)
		}
		location, err := h.Renderer.Render(ctx, o)
		if err != nil {
			return "", fmt.Errorf("render invoice for %s: %w", p.OrderID, err)
		}
		return fmt.Sprintf(`{"location":%q}`, location), nil
	})
}

// EmailHandler sends an order notification to the buyer.
type EmailHandler struct {
	Orders OrderLoader
	Mailer Mailer
	Idem   IdempotencyStore
}

func (h *EmailHandler) Type() string { return TypeEmailSend }

func (h *EmailHandler) Handle(ctx context.Context, payload []byte) error {
	var p EmailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode email payload: %w", err)
	}
	key := fmt.Sprintf("email:%s:%s:%d", p.Template, p.OrderID, p.Version)
	return guarded(ctx, h.Idem, key, func() (string, error) {
		o, err := h.Orders.Get(ctx, p.OrderID)
		if err != nil {
			return "", fmt.Errorf("load order %s: %w", p.OrderID, err)
		}
		data := map[string]string{
			"order_id": o.OrderID,
			"status":   o.Status,
			"total":    fmt.Sprintf("%d", o.TotalCents),
			"currency": o.Currency,
		}
		if err := h.Mailer.Send(ctx, o.BuyerID, p.Template, data); err != nil {
			return "", fmt.Errorf("send %s for %s: %w", p.Template, p.OrderID, err)
		}
		return fmt.Sprintf(`{"template":%q}`, p.Template), nil
	})
}

// InventoryHandler commits or releases the stock behind an order's lines.
type InventoryHandler struct {
	Orders   OrderLoader
	Adjuster InventoryAdjuster
	Idem     IdempotencyStore
}

func (h *InventoryHandler) Type() string { return TypeInventoryAdjust }

func (h *InventoryHandler) Handle(ctx context.Context, payload []byte) error {
	var p InventoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode inventory payload: %w", err)
	}
	o, err := h.Orders.Get(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	// one key per line: a retry after a mid-order failure must not touch
	// the lines that already moved
	for _, it := range o.Items {
		it := it
		key := fmt.Sprintf("inventory:%s:%s:%d:%s", p.Direction, p.OrderID, p.Version, it.ProductID)
		err := guarded(ctx, h.Idem, key, func() (string, error) {
			delta := -it.Quantity
			if p.Direction == DirectionRelease {
				delta = it.Quantity
			}
			if err := h.Adjuster.Adjust(ctx, it.ProductID, delta); err != nil {
				return "", fmt.Errorf("adjust %s by %d: %w", it.ProductID, delta, err)
			}
			return fmt.Sprintf(`{"delta":%d}`, delta), nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MediaHandler produces resized image variants.
type MediaHandler struct {
	Resizer ImageResizer
	Idem    IdempotencyStore
}

func (h *MediaHandler) Type() string { return TypeMediaResize }

func (h *MediaHandler) Handle(ctx context.Context, payload []byte) error {
	var p MediaPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode media payload: %w", err)
	}
	key := fmt.Sprintf("resize:%s:%d", p.AssetID, p.Width)
	return guarded(ctx, h.Idem, key, func() (string, error) {
		location, err := h.Resizer.Resize(ctx, p.AssetID, p.Width)
		if err != nil {
			return "", fmt.Errorf("resize %s to %d: %w", p.AssetID, p.Width, err)
		}
		return fmt.Sprintf(`{"location":%q}`, location), nil
	})
}
