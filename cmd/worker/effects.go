package main

import (
	"context"
	"fmt"
	"log"

	"github.com/progRizvi/MarketMate/internal/orders"
)

// Log-backed collaborators behind the side-effect interfaces. Deployments
// swap in provider-backed implementations (SES, S3, warehouse API).

type logMailer struct{}

func (logMailer) Send(ctx context.Context, recipient, template string, data map[string]string) error {
	log.Printf("[mailer] sent %s to %s (order %s)", template, recipient, data["order_id"])
	return nil
}

type logInvoiceRenderer struct{}

func (logInvoiceRenderer) Render(ctx context.Context, o *orders.Order) (string, error) {
	location := fmt.Sprintf("invoices/%s-v%d.pdf", o.OrderID, o.Version)
	log.Printf("[invoice] rendered %s for order %s", location, o.OrderID)
	return location, nil
}

type logInventoryAdjuster struct{}

func (logInventoryAdjuster) Adjust(ctx context.Context, productID string, delta int) error {
	log.Printf("[inventory] adjusted %s by %d", productID, delta)
	return nil
}

type logImageResizer struct{}

func (logImageResizer) Resize(ctx context.Context, assetID string, width int) (string, error) {
	location := fmt.Sprintf("media/%s-w%d.jpg", assetID, width)
	log.Printf("[media] resized %s to %s", assetID, location)
	return location, nil
}
