package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/progRizvi/MarketMate/internal/aws"
	"github.com/progRizvi/MarketMate/internal/jobs"
	"github.com/progRizvi/MarketMate/internal/orders"
)

// Enqueuer is the slice of the job queue the dispatcher uses. Satisfied by
// *jobs.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType, payload string, notBefore *time.Time) (string, error)
}

// Dispatcher turns domain events into queued side-effect jobs and fans the
// event out on the domain event stream. A dispatch failure is fatal for the
// triggering request: a paid order that never enqueues its invoice job is a
// lost invoice, so the caller must see the error and retry.
type Dispatcher struct {
	queue  Enqueuer
	stream *aws.Publisher // optional; nil disables the external stream
}

// NewDispatcher wires the dispatcher to the job queue and the event stream.
func NewDispatcher(queue Enqueuer, stream *aws.Publisher) *Dispatcher {
	return &Dispatcher{queue: queue, stream: stream}
}

// Dispatch enqueues every effect the event implies, then publishes the
// event for external consumers. Delivery is at-least-once end to end;
// handler idempotency absorbs duplicates.
func (d *Dispatcher) Dispatch(ctx context.Context, ev orders.Event) error {
	for _, spec := range effectsFor(ev) {
		if _, err := d.queue.Enqueue(ctx, spec.jobType, spec.payload, nil); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", spec.jobType, ev.OrderID, err)
		}
	}

	if d.stream != nil {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.Type, err)
		}
		attrs := map[string]string{"event_type": ev.Type}
		if err := d.stream.Send(ctx, string(body), attrs, 0); err != nil {
			return fmt.Errorf("publish %s for %s: %w", ev.Type, ev.OrderID, err)
		}
	}
	return nil
}

type effectSpec struct {
	jobType string
	payload string
}

func effectsFor(ev orders.Event) []effectSpec {
	switch ev.Type {
	case orders.EventOrderPaid:
		return []effectSpec{
			{jobs.TypeInvoiceGenerate, mustJSON(jobs.InvoicePayload{OrderID: ev.OrderID, Version: ev.Version})},
			{jobs.TypeEmailSend, mustJSON(jobs.EmailPayload{OrderID: ev.OrderID, Version: ev.Version, Template: jobs.TemplatePaymentConfirmation})},
			{jobs.TypeInventoryAdjust, mustJSON(jobs.InventoryPayload{OrderID: ev.OrderID, Version: ev.Version, Direction: jobs.DirectionCommit})},
		}
	case orders.EventOrderShipped:
		return []effectSpec{
			{jobs.TypeEmailSend, mustJSON(jobs.EmailPayload{OrderID: ev.OrderID, Version: ev.Version, Template: jobs.TemplateShipmentNotification})},
		}
	case orders.EventOrderRefunded:
		return []effectSpec{
			{jobs.TypeEmailSend, mustJSON(jobs.EmailPayload{OrderID: ev.OrderID, Version: ev.Version, Template: jobs.TemplateRefundNotification})},
		}
	case orders.EventOrderCancelled:
		return []effectSpec{
			{jobs.TypeInventoryAdjust, mustJSON(jobs.InventoryPayload{OrderID: ev.OrderID, Version: ev.Version, Direction: jobs.DirectionRelease})},
		}
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // payload structs marshal by construction
	}
	return string(b)
}
