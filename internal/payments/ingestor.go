package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/progRizvi/MarketMate/internal/aws"
	"github.com/progRizvi/MarketMate/internal/idempotency"
	"github.com/progRizvi/MarketMate/internal/orders"
)

// Provider event types we map onto engine commands.
const (
	TypePaymentIntentCreated   = "payment_intent.created"
	TypePaymentIntentSucceeded = "payment_intent.succeeded"
	TypePaymentIntentCanceled  = "payment_intent.canceled"
	TypeChargeRefunded         = "charge.refunded"
)

// ErrMalformedEvent means the body is not a parseable provider event. Not
// retryable: redelivery of the same bytes cannot succeed.
var ErrMalformedEvent = errors.New("malformed provider event")

// ErrRetryLater signals the provider should redeliver: the event is recorded
// (or reserved) but its effects have not been applied.
var ErrRetryLater = errors.New("webhook processing failed, provider should retry")

// OrderCommands is the slice of the order engine the ingestor drives.
type OrderCommands interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	RecordPaymentIntent(ctx context.Context, orderID, providerRef string, expectedVersion int64) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID, providerPaymentID string, amountCents, expectedVersion int64) (*orders.Order, *orders.Event, error)
	Cancel(ctx context.Context, orderID, reason string, expectedVersion int64) (*orders.Order, *orders.Event, error)
	Refund(ctx context.Context, orderID string, amountCents, expectedVersion int64) (*orders.Order, *orders.Event, error)
}

// EffectDispatcher receives domain events produced by webhook-driven
// commands.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, ev orders.Event) error
}

// IdempotencyReserver is the slice of the idempotency store the ingestor
// uses. Satisfied by *idempotency.Store.
type IdempotencyReserver interface {
	BeginOrFetch(ctx context.Context, key string) (*idempotency.Reservation, *idempotency.Record, error)
	Fail(ctx context.Context, res *idempotency.Reservation, note string) error
	CompleteTransactItem(res *idempotency.Reservation, result string) dyntypes.TransactWriteItem
}

// Ingestor verifies, deduplicates and translates provider webhook events
// into order engine commands.
type Ingestor struct {
	provider  string
	secret    string
	tolerance time.Duration
	events    *Store
	idem      IdempotencyReserver
	engine    OrderCommands
	dispatch  EffectDispatcher
	metrics   *aws.Metrics
	nowFunc   func() time.Time
}

// NewIngestor wires an ingestor for one provider.
func NewIngestor(provider, secret string, tolerance time.Duration, events *Store, idem IdempotencyReserver, engine OrderCommands, dispatch EffectDispatcher, metrics *aws.Metrics) *Ingestor {
	return &Ingestor{
		provider:  provider,
		secret:    secret,
		tolerance: tolerance,
		events:    events,
		idem:      idem,
		engine:    engine,
		dispatch:  dispatch,
		metrics:   metrics,
		nowFunc:   time.Now,
	}
}

// Process handles one raw delivery. A nil return means the event is durably
// recorded and acknowledged; ErrUnauthenticatedWebhook and ErrMalformedEvent
// are terminal rejections; anything else is retry-eligible and the provider
// is expected to redeliver.
func (in *Ingestor) Process(ctx context.Context, signatureHeader string, body []byte) error {
	in.count(ctx, "WebhookReceived")

	if err := VerifySignature(in.secret, signatureHeader, body, in.nowFunc(), in.tolerance); err != nil {
		in.count(ctx, "WebhookRejected")
		log.Printf("[webhook] rejected unauthenticated delivery from %s: %v", in.provider, err)
		return err
	}

	var ev providerEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	key := "webhook:" + in.provider + ":" + ev.ID
	res, existing, err := in.idem.BeginOrFetch(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: reserve %s: %v", ErrRetryLater, key, err)
	}
	if res == nil {
		if existing.Status == idempotency.StatusDone {
			// provider retry storm: acknowledge with the stored outcome,
			// apply nothing
			in.count(ctx, "WebhookDuplicate")
			log.Printf("[webhook] duplicate delivery %s, replaying stored outcome", ev.ID)
			return nil
		}
		return fmt.Errorf("%w: delivery %s is in flight", ErrRetryLater, ev.ID)
	}

	record := PaymentEvent{
		EventID:    ev.ID,
		Provider:   in.provider,
		EventType:  ev.Type,
		Payload:    string(body),
		OrderID:    ev.Data.OrderID,
		ReceivedAt: in.nowFunc(),
	}

	domainEvent, cmdErr := in.applyCommand(ctx, ev)
	if cmdErr != nil {
		record.Outcome = OutcomeFailed
		record.Note = cmdErr.Error()
		if err := in.events.Record(ctx, record); err != nil && !errors.Is(err, ErrEventExists) {
			log.Printf("[webhook] record failed event %s: %v", ev.ID, err)
		}
		if err := in.idem.Fail(ctx, res, cmdErr.Error()); err != nil {
			log.Printf("[webhook] release key %s: %v", key, err)
		}
		return fmt.Errorf("%w: %v", ErrRetryLater, cmdErr)
	}

	// Dispatch before sealing the key: if enqueueing effects fails, the
	// redelivered event must be re-attempted. Duplicate job enqueues from
	// the crash window are absorbed by handler-level idempotency keys.
	if domainEvent != nil {
		if err := in.dispatch.Dispatch(ctx, *domainEvent); err != nil {
			if ferr := in.idem.Fail(ctx, res, err.Error()); ferr != nil {
				log.Printf("[webhook] release key %s: %v", key, ferr)
			}
			return fmt.Errorf("%w: dispatch effects: %v", ErrRetryLater, err)
		}
	}

	record.Outcome = OutcomeAccepted
	if domainEvent == nil && !knownEventType(ev.Type) {
		record.Outcome = OutcomeSkipped
	}

	// PaymentEvent row and idempotency completion land atomically; a crash
	// between them could otherwise leave the event permanently stuck.
	result := fmt.Sprintf(`{"event_id":%q,"outcome":%q}`, ev.ID, record.Outcome)
	if err := in.events.RecordWith(ctx, record, in.idem.CompleteTransactItem(res, result)); err != nil {
		return fmt.Errorf("%w: record outcome: %v", ErrRetryLater, err)
	}
	return nil
}

// applyCommand maps the event type to an engine command and runs it against
// the version read just before. Unknown types are skipped, not failed:
// providers add event types without notice.
func (in *Ingestor) applyCommand(ctx context.Context, ev providerEvent) (*orders.Event, error) {
	if !knownEventType(ev.Type) {
		log.Printf("[webhook] skipping unknown event type %q (%s)", ev.Type, ev.ID)
		return nil, nil
	}

	o, err := in.engine.Get(ctx, ev.Data.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", ev.Data.OrderID, err)
	}

	switch ev.Type {
	case TypePaymentIntentCreated:
		_, err := in.engine.RecordPaymentIntent(ctx, o.OrderID, ev.Data.PaymentID, o.Version)
		return nil, err
	case TypePaymentIntentSucceeded:
		_, domainEvent, err := in.engine.MarkPaid(ctx, o.OrderID, ev.Data.PaymentID, ev.Data.AmountCents, o.Version)
		if err == nil && domainEvent != nil {
			in.count(ctx, "OrderPaid")
		}
		return domainEvent, err
	case TypePaymentIntentCanceled:
		reason := ev.Data.Reason
		if reason == "" {
			reason = "payment cancelled by provider"
		}
		_, domainEvent, err := in.engine.Cancel(ctx, o.OrderID, reason, o.Version)
		return domainEvent, err
	case TypeChargeRefunded:
		_, domainEvent, err := in.engine.Refund(ctx, o.OrderID, ev.Data.AmountCents, o.Version)
		return domainEvent, err
	}
	return nil, nil
}

func knownEventType(t string) bool {
	switch t {
	case TypePaymentIntentCreated, TypePaymentIntentSucceeded, TypePaymentIntentCanceled, TypeChargeRefunded:
		return true
	}
	return false
}

func (in *Ingestor) count(ctx context.Context, name string) {
	in.metrics.Count(ctx, name, 1, map[string]string{"Provider": in.provider})
}
