package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	awsx "github.com/progRizvi/MarketMate/internal/aws"
	"github.com/progRizvi/MarketMate/internal/config"
	"github.com/progRizvi/MarketMate/internal/idempotency"
	"github.com/progRizvi/MarketMate/internal/jobs"
	"github.com/progRizvi/MarketMate/internal/orders"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	clients, err := awsx.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init AWS clients: %v", err)
	}

	metrics := awsx.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
	idemStore := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL, cfg.IdempotencyLease)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)

	wake := awsx.NewPublisher(clients.SQS, cfg.JobsQueueURL)
	queue := jobs.NewQueue(clients.DynamoDB, cfg.JobsTable, wake, jobs.RetryPolicy{
		MaxAttempts: cfg.JobMaxAttempts,
		BaseBackoff: cfg.JobBaseBackoff,
		MaxBackoff:  cfg.JobMaxBackoff,
	}, cfg.JobLease, metrics)

	registry := jobs.NewRegistry(
		&jobs.InvoiceHandler{Orders: orderStore, Renderer: logInvoiceRenderer{}, Idem: idemStore},
		&jobs.EmailHandler{Orders: orderStore, Mailer: logMailer{}, Idem: idemStore},
		&jobs.InventoryHandler{Orders: orderStore, Adjuster: logInventoryAdjuster{}, Idem: idemStore},
		&jobs.MediaHandler{Resizer: logImageResizer{}, Idem: idemStore},
	)

	processor := NewProcessor(queue, registry, workerID())

	if os.Getenv("RUN_LOCAL") == "true" {
		runLocal(ctx, processor)
		return
	}

	lambda.Start(processor.Handle)
}

// runLocal polls the job table instead of waiting on SQS wake-ups, which is
// enough for exercising handlers against local tables.
func runLocal(ctx context.Context, p *Processor) {
	log.Printf("[worker] polling as %s", p.workerID)
	for {
		job, err := p.queue.DequeueNext(ctx, p.workerID)
		if errors.Is(err, jobs.ErrNoJob) {
			time.Sleep(2 * time.Second)
			continue
		}
		if err != nil {
			log.Printf("[worker] dequeue error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if err := p.run(ctx, job); err != nil {
			log.Printf("[worker] run error: %v", err)
		}
	}
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
