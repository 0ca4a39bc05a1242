package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/progRizvi/MarketMate/internal/jobs"
)

// Processor claims jobs named by SQS wake-ups and runs their handlers. The
// job table owns retry scheduling; a handler failure is recorded there and
// never poisons the SQS batch.
type Processor struct {
	queue    *jobs.Queue
	registry *jobs.Registry
	workerID string
}

// NewProcessor creates a worker processor.
func NewProcessor(queue *jobs.Queue, registry *jobs.Registry, workerID string) *Processor {
	return &Processor{
		queue:    queue,
		registry: registry,
		workerID: workerID,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: the runtime redelivers the batch.
			log.Printf("[worker] error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg jobs.WakeMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	return p.processJob(ctx, msg.JobID)
}

func (p *Processor) processJob(ctx context.Context, jobID string) error {
	job, err := p.queue.Claim(ctx, jobID, p.workerID)
	if errors.Is(err, jobs.ErrNotClaimable) {
		// not due yet, held by another worker, or already finished —
		// the wake-up is stale, drop it
		log.Printf("[worker] job %s not claimable, skipping", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim %s: %w", jobID, err)
	}
	return p.run(ctx, job)
}

func (p *Processor) run(ctx context.Context, job *jobs.Job) error {
	log.Printf("[worker] running job %s (%s) attempt %d", job.JobID, job.Type, job.Attempts+1)

	if runErr := p.registry.Run(ctx, job); runErr != nil {
		switch err := p.queue.Fail(ctx, job, runErr); {
		case errors.Is(err, jobs.ErrJobDeadLettered):
			log.Printf("[worker] job %s dead-lettered after %d attempts: %v", job.JobID, job.Attempts+1, runErr)
		case errors.Is(err, jobs.ErrLeaseLost):
			log.Printf("[worker] lease lost on job %s, another worker owns it", job.JobID)
		case err != nil:
			return fmt.Errorf("record failure for %s: %w", job.JobID, err)
		default:
			log.Printf("[worker] job %s failed, retry scheduled: %v", job.JobID, runErr)
		}
		return nil
	}

	if err := p.queue.Complete(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrLeaseLost) {
			// effects ran but the lease holder changed; the re-run is
			// absorbed by handler idempotency
			log.Printf("[worker] lease lost completing job %s", job.JobID)
			return nil
		}
		return fmt.Errorf("complete %s: %w", job.JobID, err)
	}
	log.Printf("[worker] completed job %s (%s)", job.JobID, job.Type)
	return nil
}
