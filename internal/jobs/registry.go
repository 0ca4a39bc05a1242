package jobs

import (
	"context"
	"fmt"
)

// Handler executes one job type. Handlers run at-least-once and must be
// idempotent: any externally visible effect goes through an idempotency key
// derived deterministically from the payload.
type Handler interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// Registry routes claimed jobs to their type handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(hs))}
	for _, h := range hs {
		r.handlers[h.Type()] = h
	}
	return r
}

// Run executes the job's handler. Unknown types fail and ride the normal
// retry path to the dead-letter queue for inspection.
func (r *Registry) Run(ctx context.Context, job *Job) error {
	h, ok := r.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
	return h.Handle(ctx, []byte(job.Payload))
}
