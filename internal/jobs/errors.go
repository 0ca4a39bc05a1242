package jobs

import "errors"

var (
	// ErrNotFound means no job with this id is stored.
	ErrNotFound = errors.New("job not found")

	// ErrNotClaimable means the job is not due, already claimed under a
	// live lease, or in a terminal state.
	ErrNotClaimable = errors.New("job not claimable")

	// ErrNoJob means no claimable job exists right now.
	ErrNoJob = errors.New("no job available")

	// ErrLeaseLost means the worker's lease expired and the job was claimed
	// by someone else before Complete/Fail ran.
	ErrLeaseLost = errors.New("job lease lost")

	// ErrJobDeadLettered means the job exhausted its retry budget and now
	// requires manual intervention through the admin surface.
	ErrJobDeadLettered = errors.New("job dead-lettered")

	// ErrNotDeadLettered means a requeue was attempted on a job that is not
	// dead-lettered.
	ErrNotDeadLettered = errors.New("job is not dead-lettered")

	// ErrUnknownJobType means no handler is registered for the job's type.
	ErrUnknownJobType = errors.New("unknown job type")
)
