package jobs

import "time"

// Job statuses. FAILED jobs are still live: they re-run once their backoff
// elapses. SUCCEEDED and DEAD_LETTERED are terminal.
const (
	StatusQueued       = "QUEUED"
	StatusRunning      = "RUNNING"
	StatusSucceeded    = "SUCCEEDED"
	StatusFailed       = "FAILED"
	StatusDeadLettered = "DEAD_LETTERED"
)

// Attempt is one execution record kept on the job for the admin surface.
type Attempt struct {
	Number     int       `dynamodbav:"number" json:"number"`
	WorkerID   string    `dynamodbav:"worker_id" json:"worker_id"`
	StartedAt  time.Time `dynamodbav:"started_at" json:"started_at"`
	FinishedAt time.Time `dynamodbav:"finished_at" json:"finished_at"`
	Error      string    `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

// Job is the item stored in the jobs table. The queue knows nothing about
// what payloads mean; handlers own that.
type Job struct {
	JobID          string    `dynamodbav:"job_id" json:"job_id"` // PK
	Type           string    `dynamodbav:"job_type" json:"job_type"`
	Payload        string    `dynamodbav:"payload" json:"payload"` // JSON
	Status         string    `dynamodbav:"status" json:"status"`
	Attempts       int       `dynamodbav:"attempts" json:"attempts"`
	NextRunAt      int64     `dynamodbav:"next_run_at" json:"next_run_at"` // epoch seconds
	WorkerID       string    `dynamodbav:"worker_id,omitempty" json:"worker_id,omitempty"`
	LeaseToken     string    `dynamodbav:"lease_token,omitempty" json:"-"`
	LeaseExpiresAt int64     `dynamodbav:"lease_expires_at" json:"lease_expires_at,omitempty"`
	ClaimedAt      time.Time `dynamodbav:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	LastError      string    `dynamodbav:"last_error,omitempty" json:"last_error,omitempty"`
	History        []Attempt `dynamodbav:"history,omitempty" json:"history,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// WakeMessage is the SQS body that nudges a worker to claim a job. The job
// table stays authoritative: a message arriving before next_run_at simply
// fails to claim.
type WakeMessage struct {
	JobID string `json:"job_id"`
}
