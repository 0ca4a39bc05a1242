package idempotency

import "time"

// Status values for idempotency entries. IN_PROGRESS reservations carry a
// lease; FAILED entries may be re-attempted, DONE entries are final.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	HolderToken    string    `dynamodbav:"holder_token,omitempty"`
	Result         string    `dynamodbav:"result,omitempty"` // small result snapshot, enough to replay a response
	Note           string    `dynamodbav:"note,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	LeaseExpiresAt int64     `dynamodbav:"lease_expires_at"` // epoch seconds; IN_PROGRESS only
	ExpiresAt      int64     `dynamodbav:"expires_at"`       // TTL epoch seconds (retention window)
}

// Reservation proves the caller holds an IN_PROGRESS entry. Complete and
// Fail are conditional on the token so a superseded holder cannot clobber
// the record.
type Reservation struct {
	Key   string
	Token string
}
