package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the binaries read from the environment.
type Config struct {
	HTTPAddr    string
	ServiceName string

	OrdersTable        string
	PaymentEventsTable string
	IdempotencyTable   string
	JobsTable          string

	JobsQueueURL        string
	EventStreamQueueURL string

	PaymentProvider  string
	WebhookSecret    string
	WebhookTolerance time.Duration

	IdempotencyTTL   time.Duration
	IdempotencyLease time.Duration

	JobMaxAttempts int
	JobBaseBackoff time.Duration
	JobMaxBackoff  time.Duration
	JobLease       time.Duration

	MetricsNamespace string
}

func Load() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		ServiceName: getenv("SERVICE_NAME", "marketmate"),

		OrdersTable:        getenv("ORDERS_TABLE", "marketmate-orders"),
		PaymentEventsTable: getenv("PAYMENT_EVENTS_TABLE", "marketmate-payment-events"),
		IdempotencyTable:   getenv("IDEMPOTENCY_TABLE", "marketmate-idempotency"),
		JobsTable:          getenv("JOBS_TABLE", "marketmate-jobs"),

		JobsQueueURL:        getenv("JOBS_QUEUE_URL", ""),
		EventStreamQueueURL: getenv("EVENT_STREAM_QUEUE_URL", ""),

		PaymentProvider:  getenv("PAYMENT_PROVIDER", "stripe"),
		WebhookSecret:    getenv("WEBHOOK_SECRET", ""),
		WebhookTolerance: getduration("WEBHOOK_TOLERANCE", 5*time.Minute),

		IdempotencyTTL:   getduration("IDEMPOTENCY_TTL", 48*time.Hour),
		IdempotencyLease: getduration("IDEMPOTENCY_LEASE", 30*time.Second),

		JobMaxAttempts: getint("JOB_MAX_ATTEMPTS", 8),
		JobBaseBackoff: getduration("JOB_BASE_BACKOFF", 5*time.Second),
		JobMaxBackoff:  getduration("JOB_MAX_BACKOFF", 10*time.Minute),
		JobLease:       getduration("JOB_LEASE", 2*time.Minute),

		MetricsNamespace: getenv("METRICS_NAMESPACE", "MarketMate"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
