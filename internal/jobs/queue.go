package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/progRizvi/MarketMate/internal/aws"
)

// RetryPolicy bounds how failing jobs are retried before dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Delay returns the backoff before the next run after the given attempt
// count: base * 2^attempts, capped at MaxBackoff.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	d := p.BaseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Queue is a durable at-least-once job queue over a DynamoDB table, with an
// SQS wake-up channel. All claims and state changes are single conditional
// writes, so workers can be independent processes with no shared memory.
type Queue struct {
	client    aws.DynamoDBAPI
	tableName string
	wake      *aws.Publisher // optional; nil means poll-only
	policy    RetryPolicy
	lease     time.Duration
	metrics   *aws.Metrics
	nowFunc   func() time.Time
	newID     func() string
}

// NewQueue returns a Queue bound to a jobs table.
func NewQueue(client aws.DynamoDBAPI, tableName string, wake *aws.Publisher, policy RetryPolicy, lease time.Duration, metrics *aws.Metrics) *Queue {
	return &Queue{
		client:    client,
		tableName: tableName,
		wake:      wake,
		policy:    policy,
		lease:     lease,
		metrics:   metrics,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Enqueue stores a new job and sends its wake-up. notBefore defers the first
// run; nil means eligible immediately. An enqueue failure is returned to the
// caller — losing a dispatch silently is never acceptable.
func (q *Queue) Enqueue(ctx context.Context, jobType, payload string, notBefore *time.Time) (string, error) {
	now := q.nowFunc()
	runAt := now
	if notBefore != nil && notBefore.After(now) {
		runAt = *notBefore
	}
	job := Job{
		JobID:     q.newID(),
		Type:      jobType,
		Payload:   payload,
		Status:    StatusQueued,
		NextRunAt: runAt.Unix(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &q.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(job_id)"),
	})
	if err != nil {
		return "", fmt.Errorf("put job: %w", err)
	}
	if err := q.sendWake(ctx, job.JobID, runAt.Sub(now)); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// claimCondition admits due QUEUED/FAILED jobs and RUNNING jobs whose
// holder's lease lapsed (crashed worker).
const claimCondition = "((#s = :queued OR #s = :failed) AND next_run_at <= :now) OR (#s = :running AND lease_expires_at < :now)"

// Claim atomically takes the job for workerID under a fresh lease. No two
// workers can hold the same job at once.
func (q *Queue) Claim(ctx context.Context, jobID, workerID string) (*Job, error) {
	now := q.nowFunc()
	token := q.newID()
	out, err := q.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &q.tableName,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:         awsString("SET #s = :running, worker_id = :worker, lease_token = :token, lease_expires_at = :lease, claimed_at = :now_ts, updated_at = :now_ts"),
		ConditionExpression:      awsString(claimCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":queued":  &types.AttributeValueMemberS{Value: StatusQueued},
			":failed":  &types.AttributeValueMemberS{Value: StatusFailed},
			":running": &types.AttributeValueMemberS{Value: StatusRunning},
			":worker":  &types.AttributeValueMemberS{Value: workerID},
			":token":   &types.AttributeValueMemberS{Value: token},
			":lease":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(q.lease).Unix(), 10)},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":now_ts":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return nil, ErrNotClaimable
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	var job Job
	if err := attributevalue.UnmarshalMap(out.Attributes, &job); err != nil {
		return nil, fmt.Errorf("unmarshal claimed job: %w", err)
	}
	return &job, nil
}

// DequeueNext scans for a due job and claims the first one it wins. Used by
// the polling worker mode; the SQS-driven path claims by id instead.
func (q *Queue) DequeueNext(ctx context.Context, workerID string) (*Job, error) {
	now := strconv.FormatInt(q.nowFunc().Unix(), 10)
	limit := int32(25)
	out, err := q.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &q.tableName,
		FilterExpression:         awsString(claimCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":queued":  &types.AttributeValueMemberS{Value: StatusQueued},
			":failed":  &types.AttributeValueMemberS{Value: StatusFailed},
			":running": &types.AttributeValueMemberS{Value: StatusRunning},
			":now":     &types.AttributeValueMemberN{Value: now},
		},
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("scan for due jobs: %w", err)
	}
	for _, item := range out.Items {
		var candidate Job
		if err := attributevalue.UnmarshalMap(item, &candidate); err != nil {
			continue
		}
		job, err := q.Claim(ctx, candidate.JobID, workerID)
		if errors.Is(err, ErrNotClaimable) {
			continue // another worker won the race
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, ErrNoJob
}

const holdingLease = "#s = :running AND lease_token = :token"

// Complete marks the claimed job SUCCEEDED. Fails with ErrLeaseLost if the
// lease was taken over in the meantime — the effects then run again
// elsewhere, which handler idempotency must absorb.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := q.nowFunc()
	attempt, err := attributevalue.Marshal(Attempt{
		Number:     job.Attempts + 1,
		WorkerID:   job.WorkerID,
		StartedAt:  job.ClaimedAt,
		FinishedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = q.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &q.tableName,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: job.JobID},
		},
		UpdateExpression:         awsString("SET #s = :succeeded, attempts = :attempts, history = list_append(if_not_exists(history, :empty), :attempt), updated_at = :now_ts"),
		ConditionExpression:      awsString(holdingLease),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":succeeded": &types.AttributeValueMemberS{Value: StatusSucceeded},
			":running":   &types.AttributeValueMemberS{Value: StatusRunning},
			":token":     &types.AttributeValueMemberS{Value: job.LeaseToken},
			":attempts":  &types.AttributeValueMemberN{Value: strconv.Itoa(job.Attempts + 1)},
			":attempt":   &types.AttributeValueMemberL{Value: []types.AttributeValue{attempt}},
			":empty":     &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":now_ts":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrLeaseLost
		}
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records a failed attempt. Below the attempt cap the job goes back to
// FAILED with an exponential-backoff next_run_at and a fresh wake-up; at the
// cap it is dead-lettered, never retried automatically again, and Fail
// reports ErrJobDeadLettered.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error) error {
	now := q.nowFunc()
	attempts := job.Attempts + 1
	dead := attempts >= q.policy.MaxAttempts

	status := StatusFailed
	var nextRunUnix int64
	backoff := q.policy.Delay(attempts)
	if dead {
		status = StatusDeadLettered
	} else {
		nextRunUnix = now.Add(backoff).Unix()
	}

	attempt, err := attributevalue.Marshal(Attempt{
		Number:     attempts,
		WorkerID:   job.WorkerID,
		StartedAt:  job.ClaimedAt,
		FinishedAt: now,
		Error:      jobErr.Error(),
	})
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	_, err = q.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &q.tableName,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: job.JobID},
		},
		UpdateExpression:         awsString("SET #s = :status, attempts = :attempts, next_run_at = :next_run, last_error = :err, history = list_append(if_not_exists(history, :empty), :attempt), updated_at = :now_ts"),
		ConditionExpression:      awsString(holdingLease),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: status},
			":running":  &types.AttributeValueMemberS{Value: StatusRunning},
			":token":    &types.AttributeValueMemberS{Value: job.LeaseToken},
			":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":next_run": &types.AttributeValueMemberN{Value: strconv.FormatInt(nextRunUnix, 10)},
			":err":      &types.AttributeValueMemberS{Value: jobErr.Error()},
			":attempt":  &types.AttributeValueMemberL{Value: []types.AttributeValue{attempt}},
			":empty":    &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":now_ts":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrLeaseLost
		}
		return fmt.Errorf("fail job: %w", err)
	}

	if dead {
		q.metrics.Count(ctx, "JobsDeadLettered", 1, map[string]string{"JobType": job.Type})
		return ErrJobDeadLettered
	}
	// when the wake-up is lost the row already carries next_run_at, so a
	// polling worker still picks the retry up
	_ = q.sendWake(ctx, job.JobID, backoff)
	return nil
}

// Requeue puts a dead-lettered job back in the queue with a reset attempt
// budget. Earlier attempts stay in the history. Admin-surface only.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	now := q.nowFunc()
	_, err := q.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &q.tableName,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:         awsString("SET #s = :queued, attempts = :zero, next_run_at = :now, updated_at = :now_ts"),
		ConditionExpression:      awsString("#s = :dead"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":queued": &types.AttributeValueMemberS{Value: StatusQueued},
			":dead":   &types.AttributeValueMemberS{Value: StatusDeadLettered},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":now_ts": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotDeadLettered
		}
		return fmt.Errorf("requeue job: %w", err)
	}
	return q.sendWake(ctx, jobID, 0)
}

// ListDeadLettered returns jobs awaiting manual inspection.
func (q *Queue) ListDeadLettered(ctx context.Context) ([]Job, error) {
	out, err := q.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &q.tableName,
		FilterExpression:         awsString("#s = :dead"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dead": &types.AttributeValueMemberS{Value: StatusDeadLettered},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan dead-lettered: %w", err)
	}
	var out2 []Job
	for _, item := range out.Items {
		var j Job
		if err := attributevalue.UnmarshalMap(item, &j); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		out2 = append(out2, j)
	}
	return out2, nil
}

// Get fetches a job by id, attempt history included.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	out, err := q.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &q.tableName,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var j Job
	if err := attributevalue.UnmarshalMap(out.Item, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

func (q *Queue) sendWake(ctx context.Context, jobID string, delay time.Duration) error {
	if q.wake == nil {
		return nil
	}
	body := fmt.Sprintf(`{"job_id":%q}`, jobID)
	if err := q.wake.Send(ctx, body, map[string]string{"kind": "job-wake"}, delay); err != nil {
		return fmt.Errorf("send wake-up for job %s: %w", jobID, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
