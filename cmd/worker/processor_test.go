package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progRizvi/MarketMate/internal/jobs"
)

// jobTableMock is a jobs table stand-in that honors the queue's conditional
// claim and lease writes.
type jobTableMock struct {
	jobs map[string]jobs.Job
}

func newJobTableMock() *jobTableMock {
	return &jobTableMock{jobs: map[string]jobs.Job{}}
}

func (m *jobTableMock) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	var j jobs.Job
	if err := attributevalue.UnmarshalMap(in.Item, &j); err != nil {
		return nil, err
	}
	m.jobs[j.JobID] = j
	return &dyn.PutItemOutput{}, nil
}

func (m *jobTableMock) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	id := in.Key["job_id"].(*types.AttributeValueMemberS).Value
	j, ok := m.jobs[id]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	item, err := attributevalue.MarshalMap(j)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *jobTableMock) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	id := in.Key["job_id"].(*types.AttributeValueMemberS).Value
	j, ok := m.jobs[id]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	vals := in.ExpressionAttributeValues
	str := func(k string) string {
		if v, ok := vals[k].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	num := func(k string) int64 {
		if v, ok := vals[k].(*types.AttributeValueMemberN); ok {
			n, _ := strconv.ParseInt(v.Value, 10, 64)
			return n
		}
		return 0
	}

	switch {
	case strings.Contains(*in.UpdateExpression, "lease_token = :token"):
		now := num(":now")
		due := (j.Status == jobs.StatusQueued || j.Status == jobs.StatusFailed) && j.NextRunAt <= now
		expired := j.Status == jobs.StatusRunning && j.LeaseExpiresAt < now
		if !due && !expired {
			return nil, &types.ConditionalCheckFailedException{}
		}
		j.Status = jobs.StatusRunning
		j.WorkerID = str(":worker")
		j.LeaseToken = str(":token")
		j.LeaseExpiresAt = num(":lease")
	case strings.Contains(*in.UpdateExpression, ":succeeded"):
		if j.Status != jobs.StatusRunning || j.LeaseToken != str(":token") {
			return nil, &types.ConditionalCheckFailedException{}
		}
		j.Status = jobs.StatusSucceeded
		j.Attempts = int(num(":attempts"))
	case strings.Contains(*in.UpdateExpression, "last_error = :err"):
		if j.Status != jobs.StatusRunning || j.LeaseToken != str(":token") {
			return nil, &types.ConditionalCheckFailedException{}
		}
		j.Status = str(":status")
		j.Attempts = int(num(":attempts"))
		j.NextRunAt = num(":next_run")
		j.LastError = str(":err")
	}
	m.jobs[id] = j

	item, err := attributevalue.MarshalMap(j)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *jobTableMock) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return &dyn.ScanOutput{}, nil
}

func (m *jobTableMock) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}

// scriptedHandler lets tests choose the outcome per run.
type scriptedHandler struct {
	jobType string
	err     error
	runs    int
}

func (h *scriptedHandler) Type() string { return h.jobType }

func (h *scriptedHandler) Handle(ctx context.Context, payload []byte) error {
	h.runs++
	return h.err
}

func testQueue(mock *jobTableMock) *jobs.Queue {
	return jobs.NewQueue(mock, "jobs", nil, jobs.RetryPolicy{
		MaxAttempts: 2,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  time.Minute,
	}, 2*time.Minute, nil)
}

func wakeEvent(jobID string) events.SQSEvent {
	return events.SQSEvent{
		Records: []events.SQSMessage{
			{Body: `{"job_id":"` + jobID + `"}`},
		},
	}
}

func TestProcessorRunsAndCompletesJob(t *testing.T) {
	mock := newJobTableMock()
	queue := testQueue(mock)
	handler := &scriptedHandler{jobType: jobs.TypeEmailSend}
	p := NewProcessor(queue, jobs.NewRegistry(handler), "worker-test")
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, jobs.TypeEmailSend, `{"order_id":"o1"}`, nil)
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, wakeEvent(id)))
	assert.Equal(t, 1, handler.runs)
	assert.Equal(t, jobs.StatusSucceeded, mock.jobs[id].Status)
}

func TestProcessorSkipsUnclaimableJob(t *testing.T) {
	mock := newJobTableMock()
	queue := testQueue(mock)
	handler := &scriptedHandler{jobType: jobs.TypeEmailSend}
	p := NewProcessor(queue, jobs.NewRegistry(handler), "worker-test")
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, jobs.TypeEmailSend, `{}`, nil)
	require.NoError(t, err)
	_, err = queue.Claim(ctx, id, "another-worker")
	require.NoError(t, err)

	// stale wake-up for a job someone else holds: acknowledged, not run
	require.NoError(t, p.Handle(ctx, wakeEvent(id)))
	assert.Equal(t, 0, handler.runs)
}

func TestProcessorRecordsFailureWithoutPoisoningBatch(t *testing.T) {
	mock := newJobTableMock()
	queue := testQueue(mock)
	handler := &scriptedHandler{jobType: jobs.TypeEmailSend, err: errors.New("smtp down")}
	p := NewProcessor(queue, jobs.NewRegistry(handler), "worker-test")
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, jobs.TypeEmailSend, `{}`, nil)
	require.NoError(t, err)

	// first failure schedules a retry, second hits the cap
	require.NoError(t, p.Handle(ctx, wakeEvent(id)))
	assert.Equal(t, jobs.StatusFailed, mock.jobs[id].Status)
	assert.Equal(t, "smtp down", mock.jobs[id].LastError)

	// make the retry due now
	j := mock.jobs[id]
	j.NextRunAt = 0
	mock.jobs[id] = j

	require.NoError(t, p.Handle(ctx, wakeEvent(id)))
	assert.Equal(t, jobs.StatusDeadLettered, mock.jobs[id].Status)
	assert.Equal(t, 2, handler.runs)
}

func TestProcessorRejectsBadMessageBody(t *testing.T) {
	p := NewProcessor(testQueue(newJobTableMock()), jobs.NewRegistry(), "worker-test")

	ev := events.SQSEvent{Records: []events.SQSMessage{{Body: "not json"}}}
	assert.Error(t, p.Handle(context.Background(), ev))
}

func TestProcessorDeadLettersUnknownJobType(t *testing.T) {
	mock := newJobTableMock()
	queue := testQueue(mock)
	p := NewProcessor(queue, jobs.NewRegistry(), "worker-test")
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, "job.nobody_handles", `{}`, nil)
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, wakeEvent(id)))
	assert.Equal(t, jobs.StatusFailed, mock.jobs[id].Status)
	assert.Contains(t, mock.jobs[id].LastError, "job.nobody_handles")
}
