package idempotency

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

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // retention window for completed entries
	lease     time.Duration // how long an IN_PROGRESS reservation is protected
	nowFunc   func() time.Time
	newToken  func() string
}

// NewStore returns a configured Store.
// ttlWindow: retention window for entries (e.g., 48*time.Hour).
// lease: reservation lease; a crashed holder can be superseded after it.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, lease time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		lease:     lease,
		nowFunc:   time.Now,
		newToken:  uuid.NewString,
	}
}

// ErrReservationLost indicates the reservation was superseded (lease expired
// and another caller took the key) before Complete/Fail ran.
var ErrReservationLost = errors.New("idempotency reservation lost")

// beginCondition allows the write when the key is unseen, when a previous
// attempt failed, or when an in-progress holder's lease has lapsed.
const beginCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR (#s = :inprogress AND lease_expires_at < :now)"

// BeginOrFetch reserves key for this caller. On success it returns a
// Reservation and a nil record: the caller owns the work and must finish
// with Complete or Fail. If the key is already taken it returns the stored
// record instead: DONE means replay the stored result, IN_PROGRESS means
// another caller is live inside its lease.
func (s *Store) BeginOrFetch(ctx context.Context, key string) (*Reservation, *Record, error) {
	now := s.nowFunc()
	token := s.newToken()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		HolderToken:    token,
		CreatedAt:      now,
		UpdatedAt:      now,
		LeaseExpiresAt: now.Add(s.lease).Unix(),
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(beginCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err == nil {
		return &Reservation{Key: key, Token: token}, nil, nil
	}

	var cc *types.ConditionalCheckFailedException
	if !errors.As(err, &cc) {
		return nil, nil, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if existing == nil {
		// raced against a delete or TTL expiry; treat as transient
		return nil, nil, fmt.Errorf("idempotency key %s vanished during reservation", key)
	}
	return nil, existing, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

const finishCondition = "#s = :inprogress AND holder_token = :token"

// Complete marks the reservation DONE and stores the result snapshot.
func (s *Store) Complete(ctx context.Context, res *Reservation, result string) error {
	return s.finish(ctx, res, StatusDone, "result", result)
}

// Fail marks the reservation FAILED with a note. A failed key can be
// reserved again by a later attempt.
func (s *Store) Fail(ctx context.Context, res *Reservation, note string) error {
	return s.finish(ctx, res, StatusFailed, "note", note)
}

func (s *Store) finish(ctx context.Context, res *Reservation, status, field, value string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: res.Key},
		},
		// "result" is a DynamoDB reserved word, so the target attribute is
		// always aliased.
		UpdateExpression:         awsString("SET #s = :status, #f = :value, updated_at = :ua"),
		ConditionExpression:      awsString(finishCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#f": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: status},
			":value":      &types.AttributeValueMemberS{Value: value},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":token":      &types.AttributeValueMemberS{Value: res.Token},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrReservationLost
		}
		return fmt.Errorf("update item (%s): %w", status, err)
	}
	return nil
}

// CompleteTransactItem builds the TransactWriteItems entry that flips this
// reservation to DONE. Callers that must commit the result together with
// another table's write (the webhook ingestor) include it in their
// transaction instead of calling Complete.
func (s *Store) CompleteTransactItem(res *Reservation, result string) types.TransactWriteItem {
	now := s.nowFunc()
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"idempotency_key": &types.AttributeValueMemberS{Value: res.Key},
			},
			UpdateExpression:         awsString("SET #s = :status, #r = :value, updated_at = :ua"),
			ConditionExpression:      awsString(finishCondition),
			ExpressionAttributeNames: map[string]string{"#s": "status", "#r": "result"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status":     &types.AttributeValueMemberS{Value: StatusDone},
				":value":      &types.AttributeValueMemberS{Value: result},
				":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
				":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
				":token":      &types.AttributeValueMemberS{Value: res.Token},
			},
		},
	}
}

func awsString(s string) *string { return &s }
