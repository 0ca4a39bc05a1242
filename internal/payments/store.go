package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/progRizvi/MarketMate/internal/aws"
)

// ErrEventExists means a payment event with this id is already recorded.
var ErrEventExists = errors.New("payment event already recorded")

// Store encapsulates operations on the payment events table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new payment event Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Record writes a payment event row, refusing to overwrite an existing id.
func (s *Store) Record(ctx context.Context, ev PaymentEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrEventExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// RecordWith commits the payment event row together with the supplied
// transact items (the idempotency completion) as one logical transaction:
// both land or neither does. A row with a terminal outcome is immutable;
// the put only lands on a fresh id or over a provisional FAILED row left by
// an earlier attempt of the same delivery.
func (s *Store) RecordWith(ctx context.Context, ev PaymentEvent, extra ...types.TransactWriteItem) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	items := append([]types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                &s.tableName,
			Item:                     item,
			ConditionExpression:      awsString("attribute_not_exists(event_id) OR #o = :failed"),
			ExpressionAttributeNames: map[string]string{"#o": "outcome"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":failed": &types.AttributeValueMemberS{Value: OutcomeFailed},
			},
		},
	}}, extra...)

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("outcome transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches a payment event by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, eventID string) (*PaymentEvent, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"event_id": &types.AttributeValueMemberS{Value: eventID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var ev PaymentEvent
	if err := attributevalue.UnmarshalMap(out.Item, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal payment event: %w", err)
	}
	return &ev, nil
}

func awsString(s string) *string { return &s }
