package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB rejects expressions that use a reserved word as a bare attribute
// name. "status" and "result" are both on the list, so any expression that
// touches them must alias them. The mock enforces the same grammar rule so a
// missing alias fails in tests the way it would against the real service.
func checkReservedWords(expr string) error {
	reserved := map[string]bool{"status": true, "result": true}
	tokens := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ' ' || r == ',' || r == '(' || r == ')'
	})
	for _, tok := range tokens {
		if reserved[strings.ToLower(tok)] {
			return fmt.Errorf("ValidationException: attribute name is a reserved keyword: %s", tok)
		}
	}
	return nil
}

// mockDynamo simulates the idempotency table, evaluating the two conditional
// writes the store relies on.
type mockDynamo struct {
	records map[string]Record
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{records: map[string]Record{}}
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	var rec Record
	if err := attributevalue.UnmarshalMap(in.Item, &rec); err != nil {
		return nil, err
	}
	if in.ConditionExpression != nil {
		if err := checkReservedWords(*in.ConditionExpression); err != nil {
			return nil, err
		}
	}
	existing, exists := m.records[rec.IdempotencyKey]
	if in.ConditionExpression != nil && exists {
		now, _ := strconv.ParseInt(in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
		reclaimable := existing.Status == StatusFailed ||
			(existing.Status == StatusInProgress && existing.LeaseExpiresAt < now)
		if !reclaimable {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.records[rec.IdempotencyKey] = rec
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	key := in.Key["idempotency_key"].(*types.AttributeValueMemberS).Value
	rec, ok := m.records[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if err := checkReservedWords(*in.UpdateExpression); err != nil {
		return nil, err
	}
	if err := checkReservedWords(*in.ConditionExpression); err != nil {
		return nil, err
	}
	key := in.Key["idempotency_key"].(*types.AttributeValueMemberS).Value
	rec, ok := m.records[key]
	token := in.ExpressionAttributeValues[":token"].(*types.AttributeValueMemberS).Value
	if !ok || rec.Status != StatusInProgress || rec.HolderToken != token {
		return nil, &types.ConditionalCheckFailedException{}
	}
	rec.Status = in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
	value := in.ExpressionAttributeValues[":value"].(*types.AttributeValueMemberS).Value
	if rec.Status == StatusDone {
		rec.Result = value
	} else {
		rec.Note = value
	}
	m.records[key] = rec
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return &dyn.ScanOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	for _, item := range in.TransactItems {
		if item.Update == nil {
			continue
		}
		_, err := m.UpdateItem(ctx, &dyn.UpdateItemInput{
			TableName:                 item.Update.TableName,
			Key:                       item.Update.Key,
			UpdateExpression:          item.Update.UpdateExpression,
			ConditionExpression:       item.Update.ConditionExpression,
			ExpressionAttributeNames:  item.Update.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Update.ExpressionAttributeValues,
		})
		if err != nil {
			return nil, &types.TransactionCanceledException{}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
