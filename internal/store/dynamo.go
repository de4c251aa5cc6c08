package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"calsync/internal/model"
)

// transactLimit is DynamoDB's item ceiling for one TransactWriteItems
// call; it is also the unit of atomicity for our writes.
const transactLimit = 25

// DynamoClient is the slice of the DynamoDB API the store uses. Tests
// substitute a fake.
type DynamoClient interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Dynamo is the DynamoDB-backed EventStore.
type Dynamo struct {
	client     DynamoClient
	table      string
	groupIndex string
}

func NewDynamo(client DynamoClient, table, groupIndex string) *Dynamo {
	return &Dynamo{client: client, table: table, groupIndex: groupIndex}
}

func (d *Dynamo) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		return fmt.Errorf("event store unavailable: %w", err)
	}
	return nil
}

func (d *Dynamo) KeysForGroup(ctx context.Context, groupID string) ([]model.Key, error) {
	keys := make([]model.Key, 0)

	var startKey map[string]types.AttributeValue
	for {
		resp, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			IndexName:              aws.String(d.groupIndex),
			KeyConditionExpression: aws.String("GroupID = :g"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":g": &types.AttributeValueMemberS{Value: groupID},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying keys for group %s: %w", groupID, err)
		}

		for _, item := range resp.Items {
			var k model.Key
			if err := attributevalue.UnmarshalMap(item, &k); err != nil {
				return nil, fmt.Errorf("unmarshalling key for group %s: %w", groupID, err)
			}
			keys = append(keys, k)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	return keys, nil
}

// Apply submits puts and deletes as sequential TransactWriteItems calls
// of at most transactLimit operations each. Each chunk is all-or-nothing;
// a failed chunk is logged with its keys and later chunks still run, so a
// partial failure leaves a subset of the intended changes in place. The
// next pass re-derives the diff and converges.
func (d *Dynamo) Apply(ctx context.Context, puts []model.EventRecord, deletes []model.Key) (ApplyResult, error) {
	ops, keys, err := d.buildOps(puts, deletes)
	if err != nil {
		return ApplyResult{}, err
	}

	var res ApplyResult
	var errs []error

	for start := 0; start < len(ops); start += transactLimit {
		end := min(start+transactLimit, len(ops))

		// Puts were queued before deletes, so the split point inside this
		// chunk falls at len(puts).
		putsInChunk := max(0, min(end, len(puts))-start)

		_, werr := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: ops[start:end],
		})
		if werr != nil {
			chunkErr := &WriteError{Keys: keys[start:end], Err: werr}
			slog.Error("chunk write failed", "ops", end-start, "keys", keyStrings(keys[start:end]), "error", werr)
			errs = append(errs, chunkErr)
			res.Failed += end - start
			continue
		}
		res.PutsApplied += putsInChunk
		res.DeletesApplied += (end - start) - putsInChunk
	}

	return res, errors.Join(errs...)
}

func (d *Dynamo) buildOps(puts []model.EventRecord, deletes []model.Key) ([]types.TransactWriteItem, []model.Key, error) {
	ops := make([]types.TransactWriteItem, 0, len(puts)+len(deletes))
	keys := make([]model.Key, 0, len(puts)+len(deletes))

	for i := range puts {
		item, err := attributevalue.MarshalMap(&puts[i])
		if err != nil {
			return nil, nil, fmt.Errorf("marshalling record %s: %w", puts[i].SortKey, err)
		}
		ops = append(ops, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(d.table), Item: item},
		})
		keys = append(keys, puts[i].Key())
	}

	for _, k := range deletes {
		key, err := attributevalue.MarshalMap(&k)
		if err != nil {
			return nil, nil, fmt.Errorf("marshalling key %s: %w", k.SortKey, err)
		}
		ops = append(ops, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(d.table), Key: key},
		})
		keys = append(keys, k)
	}

	return ops, keys, nil
}

func keyStrings(keys []model.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.PartitionKey + "/" + k.SortKey
	}
	return out
}
