package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
)

// fakeDynamo is a scripted DynamoClient.
type fakeDynamo struct {
	queryPages []*dynamodb.QueryOutput
	queryCalls int

	transactCalls []int // op counts per call
	failOnCall    int   // 1-based call index to fail, 0 for never
	describeErr   error
}

func (f *fakeDynamo) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryCalls >= len(f.queryPages) {
		return nil, errors.New("unexpected query")
	}
	page := f.queryPages[f.queryCalls]
	f.queryCalls++
	return page, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactCalls = append(f.transactCalls, len(in.TransactItems))
	if f.failOnCall == len(f.transactCalls) {
		return nil, errors.New("transaction cancelled")
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func keyItem(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func makeRecords(n int) []model.EventRecord {
	out := make([]model.EventRecord, n)
	for i := range out {
		out[i] = model.EventRecord{
			PartitionKey: "EventsForWeek2026-W10",
			SortKey:      fmt.Sprintf("Monday#18:00#acme#e%d", i),
			GroupID:      "acme",
			URL:          "https://acme.example/events",
		}
	}
	return out
}

func makeKeys(n int) []model.Key {
	out := make([]model.Key, n)
	for i := range out {
		out[i] = model.Key{PartitionKey: "EventsForWeek2026-W09", SortKey: fmt.Sprintf("Monday#18:00#acme#old%d", i)}
	}
	return out
}

func TestKeysForGroupPaginates(t *testing.T) {
	client := &fakeDynamo{
		queryPages: []*dynamodb.QueryOutput{
			{
				Items:            []map[string]types.AttributeValue{keyItem("w1", "A"), keyItem("w1", "B")},
				LastEvaluatedKey: keyItem("w1", "B"),
			},
			{
				Items: []map[string]types.AttributeValue{keyItem("w2", "C")},
			},
		},
	}

	d := NewDynamo(client, "Events", "group-index")
	keys, err := d.KeysForGroup(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, 2, client.queryCalls)
	assert.Equal(t, []model.Key{
		{PartitionKey: "w1", SortKey: "A"},
		{PartitionKey: "w1", SortKey: "B"},
		{PartitionKey: "w2", SortKey: "C"},
	}, keys)
}

func TestApplyChunksAtTransactLimit(t *testing.T) {
	client := &fakeDynamo{}
	d := NewDynamo(client, "Events", "group-index")

	// 60 puts + 10 deletes = 70 ops -> 25 + 25 + 20.
	res, err := d.Apply(context.Background(), makeRecords(60), makeKeys(10))
	require.NoError(t, err)

	assert.Equal(t, []int{25, 25, 20}, client.transactCalls)
	assert.Equal(t, 60, res.PutsApplied)
	assert.Equal(t, 10, res.DeletesApplied)
	assert.Equal(t, 0, res.Failed)
}

func TestApplyFailedChunkDoesNotBlockOthers(t *testing.T) {
	client := &fakeDynamo{failOnCall: 2}
	d := NewDynamo(client, "Events", "group-index")

	res, err := d.Apply(context.Background(), makeRecords(60), makeKeys(10))

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Len(t, werr.Keys, 25)

	// All three chunks were attempted; only the middle one failed.
	assert.Equal(t, []int{25, 25, 20}, client.transactCalls)
	assert.Equal(t, 35, res.PutsApplied)
	assert.Equal(t, 10, res.DeletesApplied)
	assert.Equal(t, 25, res.Failed)
}

func TestApplyNothingIsNoop(t *testing.T) {
	client := &fakeDynamo{}
	d := NewDynamo(client, "Events", "group-index")

	res, err := d.Apply(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, client.transactCalls)
	assert.Equal(t, ApplyResult{}, res)
}

func TestPing(t *testing.T) {
	d := NewDynamo(&fakeDynamo{}, "Events", "group-index")
	assert.NoError(t, d.Ping(context.Background()))

	d = NewDynamo(&fakeDynamo{describeErr: errors.New("no route to host")}, "Events", "group-index")
	assert.Error(t, d.Ping(context.Background()))
}
