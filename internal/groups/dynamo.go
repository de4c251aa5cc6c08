package groups

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"calsync/internal/model"
)

// ScanClient is the slice of the DynamoDB API the registry uses.
type ScanClient interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// groupItem is the stored shape of a group row. The admin workflow owns
// this table; the engine only reads it.
type groupItem struct {
	ID          string `dynamodbav:"ID"`
	Name        string `dynamodbav:"Name"`
	FeedURL     string `dynamodbav:"FeedURL,omitempty"`
	FallbackURL string `dynamodbav:"FallbackURL,omitempty"`
	URLOverride string `dynamodbav:"URLOverride,omitempty"`
	Website     string `dynamodbav:"Website,omitempty"`
	Active      bool   `dynamodbav:"Active"`
}

// Dynamo reads groups from a DynamoDB table shared with the admin
// workflow.
type Dynamo struct {
	client ScanClient
	table  string
}

func NewDynamo(client ScanClient, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

func (d *Dynamo) ListActive(ctx context.Context) ([]model.Group, error) {
	gs := make([]model.Group, 0)

	var startKey map[string]types.AttributeValue
	for {
		resp, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.table),
			FilterExpression:  aws.String("Active = :t"),
			ExclusiveStartKey: startKey,
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberBOOL{Value: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("scanning groups: %w", err)
		}

		for _, item := range resp.Items {
			var gi groupItem
			if err := attributevalue.UnmarshalMap(item, &gi); err != nil {
				return nil, fmt.Errorf("unmarshalling group: %w", err)
			}
			gs = append(gs, model.Group{
				ID:          gi.ID,
				Name:        gi.Name,
				FeedURL:     gi.FeedURL,
				FallbackURL: gi.FallbackURL,
				URLOverride: gi.URLOverride,
				Website:     gi.Website,
				Active:      gi.Active,
			})
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	return FilterActive(gs), nil
}
