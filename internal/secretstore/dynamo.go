package secretstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the slice of the DynamoDB client the store uses. Tests
// substitute a fake.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo keeps secrets in a DynamoDB table keyed by name.
type Dynamo struct {
	table string
	cli   dynamoAPI
}

type dynamoItem struct {
	Name  string `dynamodbav:"name"`
	Value string `dynamodbav:"value"`
}

// NewDynamo creates a DynamoDB-backed store using the default AWS credential
// chain. region, when not empty, overrides the resolved region.
func NewDynamo(ctx context.Context, table, region string) (*Dynamo, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Dynamo{table: table, cli: dynamodb.NewFromConfig(cfg)}, nil
}

// NewDynamoWithClient creates a store around an existing client.
func NewDynamoWithClient(table string, cli dynamoAPI) *Dynamo {
	return &Dynamo{table: table, cli: cli}
}

// Fetch returns the secret stored under name, or ErrNotFound.
func (d *Dynamo) Fetch(ctx context.Context, name string) ([]byte, error) {
	out, err := d.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.table,
		Key: map[string]ddbtypes.AttributeValue{
			"name": &ddbtypes.AttributeValueMemberS{Value: name},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode secret item: %w", err)
	}
	return []byte(item.Value), nil
}

// Put inserts or replaces the secret stored under name.
func (d *Dynamo) Put(ctx context.Context, name string, value []byte) error {
	item, err := attributevalue.MarshalMap(dynamoItem{Name: name, Value: string(value)})
	if err != nil {
		return fmt.Errorf("encode secret item: %w", err)
	}
	if _, err := d.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.table,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}
