package cache

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// Schema of the DynamoDB table
	dynamoDBDefaultTable  = "api-test-harness-cache"
	dynamoDBPartitionKey  = "namespace"
	dynamoDBSortKey       = "key"
	dynamoDBItemAttribute = "entry"
)

// DynamoDBOptions configures a DynamoDBStore.
type DynamoDBOptions struct {
	Table    string `json:"table" yaml:"table"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DynamoDBStore is a Store backed by a DynamoDB table whose partition key is the store prefix and
// whose sort key is the cache key.
type DynamoDBStore struct {
	dynamodb *dynamodb.Client
	table    string
	prefix   string
}

// NewDynamoDBStore creates a DynamoDBStore using the default AWS credential chain. The table must
// already exist, with string attributes "namespace" (hash key) and "key" (range key).
func NewDynamoDBStore(ctx context.Context, options DynamoDBOptions, prefix string) (*DynamoDBStore, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if options.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(options.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
		}
	})
	table := options.Table
	if table == "" {
		table = dynamoDBDefaultTable
	}
	if prefix == "" {
		prefix = "default" // DynamoDB does not allow empty key attributes
	}
	return &DynamoDBStore{dynamodb: client, table: table, prefix: prefix}, nil
}

func (d *DynamoDBStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoDBPartitionKey: &types.AttributeValueMemberS{Value: d.prefix},
		dynamoDBSortKey:      &types.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoDBStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	result, err := d.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key:            d.itemKey(key),
	})
	if err != nil || result == nil || result.Item == nil {
		return Entry{}, false, err
	}
	attr, ok := result.Item[dynamoDBItemAttribute].(*types.AttributeValueMemberB)
	if !ok {
		return Entry{}, false, fmt.Errorf("cache entry for %q in DynamoDB has no %q attribute", key, dynamoDBItemAttribute)
	}
	entry, err := decodeEntry(attr.Value)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid cache entry for %q in DynamoDB: %w", key, err)
	}
	return entry, true, nil
}

func (d *DynamoDBStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	item := d.itemKey(key)
	item[dynamoDBItemAttribute] = &types.AttributeValueMemberB{Value: data}
	_, err = d.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	return err
}

func (d *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := d.dynamodb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       d.itemKey(key),
	})
	return err
}

func (d *DynamoDBStore) Close() error {
	return nil
}
