package session

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// messagesAttr holds the history list in each item.
const messagesAttr = "messages"

// DynamoAPI is the subset of the DynamoDB client used by the table backend.
// *dynamodb.Client satisfies it.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoBackend stores {<primaryKey>: userID, messages: [...]} items.
// Failures never reach the caller: reads fall back to an empty history and
// writes are dropped, both reported through Options.
type dynamoBackend struct {
	client     DynamoAPI
	table      string
	primaryKey string
	opts       *Options
}

func (*dynamoBackend) name() string { return BackendDynamoDB }

func (d *dynamoBackend) key(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		d.primaryKey: &types.AttributeValueMemberS{Value: userID},
	}
}

func (d *dynamoBackend) degrade(op, userID string, err error) {
	d.opts.degraded(&StorageError{Op: op, Backend: BackendDynamoDB, UserID: userID, Err: err})
}

func (d *dynamoBackend) load(ctx context.Context, userID string) (History, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		d.degrade("load", userID, err)
		return History{}, nil
	}
	if out == nil || out.Item == nil {
		return History{}, nil
	}
	av, ok := out.Item[messagesAttr]
	if !ok {
		return History{}, nil
	}
	var h History
	if err := attributevalue.Unmarshal(av, &h); err != nil {
		d.degrade("load", userID, err)
		return History{}, nil
	}
	return h, nil
}

func (d *dynamoBackend) save(ctx context.Context, userID string, h History) error {
	av, err := attributevalue.Marshal(h)
	if err != nil {
		d.degrade("save", userID, err)
		return nil
	}
	if av == nil {
		d.degrade("save", userID, errors.New("empty attribute value"))
		return nil
	}
	item := d.key(userID)
	item[messagesAttr] = av
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		d.degrade("save", userID, err)
	}
	return nil
}
