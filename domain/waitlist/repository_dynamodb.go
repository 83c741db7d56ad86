package waitlist

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/loppilove/waitlist-api/internal/models"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
)

// DynamoDBAPI is the subset of *dynamodb.Client used by the repository.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoWaitlistRepository stores one item per email, partition key "email".
// ListEntries pages in scan order rather than email order.
type dynamoWaitlistRepository struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBWaitlistRepository(client DynamoDBAPI, tableName string) WaitlistRepository {
	if tableName == "" {
		tableName = models.WaitlistTableName
	}
	return &dynamoWaitlistRepository{client: client, tableName: tableName}
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

func (r *dynamoWaitlistRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      emailKey(email),
		ProjectionExpression:     aws.String("#email"),
		ExpressionAttributeNames: map[string]string{"#email": "email"},
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return false, apperrors.NewDatabaseError("unable to look up waitlist entry", err)
	}

	return len(result.Item) > 0, nil
}

func (r *dynamoWaitlistRepository) CreateIfAbsent(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return false, apperrors.NewInternalServerError("unable to encode waitlist entry", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#email)"),
		ExpressionAttributeNames: map[string]string{"#email": "email"},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, apperrors.NewDatabaseError("unable to create waitlist entry", err)
	}

	return true, nil
}

func (r *dynamoWaitlistRepository) CountEntries(ctx context.Context) (int64, error) {
	var (
		total    int64
		startKey map[string]types.AttributeValue
	)

	for {
		result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, apperrors.NewDatabaseError("unable to count waitlist entries", err)
		}

		total += int64(result.Count)
		if len(result.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// ListEntries keeps scanning until limit items are collected or the table
// is exhausted, since a single Scan page can stop short at 1 MB.
func (r *dynamoWaitlistRepository) ListEntries(ctx context.Context, afterEmail string, limit int) ([]*models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var startKey map[string]types.AttributeValue
	if afterEmail != "" {
		startKey = emailKey(afterEmail)
	}

	entries := make([]*models.WaitlistEntry, 0, limit)
	for len(entries) < limit {
		result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			Limit:             aws.Int32(int32(limit - len(entries))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, apperrors.NewDatabaseError("unable to list waitlist entries", err)
		}

		var page []*models.WaitlistEntry
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, apperrors.NewInternalServerError("unable to decode waitlist entries", err)
		}
		entries = append(entries, page...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return entries, nil
}

func (r *dynamoWaitlistRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	return err
}
