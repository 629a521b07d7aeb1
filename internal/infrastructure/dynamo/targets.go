package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/facevote-api/internal/domain"
)

// TargetRepo stores election and form definitions. PK: target_id.
type TargetRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTargetRepo(client *dynamodb.Client, tableName string) *TargetRepo {
	return &TargetRepo{client: client, tableName: tableName}
}

// Create inserts t; an existing target with the same id is ErrConflict.
func (r *TargetRepo) Create(ctx context.Context, t *domain.Target) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#t)"),
		ExpressionAttributeNames: map[string]string{"#t": fieldTargetID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("target %s exists: %w", t.TargetID, domain.ErrConflict)
	}
	return err
}

func (r *TargetRepo) Get(ctx context.Context, targetID string) (*domain.Target, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldTargetID, targetID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("target not found: %w", domain.ErrNotFound)
	}
	var t domain.Target
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
