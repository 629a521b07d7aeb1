package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/facevote-api/internal/domain"
)

// UserRepo provides typed DynamoDB operations for the users table.
// PK: identity (normalized email or phone).
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Get(ctx context.Context, identity string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentity, identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts u unless a user with the same identity exists, in which
// case it returns an error wrapping domain.ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldIdentity},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("user exists: %w", domain.ErrConflict)
	}
	return err
}

// SetHasFace flips has_face to true. first is true only for the call that
// performed the flip; later calls leave the item untouched.
func (r *UserRepo) SetHasFace(ctx context.Context, identity string) (first bool, err error) {
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentity, identity),
		UpdateExpression:    aws.String("SET #hf = :t, #ua = :now"),
		ConditionExpression: aws.String("attribute_exists(#id) AND (attribute_not_exists(#hf) OR #hf = :f)"),
		ExpressionAttributeNames: map[string]string{
			"#id": fieldIdentity,
			"#hf": fieldHasFace,
			"#ua": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return true, nil
	}
	if !isConditionFailed(err) {
		return false, err
	}
	// Either the user is missing or the flag was already set.
	if _, gerr := r.Get(ctx, identity); gerr != nil {
		return false, gerr
	}
	return false, nil
}

func (r *UserRepo) Update(ctx context.Context, identity string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldIdentity, identity),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
