package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/facevote-api/internal/domain"
)

const voteIDIndex = "vote_id-index"

// BallotRepo is the append-only ballot store. PK: target_id, SK: voter_id.
// Ballots are never updated or deleted.
type BallotRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewBallotRepo(client *dynamodb.Client, tableName string) *BallotRepo {
	return &BallotRepo{client: client, tableName: tableName}
}

// Insert stores b only if no ballot exists for (b.TargetID, b.VoterID). The
// existence check and the write are one conditional PutItem; a second ballot
// for the pair returns an error wrapping domain.ErrConflict.
func (r *BallotRepo) Insert(ctx context.Context, b *domain.Ballot) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal ballot: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#v)"),
		ExpressionAttributeNames: map[string]string{"#v": fieldVoterID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("ballot exists for voter on %s: %w", b.TargetID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("put ballot: %w", err)
	}
	return nil
}

// Exists reports whether voterID already has a ballot for targetID.
func (r *BallotRepo) Exists(ctx context.Context, voterID, targetID string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(fieldTargetID, targetID, fieldVoterID, voterID),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#v"),
		ExpressionAttributeNames: map[string]string{"#v": fieldVoterID},
	})
	if err != nil {
		return false, err
	}
	return out.Item != nil, nil
}

// GetByVoteID looks a ballot up by its content hash via GSI.
func (r *BallotRepo) GetByVoteID(ctx context.Context, voteID string) (*domain.Ballot, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(voteIDIndex),
		KeyConditionExpression:    aws.String("#id = :id"),
		ExpressionAttributeNames:  map[string]string{"#id": fieldVoteID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: voteID}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("vote not found: %w", domain.ErrNotFound)
	}
	var b domain.Ballot
	if err := attributevalue.UnmarshalMap(out.Items[0], &b); err != nil {
		return nil, err
	}
	return &b, nil
}
