package dynamo

// DynamoDB attribute names used in expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldIdentity  = "identity"
	fieldHasFace   = "has_face"
	fieldUpdatedAt = "updated_at"
	fieldTargetID  = "target_id"
	fieldVoterID   = "voter_id"
	fieldVoteID    = "vote_id"
)
