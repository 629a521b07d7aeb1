package domain

import "time"

// Ballot is the immutable audit record of one accepted vote. PK: target_id,
// SK: voter_id, so the store can refuse a second ballot for the pair.
// VoteID is a hash over every other field, Nonce included.
type Ballot struct {
	VoteID     string              `json:"id" dynamodbav:"vote_id"`
	TargetID   string              `json:"target_id" dynamodbav:"target_id"`
	VoterID    string              `json:"voter_id" dynamodbav:"voter_id"`
	Selections map[string][]string `json:"selections" dynamodbav:"selections"`
	CastAt     time.Time           `json:"cast_at" dynamodbav:"cast_at"`
	Nonce      string              `json:"nonce" dynamodbav:"nonce"`
}

// CastState is the observable state of the cast state machine.
type CastState string

const (
	StatePendingVerification CastState = "PENDING_VERIFICATION"
	StateTokenIssued         CastState = "TOKEN_ISSUED"
	StateCasting             CastState = "CASTING"
	StateAccepted            CastState = "ACCEPTED"
	StateRejected            CastState = "REJECTED"
)

type CastRequest struct {
	Token      string              `json:"token" validate:"required"`
	TargetID   string              `json:"target" validate:"required"`
	Selections map[string][]string `json:"selections" validate:"required"`
}

type CastResult struct {
	State  CastState `json:"state"`
	VoteID string    `json:"vote_id,omitempty"`
}
