package domain

import "time"

const (
	TargetElection = "election"
	TargetForm     = "form"
)

// Target is an election or form that accepts one ballot per voter.
type Target struct {
	TargetID  string     `json:"id" dynamodbav:"target_id"`
	Kind      string     `json:"kind" dynamodbav:"kind"`
	Title     string     `json:"title" dynamodbav:"title"`
	Questions []Question `json:"questions" dynamodbav:"questions"`
	OpensAt   *time.Time `json:"opens_at,omitempty" dynamodbav:"opens_at,omitempty"`
	ClosesAt  *time.Time `json:"closes_at,omitempty" dynamodbav:"closes_at,omitempty"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
}

// Question is one sub-question of a target with its declared option set.
type Question struct {
	QuestionID    string   `json:"id" dynamodbav:"question_id" validate:"required"`
	Prompt        string   `json:"prompt" dynamodbav:"prompt"`
	Options       []string `json:"options" dynamodbav:"options" validate:"required,min=1,dive,required"`
	MaxSelections int      `json:"max_selections" dynamodbav:"max_selections" validate:"min=1"`
}

type TargetInput struct {
	TargetID  string     `json:"id"`
	Kind      string     `json:"kind" validate:"required,oneof=election form"`
	Title     string     `json:"title" validate:"required"`
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
	OpensAt   *time.Time `json:"opens_at"`
	ClosesAt  *time.Time `json:"closes_at"`
}

// Open reports whether the target accepts ballots at now.
func (t *Target) Open(now time.Time) bool {
	if t.OpensAt != nil && now.Before(*t.OpensAt) {
		return false
	}
	if t.ClosesAt != nil && !now.Before(*t.ClosesAt) {
		return false
	}
	return true
}
