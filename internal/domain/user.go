package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleVoter = "voter"
)

// User is keyed by normalized identity (email or E.164 phone).
type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Identity  string    `json:"identity" dynamodbav:"identity"`
	Role      string    `json:"role" dynamodbav:"role"`
	HasFace   bool      `json:"has_face" dynamodbav:"has_face"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
