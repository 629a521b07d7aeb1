package domain

import "time"

// OTP purposes. A code issued for one purpose never verifies another.
const (
	PurposeLogin            = "login"
	PurposeFaceRegistration = "face-registration"
)

// ValidPurpose reports whether p is a known OTP purpose.
func ValidPurpose(p string) bool {
	return p == PurposeLogin || p == PurposeFaceRegistration
}

// OTPRecord is what the cache holds for a live code. Only the argon2id
// hash of the code is stored.
type OTPRecord struct {
	Identity  string    `json:"identity"`
	Purpose   string    `json:"purpose"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}
