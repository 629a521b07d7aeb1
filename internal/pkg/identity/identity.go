// Package identity normalizes the string keys voters are known by.
package identity

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/facevote-api/internal/domain"
)

// Normalize trims and lower-cases emails and validates E.164 phone numbers.
// Anything else is rejected with domain.ErrBadRequest.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if IsPhone(s) {
		return s, nil
	}
	s = strings.ToLower(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("identity must be an email or E.164 phone number: %w", domain.ErrBadRequest)
	}
	return s, nil
}

// IsPhone reports whether s is an E.164 number: '+' then 8 to 15 digits.
func IsPhone(s string) bool {
	if len(s) < 9 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Mask hides most of an identity for logs.
func Mask(s string) string {
	if at := strings.IndexByte(s, '@'); at > 0 {
		return s[:1] + "***" + s[at:]
	}
	if len(s) > 4 {
		return "***" + s[len(s)-4:]
	}
	return "***"
}
