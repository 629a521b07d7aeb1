package domain

import "time"

// FaceReference binds an identity to its stored image. The key is derived
// from the user id, so re-registration overwrites in place.
type FaceReference struct {
	UserID      string `json:"user_id"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// SignedReference is a time-limited URL to a FaceReference. It is never
// authoritative and can always be minted again.
type SignedReference struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the reference is unusable at now.
func (s SignedReference) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
