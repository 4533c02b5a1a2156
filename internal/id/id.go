package id

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUID. Falls back to v4 if the
// monotonic clock source fails, which should not happen in practice.
func NewUUIDv7() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}
