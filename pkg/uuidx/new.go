// Package uuidx generates time-ordered identifiers for runs and subscriptions.
package uuidx

import (
	"time"

	"github.com/google/uuid"
)

// New generates a version 7 UUID. It panics if the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a version 7 UUID and returns its string form.
func NewString() string {
	return New().String()
}

// Time extracts the creation time embedded in a version 7 UUID.
// The zero time is returned for other versions.
func Time(id uuid.UUID) time.Time {
	if id.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}
