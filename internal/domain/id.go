package domain

import "github.com/google/uuid"

// ID identifies an aggregate. IDs are UUIDv7 so that they sort by creation
// time, which the outbox relies on for per-game FIFO ordering.
type ID = uuid.UUID

var NilID = uuid.Nil

// NewID returns a fresh time-ordered identifier. uuid.NewV7 only fails when
// the system clock or entropy source is broken; fall back to v4 so callers
// never have to handle an error from id generation.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}
