package bus

import (
	"context"
	"errors"

	"github.com/dungeonhold/server/internal/domain"
)

// ErrNotFound is returned by Tx.LoadAggregate for an unknown (kind, id).
var ErrNotFound = errors.New("aggregate not found")

// Store opens transactions over the aggregate/outbox storage.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one storage transaction. All aggregate writes, outbox rows and the
// command-dedup record commit or roll back together.
type Tx interface {
	// LoadAggregate returns the serialized state and current version.
	LoadAggregate(ctx context.Context, kind string, id domain.ID) ([]byte, int64, error)
	// SaveAggregate writes state expecting the given version (0 inserts).
	// A stale expectation fails with *domain.ConflictError.
	SaveAggregate(ctx context.Context, kind string, id, gameID domain.ID, state []byte, expected int64) error
	// AppendOutbox stages an external message for post-commit delivery.
	AppendOutbox(ctx context.Context, gameID domain.ID, payload []byte) error
	// CommandSeen reports whether a command id was already processed.
	CommandSeen(ctx context.Context, gameID, commandID domain.ID) (bool, error)
	// RecordCommand marks a command id processed within this transaction.
	RecordCommand(ctx context.Context, gameID, commandID domain.ID) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
