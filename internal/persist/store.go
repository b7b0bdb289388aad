package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

// Store is the Postgres aggregate store: one row per aggregate with an
// integer version for optimistic concurrency, plus the outbox and the
// command-dedup table, all written in one transaction.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ bus.Store = (*Store)(nil)

func (s *Store) Begin(ctx context.Context) (bus.Tx, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &storeTx{tx: tx}, nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) LoadAggregate(ctx context.Context, kind string, id domain.ID) ([]byte, int64, error) {
	var state []byte
	var version int64
	err := t.tx.QueryRow(ctx,
		`SELECT state, version FROM aggregates WHERE kind = $1 AND id = $2`,
		kind, id,
	).Scan(&state, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, bus.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	return state, version, nil
}

func (t *storeTx) SaveAggregate(ctx context.Context, kind string, id, gameID domain.ID, state []byte, expected int64) error {
	if expected == 0 {
		tag, err := t.tx.Exec(ctx,
			`INSERT INTO aggregates (kind, id, game_id, version, state)
			 VALUES ($1, $2, $3, 1, $4)
			 ON CONFLICT (kind, id) DO NOTHING`,
			kind, id, gameID, state,
		)
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", kind, id, err)
		}
		if tag.RowsAffected() == 0 {
			return &domain.ConflictError{Kind: kind, ID: id}
		}
		return nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE aggregates
		 SET state = $1, version = version + 1, updated_at = now()
		 WHERE kind = $2 AND id = $3 AND version = $4`,
		state, kind, id, expected,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ConflictError{Kind: kind, ID: id}
	}
	return nil
}

func (t *storeTx) AppendOutbox(ctx context.Context, gameID domain.ID, payload []byte) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO outbox (game_id, message) VALUES ($1, $2)`,
		gameID, payload,
	); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}

func (t *storeTx) CommandSeen(ctx context.Context, gameID, commandID domain.ID) (bool, error) {
	var seen bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_commands WHERE game_id = $1 AND command_id = $2)`,
		gameID, commandID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return seen, nil
}

func (t *storeTx) RecordCommand(ctx context.Context, gameID, commandID domain.ID) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO processed_commands (game_id, command_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		gameID, commandID,
	); err != nil {
		return fmt.Errorf("dedup record: %w", err)
	}
	return nil
}

func (t *storeTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *storeTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
