package persist

import (
	"context"
	"sync"
	"time"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

// MemoryStore is the in-process implementation of the aggregate store, used
// by engine tests and local runs without Postgres. Semantics match the
// Postgres store: buffered writes, version compare-and-swap, outbox rows in
// insertion order.
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[memKey]*memRow
	outbox   []*OutboxMessage
	nextID   int64
	commands map[memCmdKey]struct{}
}

type memKey struct {
	kind string
	id   domain.ID
}

type memCmdKey struct {
	gameID    domain.ID
	commandID domain.ID
}

type memRow struct {
	gameID  domain.ID
	version int64
	state   []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[memKey]*memRow),
		nextID:   1,
		commands: make(map[memCmdKey]struct{}),
	}
}

var _ bus.Store = (*MemoryStore)(nil)

func (s *MemoryStore) Begin(ctx context.Context) (bus.Tx, error) {
	return &memTx{store: s, writes: make(map[memKey]memWrite)}, nil
}

type memWrite struct {
	gameID   domain.ID
	state    []byte
	expected int64
}

type memTx struct {
	store    *MemoryStore
	writes   map[memKey]memWrite
	outbox   []outboxWrite
	commands []memCmdKey
	done     bool
}

type outboxWrite struct {
	gameID  domain.ID
	payload []byte
}

func (t *memTx) LoadAggregate(ctx context.Context, kind string, id domain.ID) ([]byte, int64, error) {
	key := memKey{kind: kind, id: id}
	if w, ok := t.writes[key]; ok {
		return append([]byte(nil), w.state...), w.expected, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	row, ok := t.store.rows[key]
	if !ok {
		return nil, 0, bus.ErrNotFound
	}
	return append([]byte(nil), row.state...), row.version, nil
}

func (t *memTx) SaveAggregate(ctx context.Context, kind string, id, gameID domain.ID, state []byte, expected int64) error {
	key := memKey{kind: kind, id: id}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	row, exists := t.store.rows[key]
	if expected == 0 {
		if exists {
			return &domain.ConflictError{Kind: kind, ID: id}
		}
	} else if !exists || row.version != expected {
		return &domain.ConflictError{Kind: kind, ID: id}
	}
	t.writes[key] = memWrite{gameID: gameID, state: append([]byte(nil), state...), expected: expected}
	return nil
}

func (t *memTx) AppendOutbox(ctx context.Context, gameID domain.ID, payload []byte) error {
	t.outbox = append(t.outbox, outboxWrite{gameID: gameID, payload: append([]byte(nil), payload...)})
	return nil
}

func (t *memTx) CommandSeen(ctx context.Context, gameID, commandID domain.ID) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, seen := t.store.commands[memCmdKey{gameID: gameID, commandID: commandID}]
	return seen, nil
}

func (t *memTx) RecordCommand(ctx context.Context, gameID, commandID domain.ID) error {
	t.commands = append(t.commands, memCmdKey{gameID: gameID, commandID: commandID})
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check versions so concurrent committers cannot both win.
	for key, w := range t.writes {
		row, exists := s.rows[key]
		if w.expected == 0 {
			if exists {
				return &domain.ConflictError{Kind: key.kind, ID: key.id}
			}
		} else if !exists || row.version != w.expected {
			return &domain.ConflictError{Kind: key.kind, ID: key.id}
		}
	}
	for key, w := range t.writes {
		s.rows[key] = &memRow{gameID: w.gameID, version: w.expected + 1, state: w.state}
	}
	for _, o := range t.outbox {
		s.outbox = append(s.outbox, &OutboxMessage{
			ID:        s.nextID,
			GameID:    o.gameID,
			Payload:   o.payload,
			CreatedAt: time.Now(),
		})
		s.nextID++
	}
	for _, c := range t.commands {
		s.commands[c] = struct{}{}
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

// NextBatch implements OutboxSource over the in-memory outbox.
func (s *MemoryStore) NextBatch(ctx context.Context, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []OutboxMessage
	for _, m := range s.outbox {
		if m.SentAt != nil {
			continue
		}
		batch = append(batch, *m)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

// MarkSent implements OutboxSource.
func (s *MemoryStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, m := range s.outbox {
		for _, id := range ids {
			if m.ID == id {
				m.SentAt = &now
			}
		}
	}
	return nil
}
