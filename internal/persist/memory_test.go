package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

func TestMemoryStoreInsertAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, gameID := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveAggregate(ctx, "game", id, gameID, []byte(`{"n":1}`), 0))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	raw, version, err := tx2.LoadAggregate(ctx, "game", id)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	require.JSONEq(t, `{"n":1}`, string(raw))
	require.NoError(t, tx2.Rollback(ctx))
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx.LoadAggregate(ctx, "game", domain.NewID())
	require.ErrorIs(t, err, bus.ErrNotFound)
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, gameID := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveAggregate(ctx, "game", id, gameID, []byte(`{}`), 0))
	require.NoError(t, tx.Commit(ctx))

	// Two racing writers at version 1: the second commit must fail.
	txA, err := store.Begin(ctx)
	require.NoError(t, err)
	txB, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txA.SaveAggregate(ctx, "game", id, gameID, []byte(`{"a":1}`), 1))
	require.NoError(t, txB.SaveAggregate(ctx, "game", id, gameID, []byte(`{"b":1}`), 1))
	require.NoError(t, txA.Commit(ctx))

	err = txB.Commit(ctx)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestMemoryStoreStaleInsertConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, gameID := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveAggregate(ctx, "game", id, gameID, []byte(`{}`), 0))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	err = tx2.SaveAggregate(ctx, "game", id, gameID, []byte(`{}`), 0)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestMemoryStoreRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, gameID := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveAggregate(ctx, "game", id, gameID, []byte(`{}`), 0))
	require.NoError(t, tx.AppendOutbox(ctx, gameID, []byte(`{"e":1}`)))
	require.NoError(t, tx.Rollback(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx2.LoadAggregate(ctx, "game", id)
	require.ErrorIs(t, err, bus.ErrNotFound)

	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestMemoryStoreCommandDedup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gameID, cmdID := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	seen, err := tx.CommandSeen(ctx, gameID, cmdID)
	require.NoError(t, err)
	require.False(t, seen)
	require.NoError(t, tx.RecordCommand(ctx, gameID, cmdID))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	seen, err = tx2.CommandSeen(ctx, gameID, cmdID)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestOutboxBatchKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gameID := domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendOutbox(ctx, gameID, []byte(`"first"`)))
	require.NoError(t, tx.AppendOutbox(ctx, gameID, []byte(`"second"`)))
	require.NoError(t, tx.Commit(ctx))

	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Less(t, batch[0].ID, batch[1].ID)
	require.Equal(t, `"first"`, string(batch[0].Payload))

	require.NoError(t, store.MarkSent(ctx, []int64{batch[0].ID}))
	batch, err = store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, `"second"`, string(batch[0].Payload))
}

// flakyPublisher fails for one game and records the rest.
type flakyPublisher struct {
	failGame domain.ID
	sent     []string
}

func (p *flakyPublisher) Publish(ctx context.Context, msg OutboxMessage) error {
	if msg.GameID == p.failGame {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, string(msg.Payload))
	return nil
}

func TestDispatcherBlocksOnlyTheFailingGame(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sick, healthy := domain.NewID(), domain.NewID()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendOutbox(ctx, sick, []byte(`"s1"`)))
	require.NoError(t, tx.AppendOutbox(ctx, sick, []byte(`"s2"`)))
	require.NoError(t, tx.AppendOutbox(ctx, healthy, []byte(`"h1"`)))
	require.NoError(t, tx.Commit(ctx))

	pub := &flakyPublisher{failGame: sick}
	d := NewDispatcher(store, pub, 0, 0, zap.NewNop())
	require.NoError(t, d.Drain(ctx))

	// The healthy game drained; the sick game's FIFO is intact.
	require.Equal(t, []string{`"h1"`}, pub.sent)
	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, `"s1"`, string(batch[0].Payload))

	// Broker recovers: the sick game drains in order.
	pub.failGame = domain.NilID
	require.NoError(t, d.Drain(ctx))
	require.Equal(t, []string{`"h1"`, `"s1"`, `"s2"`}, pub.sent)
}

func TestLogPublisherNeverFails(t *testing.T) {
	p := &LogPublisher{Log: zap.NewNop()}
	err := p.Publish(context.Background(), OutboxMessage{ID: 1, GameID: domain.NewID(), Payload: []byte(`{}`)})
	require.NoError(t, err)
}
