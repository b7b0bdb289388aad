package persist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/domain"
)

// OutboxMessage is one staged external event.
type OutboxMessage struct {
	ID        int64
	GameID    domain.ID
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// OutboxSource reads and acknowledges staged messages.
type OutboxSource interface {
	// NextBatch returns unsent messages in (game_id, id) order.
	NextBatch(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Publisher forwards a message to the outside world. Delivery is
// at-least-once; consumers deduplicate on the envelope id.
type Publisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// LogPublisher logs deliveries; broker adapters are external collaborators.
type LogPublisher struct {
	Log *zap.Logger
}

func (p *LogPublisher) Publish(ctx context.Context, msg OutboxMessage) error {
	p.Log.Info("outbox delivery",
		zap.Int64("outbox_id", msg.ID),
		zap.String("game_id", msg.GameID.String()),
		zap.ByteString("message", msg.Payload))
	return nil
}

// PGOutbox reads the outbox table.
type PGOutbox struct {
	db *DB
}

func NewPGOutbox(db *DB) *PGOutbox {
	return &PGOutbox{db: db}
}

func (o *PGOutbox) NextBatch(ctx context.Context, limit int) ([]OutboxMessage, error) {
	rows, err := o.db.Pool.Query(ctx,
		`SELECT id, game_id, message, created_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY game_id, id
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox batch: %w", err)
	}
	defer rows.Close()

	var batch []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.GameID, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox scan: %w", err)
		}
		batch = append(batch, m)
	}
	return batch, rows.Err()
}

func (o *PGOutbox) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.db.Pool.Exec(ctx,
		`UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return fmt.Errorf("outbox mark sent: %w", err)
	}
	return nil
}

// Dispatcher drains the outbox in the background: per-game FIFO,
// at-least-once. A message that fails to publish blocks its game until it
// succeeds; other games keep draining.
type Dispatcher struct {
	source   OutboxSource
	pub      Publisher
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func NewDispatcher(source OutboxSource, pub Publisher, interval time.Duration, batch int, log *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{source: source, pub: pub, interval: interval, batch: batch, log: log}
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// Drain forwards one batch. Exposed for tests and for flushing on shutdown.
func (d *Dispatcher) Drain(ctx context.Context) error {
	batch, err := d.source.NextBatch(ctx, d.batch)
	if err != nil {
		return err
	}
	var sent []int64
	blocked := make(map[domain.ID]bool)
	for _, msg := range batch {
		if blocked[msg.GameID] {
			continue
		}
		if err := d.pub.Publish(ctx, msg); err != nil {
			// Keep this game's FIFO intact; retry the message next tick.
			blocked[msg.GameID] = true
			d.log.Warn("outbox publish failed",
				zap.Int64("outbox_id", msg.ID),
				zap.String("game_id", msg.GameID.String()),
				zap.Error(err))
			continue
		}
		sent = append(sent, msg.ID)
	}
	return d.source.MarkSent(ctx, sent)
}
