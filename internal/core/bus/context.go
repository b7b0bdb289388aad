package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/domain"
)

// Aggregate is a consistency boundary persisted as one JSON row.
type Aggregate interface {
	Kind() string
	AggregateID() domain.ID
}

type cacheKey struct {
	kind string
	id   domain.ID
}

type cacheEntry struct {
	agg     Aggregate
	version int64
}

// Context carries the state of one root command dispatch: the enclosing
// transaction, the finder cache and the buffered outbox messages. It is
// single-goroutine by construction.
type Context struct {
	ctx    context.Context
	bus    *Bus
	tx     Tx
	gameID domain.ID
	rootID domain.ID
	root   any
	cache  map[cacheKey]*cacheEntry
	log    *zap.Logger
	now    func() time.Time
}

// NewContext starts a dispatch scope for one root message on one game.
func NewContext(ctx context.Context, b *Bus, tx Tx, gameID, rootID domain.ID, now func() time.Time) *Context {
	if now == nil {
		now = time.Now
	}
	return &Context{
		ctx:    ctx,
		bus:    b,
		tx:     tx,
		gameID: gameID,
		rootID: rootID,
		cache:  make(map[cacheKey]*cacheEntry),
		log:    b.log,
		now:    now,
	}
}

func (c *Context) Ctx() context.Context { return c.ctx }
func (c *Context) GameID() domain.ID    { return c.gameID }
func (c *Context) Now() time.Time       { return c.now() }

// Dispatch runs the single handler for a command and returns its result.
// Errors abort the whole root transaction.
func (c *Context) Dispatch(cmd any) (any, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	fn, err := c.bus.command(cmd)
	if err != nil {
		return nil, err
	}
	if c.root == nil {
		c.root = cmd
	}
	c.log.Debug("dispatch command",
		zap.String("type", reflect.TypeOf(cmd).Name()),
		zap.String("game_id", c.gameID.String()))
	return fn(c, cmd)
}

// Publish delivers an event to all subscribers in registration order before
// returning. External events are additionally staged for the outbox.
func (c *Context) Publish(event any) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	c.log.Debug("publish event",
		zap.String("type", reflect.TypeOf(event).Name()),
		zap.String("game_id", c.gameID.String()))
	if _, external := event.(domain.External); external {
		if err := c.stageOutbox(event); err != nil {
			return err
		}
	}
	for _, fn := range c.bus.subscribers(event) {
		if err := fn(c, event); err != nil {
			return err
		}
	}
	return nil
}

// outboxEnvelope is the persisted shape of one outbox message. Consumers
// deduplicate on ID.
type outboxEnvelope struct {
	ID      domain.ID       `json:"id"`
	GameID  domain.ID       `json:"game_id"`
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Context) stageOutbox(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event %T: %w", event, err)
	}
	env := outboxEnvelope{
		ID:      domain.NewID(),
		GameID:  c.gameID,
		Type:    reflect.TypeOf(event).Name(),
		At:      c.now(),
		Payload: payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return c.tx.AppendOutbox(c.ctx, c.gameID, raw)
}

// Load returns the aggregate for (blank.Kind(), id), deserializing into
// blank on first access. Later lookups in the same transaction return the
// cached instance, so every handler sees the same mutations.
func (c *Context) Load(id domain.ID, blank Aggregate) (Aggregate, error) {
	key := cacheKey{kind: blank.Kind(), id: id}
	if e, ok := c.cache[key]; ok {
		return e.agg, nil
	}
	raw, version, err := c.tx.LoadAggregate(c.ctx, blank.Kind(), id)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, blank); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", blank.Kind(), id, err)
	}
	c.cache[key] = &cacheEntry{agg: blank, version: version}
	return blank, nil
}

// Track registers a newly created aggregate so it is inserted at commit.
func (c *Context) Track(agg Aggregate) {
	key := cacheKey{kind: agg.Kind(), id: agg.AggregateID()}
	c.cache[key] = &cacheEntry{agg: agg, version: 0}
}

// Flush writes every aggregate touched during the dispatch back to the
// transaction, bumping each version with a compare-and-swap.
func (c *Context) Flush() error {
	for key, e := range c.cache {
		state, err := json.Marshal(e.agg)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", key.kind, key.id, err)
		}
		if err := c.tx.SaveAggregate(c.ctx, key.kind, key.id, c.gameID, state, e.version); err != nil {
			return err
		}
	}
	return nil
}
