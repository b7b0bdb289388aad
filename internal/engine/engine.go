// Package engine is the façade over the message bus: it owns the store
// transaction around every command, the per-game serialization, command
// deduplication and the assembled game view.
package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/bag"
	"github.com/dungeonhold/server/internal/battle"
	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/data"
	"github.com/dungeonhold/server/internal/deck"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/field"
	"github.com/dungeonhold/server/internal/game"
	"github.com/dungeonhold/server/internal/movement"
	"github.com/dungeonhold/server/internal/player"
	"github.com/dungeonhold/server/internal/rng"
	"github.com/dungeonhold/server/internal/turn"
)

type Engine struct {
	bus   *bus.Bus
	store bus.Store
	rnd   *rng.Service
	clock rng.Clock
	log   *zap.Logger

	mu    sync.Mutex
	locks map[domain.ID]*sync.Mutex
}

// New builds the engine and registers every handler. The registration order
// of the draw piles, movement and field fixes the delivery order of
// GameCreated: the deck must exist before the field draws the starting room.
func New(store bus.Store, rb *data.Rulebook, rnd *rng.Service, clock rng.Clock, log *zap.Logger) *Engine {
	if clock == nil {
		clock = rng.WallClock{}
	}
	b := bus.New(log)
	deck.Register(b, rb, rnd, log)
	bag.Register(b, rb, rnd, log)
	movement.Register(b, log)
	field.Register(b, rnd, log)
	player.Register(b, rnd, log)
	turn.Register(b, log)
	battle.Register(b, log)
	game.Register(b, log)
	return &Engine{
		bus:   b,
		store: store,
		rnd:   rnd,
		clock: clock,
		log:   log,
		locks: make(map[domain.ID]*sync.Mutex),
	}
}

// Rand exposes the randomness registry so callers can install the
// deterministic seam before creating a game.
func (e *Engine) Rand() *rng.Service { return e.rnd }

func (e *Engine) gameLock(gameID domain.ID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[gameID] = l
	}
	return l
}

// Execute runs one command in its own transaction. Commands carrying a
// non-nil commandID are deduplicated per game: a repeat is an accepted
// no-op returning nil.
func (e *Engine) Execute(ctx context.Context, gameID, commandID domain.ID, cmd any) (any, error) {
	l := e.gameLock(gameID)
	l.Lock()
	defer l.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if commandID != domain.NilID {
		seen, err := tx.CommandSeen(ctx, gameID, commandID)
		if err != nil {
			return nil, err
		}
		if seen {
			e.log.Debug("duplicate command skipped",
				zap.String("game_id", gameID.String()),
				zap.String("command_id", commandID.String()))
			return nil, nil
		}
	}

	c := bus.NewContext(ctx, e.bus, tx, gameID, commandID, e.clock.Now)
	res, err := c.Dispatch(cmd)
	if err != nil {
		return nil, err
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	if commandID != domain.NilID {
		if err := tx.RecordCommand(ctx, gameID, commandID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// ── Typed command surface ─────────────────────────────────────────

func (e *Engine) CreateGame(ctx context.Context, cmd domain.CreateGame, commandID domain.ID) (*game.Game, error) {
	if cmd.GameID == domain.NilID {
		cmd.GameID = domain.NewID()
	}
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return nil, err
	}
	return res.(*game.Game), nil
}

func (e *Engine) AddPlayer(ctx context.Context, cmd domain.AddPlayer, commandID domain.ID) (domain.ID, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return domain.NilID, err
	}
	return res.(domain.ID), nil
}

func (e *Engine) StartGame(ctx context.Context, cmd domain.StartGame, commandID domain.ID) (*game.Game, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return nil, err
	}
	return res.(*game.Game), nil
}

func (e *Engine) PickTile(ctx context.Context, cmd domain.PickTile, commandID domain.ID) (domain.Tile, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return domain.Tile{}, err
	}
	return res.(domain.Tile), nil
}

func (e *Engine) RotateTile(ctx context.Context, cmd domain.RotateTile, commandID domain.ID) (domain.Tile, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return domain.Tile{}, err
	}
	return res.(domain.Tile), nil
}

func (e *Engine) PlaceTile(ctx context.Context, cmd domain.PlaceTile, commandID domain.ID) (field.PlaceResult, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return field.PlaceResult{}, err
	}
	return res.(field.PlaceResult), nil
}

func (e *Engine) MovePlayer(ctx context.Context, cmd domain.MovePlayer, commandID domain.ID) (movement.MoveResult, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return movement.MoveResult{}, err
	}
	return res.(movement.MoveResult), nil
}

func (e *Engine) PickItem(ctx context.Context, cmd domain.PickItem, commandID domain.ID) (player.PickResult, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return player.PickResult{}, err
	}
	return res.(player.PickResult), nil
}

func (e *Engine) UseSpell(ctx context.Context, cmd domain.UseSpell, commandID domain.ID) (domain.Item, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if err != nil || res == nil {
		return domain.Item{}, err
	}
	return res.(domain.Item), nil
}

// FinalizeBattle resolves the pending battle. On an already finished game it
// is an accepted no-op.
func (e *Engine) FinalizeBattle(ctx context.Context, cmd domain.FinalizeBattle, commandID domain.ID) (*domain.BattleCompleted, error) {
	res, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if errors.Is(err, domain.ErrGameAlreadyFinished) {
		return nil, nil
	}
	if err != nil || res == nil {
		return nil, err
	}
	return res.(*domain.BattleCompleted), nil
}

// EndTurn closes the current turn. On an already finished game it is an
// accepted no-op.
func (e *Engine) EndTurn(ctx context.Context, cmd domain.EndTurn, commandID domain.ID) error {
	_, err := e.Execute(ctx, cmd.GameID, commandID, cmd)
	if errors.Is(err, domain.ErrGameAlreadyFinished) {
		return nil
	}
	return err
}
