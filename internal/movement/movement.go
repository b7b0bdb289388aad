// Package movement owns where the heroes stand and which steps are legal:
// the corridor adjacency graph built from placed tiles, the teleport-gate
// clique, the stunned restriction and the after-battle movement lock.
package movement

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

const Kind = "movement"

type Movement struct {
	GameID    domain.ID                                  `json:"game_id"`
	Positions map[domain.ID]domain.Position              `json:"positions"`
	Tiles     map[domain.Position]domain.TileOrientation `json:"tiles"`
	Gates     map[domain.Position]bool                   `json:"gates"`
	// BattleLocks lists players who fought this turn and may not move again
	// until their next turn.
	BattleLocks map[domain.ID]bool `json:"battle_locks"`
}

func (m *Movement) Kind() string           { return Kind }
func (m *Movement) AggregateID() domain.ID { return m.GameID }

// Connected reports whether a single step from a to b is legal: either an
// open shared edge or a gate-to-gate jump.
func (m *Movement) Connected(a, b domain.Position) bool {
	if m.Gates[a] && m.Gates[b] && a != b {
		return true
	}
	ta, okA := m.Tiles[a]
	tb, okB := m.Tiles[b]
	if !okA || !okB {
		return false
	}
	s, ok := a.SideTowards(b)
	if !ok {
		return false
	}
	return ta.Open(s) && tb.Open(s.Opposite())
}

func load(c *bus.Context, gameID domain.ID) (*Movement, error) {
	agg, err := c.Load(gameID, &Movement{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Movement), nil
}

// MoveResult is the MovePlayer response payload.
type MoveResult struct {
	To     domain.Position
	Item   *domain.Item
	Battle *domain.BattleCompleted
}

// Register wires the movement handlers.
func Register(b *bus.Bus, log *zap.Logger) {
	bus.SubscribeEvent(b, func(c *bus.Context, e domain.GameCreated) error {
		c.Track(&Movement{
			GameID:      e.GameID,
			Positions:   make(map[domain.ID]domain.Position),
			Tiles:       make(map[domain.Position]domain.TileOrientation),
			Gates:       make(map[domain.Position]bool),
			BattleLocks: make(map[domain.ID]bool),
		})
		return nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.GameStarted) error {
		m, err := load(c, e.GameID)
		if err != nil {
			return err
		}
		for _, id := range e.PlayerIDs {
			m.Positions[id] = domain.Position{}
		}
		return nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.TilePlaced) error {
		m, err := load(c, e.GameID)
		if err != nil {
			return err
		}
		m.Tiles[e.Position] = e.Orientation
		for _, feat := range e.Features {
			if feat == domain.FeatureTeleportationGate {
				m.Gates[e.Position] = true
			}
		}
		return nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.TurnStarted) error {
		m, err := load(c, e.GameID)
		if err != nil {
			return err
		}
		delete(m.BattleLocks, e.PlayerID)
		return nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.BattleCompleted) error {
		if e.NeedsConsumableConfirmation {
			return nil
		}
		m, err := load(c, e.GameID)
		if err != nil {
			return err
		}
		m.BattleLocks[e.PlayerID] = true
		return nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.MovePlayer) (any, error) {
		return handleMove(c, cmd)
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.RelocatePlayer) (any, error) {
		m, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		from := m.Positions[cmd.PlayerID]
		m.Positions[cmd.PlayerID] = cmd.To
		if err := c.Publish(domain.PlayerMoved{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID,
			From: from, To: cmd.To, IsBattleReturn: cmd.BattleReturn,
		}); err != nil {
			return nil, err
		}
		return nil, healIfFountain(c, cmd.GameID, cmd.PlayerID, cmd.To)
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.PlayerPosition) (any, error) {
		m, err := load(c, q.GameID)
		if err != nil {
			return nil, err
		}
		pos, ok := m.Positions[q.PlayerID]
		if !ok {
			return nil, domain.ErrGameNotFound
		}
		return pos, nil
	})
}

func handleMove(c *bus.Context, cmd domain.MovePlayer) (any, error) {
	if _, err := c.Dispatch(domain.ValidateTurn{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
	}); err != nil {
		return nil, err
	}
	m, err := load(c, cmd.GameID)
	if err != nil {
		return nil, err
	}
	if m.BattleLocks[cmd.PlayerID] {
		return nil, domain.ErrCannotMoveAfterBattle
	}
	current, ok := m.Positions[cmd.PlayerID]
	if !ok || current != cmd.From {
		return nil, domain.ErrInvalidMovement
	}
	if !m.Connected(cmd.From, cmd.To) {
		return nil, domain.ErrInvalidMovement
	}

	itemAny, err := c.Dispatch(domain.ItemAt{GameID: cmd.GameID, Position: cmd.To})
	if err != nil {
		return nil, err
	}
	target, _ := itemAny.(*domain.Item)

	vitalsAny, err := c.Dispatch(domain.PlayerState{GameID: cmd.GameID, PlayerID: cmd.PlayerID})
	if err != nil {
		return nil, err
	}
	if vitalsAny.(domain.PlayerVitals).Defeated {
		// A stunned hero crawls, and only towards a fight.
		if target == nil || !target.Guarded() {
			return nil, domain.ErrPlayerStunnedCanOnlyMoveToMonsters
		}
	}

	m.Positions[cmd.PlayerID] = cmd.To
	if err := c.Publish(domain.PlayerMoved{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID,
		From: cmd.From, To: cmd.To,
		IsTilePlacementMove: cmd.IsTilePlacementMove,
	}); err != nil {
		return nil, err
	}

	if target != nil && target.Guarded() && !cmd.IgnoreMonster {
		// Stepping onto an undefeated monster is the fight, not a MOVE.
		if _, err := c.Dispatch(domain.StartBattle{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
			From: cmd.From, To: cmd.To,
		}); err != nil {
			return nil, err
		}
		battleAny, err := c.Dispatch(domain.LastBattleInfo{GameID: cmd.GameID})
		if err != nil {
			return nil, err
		}
		battle, _ := battleAny.(*domain.BattleCompleted)
		return MoveResult{To: cmd.To, Item: target, Battle: battle}, nil
	}

	if _, err := c.Dispatch(domain.RecordTurnAction{
		GameID: cmd.GameID, TurnID: cmd.TurnID,
		Entry: domain.ActionEntry{Kind: domain.ActionMove},
	}); err != nil {
		return nil, err
	}
	if err := healAtFountain(c, cmd); err != nil {
		return nil, err
	}
	return MoveResult{To: cmd.To, Item: target}, nil
}

// healAtFountain records the healing stop when a wounded hero ends a move on
// a fountain; it closes the turn.
func healAtFountain(c *bus.Context, cmd domain.MovePlayer) error {
	healed, err := fountainHeal(c, cmd.GameID, cmd.PlayerID, cmd.To)
	if err != nil || !healed {
		return err
	}
	_, err = c.Dispatch(domain.RecordTurnAction{
		GameID: cmd.GameID, TurnID: cmd.TurnID,
		Entry: domain.ActionEntry{Kind: domain.ActionHealAtFountain},
	})
	return err
}

// healIfFountain heals without touching the turn log; relocations manage
// their turn bookkeeping themselves.
func healIfFountain(c *bus.Context, gameID, playerID domain.ID, at domain.Position) error {
	_, err := fountainHeal(c, gameID, playerID, at)
	return err
}

func fountainHeal(c *bus.Context, gameID, playerID domain.ID, at domain.Position) (bool, error) {
	fountainAny, err := c.Dispatch(domain.FountainAt{GameID: gameID, Position: at})
	if err != nil {
		return false, err
	}
	if !fountainAny.(bool) {
		return false, nil
	}
	vitalsAny, err := c.Dispatch(domain.PlayerState{GameID: gameID, PlayerID: playerID})
	if err != nil {
		return false, err
	}
	vitals := vitalsAny.(domain.PlayerVitals)
	// The fountain mends the wounded, not the fallen: a stunned hero has to
	// sit out a turn to get back up.
	if vitals.Defeated || vitals.HP >= domain.MaxHP {
		return false, nil
	}
	if _, err := c.Dispatch(domain.HealPlayer{GameID: gameID, PlayerID: playerID}); err != nil {
		return false, err
	}
	return true, nil
}
