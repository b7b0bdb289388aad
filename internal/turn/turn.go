// Package turn owns the per-turn action log: the counted-action budget,
// which action may follow which, and when the turn closes.
package turn

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

const Kind = "turn"

type Turn struct {
	ID        domain.ID            `json:"id"`
	GameID    domain.ID            `json:"game_id"`
	PlayerID  domain.ID            `json:"player_id"`
	Number    int                  `json:"number"`
	Actions   []domain.ActionEntry `json:"actions"`
	Ended     bool                 `json:"ended"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   *time.Time           `json:"ended_at,omitempty"`
}

func (t *Turn) Kind() string           { return Kind }
func (t *Turn) AggregateID() domain.ID { return t.ID }

// CountedActions is how much of the per-turn budget has been spent.
func (t *Turn) CountedActions() int {
	n := 0
	for _, a := range t.Actions {
		if a.Kind.Counted() {
			n++
		}
	}
	return n
}

// HasBattle reports whether a fight happened this turn. Battles disable the
// automatic end at the action budget so the fight can be confirmed.
func (t *Turn) HasBattle() bool {
	for _, a := range t.Actions {
		if a.Kind == domain.ActionFightMonster {
			return true
		}
	}
	return false
}

// HasUnplacedTile reports a PICK_TILE with no PLACE_TILE after it.
func (t *Turn) HasUnplacedTile() bool {
	unplaced := false
	for _, a := range t.Actions {
		switch a.Kind {
		case domain.ActionPickTile:
			unplaced = true
		case domain.ActionPlaceTile:
			unplaced = false
		}
	}
	return unplaced
}

func (t *Turn) lastKind() (domain.ActionKind, bool) {
	if len(t.Actions) == 0 {
		return "", false
	}
	return t.Actions[len(t.Actions)-1].Kind, true
}

// legalAfter encodes which action may directly follow which. A fight locks
// the turn down to looting the defeated monster's spot or ending; a pickup
// rules out charging into another fight.
func legalAfter(prev, next domain.ActionKind) bool {
	switch prev {
	case domain.ActionFightMonster:
		return next == domain.ActionPickItem || next == domain.ActionEndTurn
	case domain.ActionPickItem:
		return next != domain.ActionFightMonster
	default:
		return true
	}
}

func load(c *bus.Context, turnID domain.ID) (*Turn, error) {
	agg, err := c.Load(turnID, &Turn{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrInvalidTurnAction
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Turn), nil
}

// record appends an entry, closing the turn when the action ends it or the
// counted budget is spent on a battle-free turn.
func (t *Turn) record(c *bus.Context, entry domain.ActionEntry) error {
	if t.Ended {
		return domain.ErrTurnAlreadyEnded
	}
	if prev, ok := t.lastKind(); ok && !legalAfter(prev, entry.Kind) {
		return domain.ErrInvalidTurnAction
	}
	if entry.At.IsZero() {
		entry.At = c.Now()
	}
	t.Actions = append(t.Actions, entry)
	if entry.Kind.EndsTurn() {
		return t.close(c)
	}
	if t.CountedActions() >= domain.MaxActionsPerTurn && !t.HasBattle() {
		return t.close(c)
	}
	return nil
}

func (t *Turn) close(c *bus.Context) error {
	at := c.Now()
	t.Ended = true
	t.EndedAt = &at
	return c.Publish(domain.TurnEnded{GameID: t.GameID, TurnID: t.ID, PlayerID: t.PlayerID})
}

// Register wires the turn handlers.
func Register(b *bus.Bus, log *zap.Logger) {
	bus.HandleCommand(b, func(c *bus.Context, cmd domain.StartTurn) (any, error) {
		t := &Turn{
			ID:        cmd.TurnID,
			GameID:    cmd.GameID,
			PlayerID:  cmd.PlayerID,
			Number:    cmd.Number,
			StartedAt: c.Now(),
		}
		c.Track(t)
		log.Debug("turn started",
			zap.String("game_id", cmd.GameID.String()),
			zap.String("player_id", cmd.PlayerID.String()),
			zap.Int("number", cmd.Number))
		return nil, c.Publish(domain.TurnStarted{
			GameID: cmd.GameID, TurnID: cmd.TurnID, PlayerID: cmd.PlayerID, Number: cmd.Number,
		})
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.RecordTurnAction) (any, error) {
		t, err := load(c, cmd.TurnID)
		if err != nil {
			return nil, err
		}
		return nil, t.record(c, cmd.Entry)
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.EndTurn) (any, error) {
		if _, err := c.Dispatch(domain.ValidateTurn{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
		}); err != nil {
			return nil, err
		}
		t, err := load(c, cmd.TurnID)
		if err != nil {
			return nil, err
		}
		if t.Ended {
			return nil, domain.ErrTurnAlreadyEnded
		}
		if t.HasUnplacedTile() {
			return nil, domain.ErrUnplacedTile
		}
		return nil, t.record(c, domain.ActionEntry{Kind: domain.ActionEndTurn})
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.TurnHasBattle) (any, error) {
		t, err := load(c, q.TurnID)
		if err != nil {
			return nil, err
		}
		return t.HasBattle(), nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.TurnActionAllowed) (any, error) {
		t, err := load(c, q.TurnID)
		if err != nil {
			return nil, err
		}
		if t.Ended {
			return false, nil
		}
		prev, ok := t.lastKind()
		return !ok || legalAfter(prev, q.Next), nil
	})
}

// BattleEntry builds the FIGHT_MONSTER log entry.
func BattleEntry(extra domain.BattleExtra, at time.Time) (domain.ActionEntry, error) {
	raw, err := json.Marshal(extra)
	if err != nil {
		return domain.ActionEntry{}, err
	}
	return domain.ActionEntry{Kind: domain.ActionFightMonster, Extra: raw, At: at}, nil
}
