package engine

import (
	"context"

	"github.com/dungeonhold/server/internal/bag"
	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/deck"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/field"
	"github.com/dungeonhold/server/internal/game"
	"github.com/dungeonhold/server/internal/movement"
	"github.com/dungeonhold/server/internal/player"
	"github.com/dungeonhold/server/internal/turn"
)

// recentTurnCount caps how many closed turns the view carries.
const recentTurnCount = 10

// PlayerView is one hero in the assembled view.
type PlayerView struct {
	ID        domain.ID       `json:"id"`
	Username  string          `json:"username"`
	HP        int             `json:"hp"`
	Defeated  bool            `json:"defeated"`
	Position  domain.Position `json:"position"`
	Inventory []domain.Item   `json:"inventory"`
	Score     int             `json:"score"`
}

// TurnView is one closed or running turn in the assembled view.
type TurnView struct {
	ID       domain.ID            `json:"id"`
	PlayerID domain.ID            `json:"player_id"`
	Number   int                  `json:"number"`
	Actions  []domain.ActionEntry `json:"actions"`
	Ended    bool                 `json:"ended"`
}

// GameView is the full state a client needs to render a game.
type GameView struct {
	ID              domain.ID                       `json:"id"`
	Status          domain.GameStatus               `json:"status"`
	Players         []PlayerView                    `json:"players"`
	CurrentPlayerID *domain.ID                      `json:"current_player_id,omitempty"`
	CurrentTurnID   *domain.ID                      `json:"current_turn_id,omitempty"`
	PendingBattleID *domain.ID                      `json:"pending_battle_id,omitempty"`
	WinnerID        *domain.ID                      `json:"winner_id,omitempty"`
	Scores          map[domain.ID]int               `json:"scores,omitempty"`
	Tiles           map[domain.Position]domain.Tile `json:"tiles"`
	Items           map[domain.Position]domain.Item `json:"items"`
	AvailablePlaces []domain.Position               `json:"available_places"`
	PickedTile      *domain.Tile                    `json:"picked_tile,omitempty"`
	DeckRemaining   int                             `json:"deck_remaining"`
	BagRemaining    int                             `json:"bag_remaining"`
	LastBattle      *domain.BattleCompleted         `json:"last_battle,omitempty"`
	RecentTurns     []TurnView                      `json:"recent_turns"`
}

// GetGame assembles the view in one read transaction.
func (e *Engine) GetGame(ctx context.Context, gameID domain.ID) (*GameView, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	c := bus.NewContext(ctx, e.bus, tx, gameID, domain.NilID, e.clock.Now)

	g, err := game.Load(c, gameID)
	if err != nil {
		return nil, err
	}
	view := &GameView{
		ID:              g.ID,
		Status:          g.Status,
		CurrentPlayerID: g.CurrentPlayerID,
		CurrentTurnID:   g.CurrentTurnID,
		PendingBattleID: g.PendingBattleID,
		WinnerID:        g.WinnerID,
		Scores:          g.Scores,
		Tiles:           make(map[domain.Position]domain.Tile),
		Items:           make(map[domain.Position]domain.Item),
	}

	if fAgg, err := c.Load(gameID, &field.Field{}); err == nil {
		f := fAgg.(*field.Field)
		view.Tiles = f.Tiles
		view.Items = f.Items
		view.AvailablePlaces = f.AvailablePlaces()
		view.LastBattle = f.LastBattle
		if f.Picked != nil {
			t := f.Picked.Tile
			view.PickedTile = &t
		}
	} else if err != bus.ErrNotFound {
		return nil, err
	}
	if dAgg, err := c.Load(gameID, &deck.Deck{}); err == nil {
		view.DeckRemaining = dAgg.(*deck.Deck).Remaining()
	} else if err != bus.ErrNotFound {
		return nil, err
	}
	if bAgg, err := c.Load(gameID, &bag.Bag{}); err == nil {
		view.BagRemaining = bAgg.(*bag.Bag).Remaining()
	} else if err != bus.ErrNotFound {
		return nil, err
	}

	var positions map[domain.ID]domain.Position
	if mAgg, err := c.Load(gameID, &movement.Movement{}); err == nil {
		positions = mAgg.(*movement.Movement).Positions
	} else if err != bus.ErrNotFound {
		return nil, err
	}
	for _, id := range g.PlayerOrder {
		p, err := player.Load(c, id)
		if err != nil {
			return nil, err
		}
		view.Players = append(view.Players, PlayerView{
			ID:        p.ID,
			Username:  p.Username,
			HP:        p.HP,
			Defeated:  p.Defeated,
			Position:  positions[p.ID],
			Inventory: p.Inventory,
			Score:     p.Score(),
		})
	}

	turnIDs := g.ClosedTurnIDs
	if len(turnIDs) > recentTurnCount {
		turnIDs = turnIDs[len(turnIDs)-recentTurnCount:]
	}
	if g.CurrentTurnID != nil && !containsID(turnIDs, *g.CurrentTurnID) {
		turnIDs = append(append([]domain.ID(nil), turnIDs...), *g.CurrentTurnID)
	}
	for _, id := range turnIDs {
		tAgg, err := c.Load(id, &turn.Turn{})
		if err == bus.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		t := tAgg.(*turn.Turn)
		view.RecentTurns = append(view.RecentTurns, TurnView{
			ID:       t.ID,
			PlayerID: t.PlayerID,
			Number:   t.Number,
			Actions:  t.Actions,
			Ended:    t.Ended,
		})
	}
	return view, nil
}

func containsID(ids []domain.ID, id domain.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
