// Package game owns the lifecycle of one match: the lobby roster, the turn
// rotation with the stunned-player skip, the pending-battle gate and the
// final scoring.
package game

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
)

const Kind = "game"

type Game struct {
	ID              domain.ID         `json:"id"`
	Status          domain.GameStatus `json:"status"`
	DeckSize        int               `json:"deck_size"`
	PlayerOrder     []domain.ID       `json:"player_order"`
	CurrentPlayerID *domain.ID        `json:"current_player_id,omitempty"`
	CurrentTurnID   *domain.ID        `json:"current_turn_id,omitempty"`
	TurnNumber      int               `json:"turn_number"`
	// PendingBattleID gates every command except FinalizeBattle while a
	// fight awaits consumable confirmation.
	PendingBattleID *domain.ID        `json:"pending_battle_id,omitempty"`
	ClosedTurnIDs   []domain.ID       `json:"closed_turn_ids,omitempty"`
	WinnerID        *domain.ID        `json:"winner_id,omitempty"`
	Scores          map[domain.ID]int `json:"scores,omitempty"`
}

func (g *Game) Kind() string           { return Kind }
func (g *Game) AggregateID() domain.ID { return g.ID }

func (g *Game) playerIndex(id domain.ID) int {
	for i, p := range g.PlayerOrder {
		if p == id {
			return i
		}
	}
	return -1
}

func (g *Game) closedTurn(id domain.ID) bool {
	for _, t := range g.ClosedTurnIDs {
		if t == id {
			return true
		}
	}
	return false
}

// Load fetches the game aggregate, mapping absence to GAME_NOT_FOUND.
func Load(c *bus.Context, gameID domain.ID) (*Game, error) {
	agg, err := c.Load(gameID, &Game{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Game), nil
}

// Register wires the game handlers.
func Register(b *bus.Bus, log *zap.Logger) {
	bus.HandleCommand(b, func(c *bus.Context, cmd domain.CreateGame) (any, error) {
		id := cmd.GameID
		if id == domain.NilID {
			id = domain.NewID()
		}
		size := cmd.DeckSize
		if size <= 0 {
			size = domain.DefaultDeckSize
		}
		g := &Game{ID: id, Status: domain.StatusLobby, DeckSize: size}
		c.Track(g)
		log.Info("game created",
			zap.String("game_id", id.String()),
			zap.Int("deck_size", size))
		if err := c.Publish(domain.GameCreated{GameID: id, DeckSize: size}); err != nil {
			return nil, err
		}
		return g, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.AddPlayer) (any, error) {
		g, err := Load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if g.Status != domain.StatusLobby {
			return nil, domain.ErrGameNotPreparing
		}
		if len(g.PlayerOrder) >= domain.MaxPlayers {
			return nil, domain.ErrGameAlreadyFull
		}
		playerID := cmd.PlayerID
		if playerID == domain.NilID {
			playerID = domain.NewID()
		}
		index := len(g.PlayerOrder)
		g.PlayerOrder = append(g.PlayerOrder, playerID)
		if err := c.Publish(domain.PlayerAdded{
			GameID: g.ID, PlayerID: playerID, ExternalID: cmd.ExternalID,
			Username: cmd.Username, Wallet: cmd.Wallet, Index: index,
		}); err != nil {
			return nil, err
		}
		return playerID, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.StartGame) (any, error) {
		g, err := Load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if g.Status != domain.StatusLobby {
			return nil, domain.ErrGameNotPreparing
		}
		if len(g.PlayerOrder) == 0 {
			return nil, domain.ErrNoPlayers
		}
		g.Status = domain.StatusStarted
		if err := c.Publish(domain.GameStarted{
			GameID: g.ID, PlayerIDs: append([]domain.ID(nil), g.PlayerOrder...),
		}); err != nil {
			return nil, err
		}
		return g, startTurn(c, g, g.PlayerOrder[0])
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.NextTurn) (any, error) {
		g, err := Load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if g.Status == domain.StatusFinished {
			return nil, nil
		}
		idx := 0
		if g.CurrentPlayerID != nil {
			idx = (g.playerIndex(*g.CurrentPlayerID) + 1) % len(g.PlayerOrder)
		}
		next := g.PlayerOrder[idx]

		vitalsAny, err := c.Dispatch(domain.PlayerState{GameID: g.ID, PlayerID: next})
		if err != nil {
			return nil, err
		}
		if vitalsAny.(domain.PlayerVitals).Defeated {
			// A stunned hero sits the turn out and comes back with one
			// hit point.
			if _, err := c.Dispatch(domain.SetPlayerHP{GameID: g.ID, PlayerID: next, HP: 1}); err != nil {
				return nil, err
			}
			if err := startTurn(c, g, next); err != nil {
				return nil, err
			}
			turnID := *g.CurrentTurnID
			_, err = c.Dispatch(domain.RecordTurnAction{
				GameID: g.ID, TurnID: turnID,
				Entry: domain.ActionEntry{Kind: domain.ActionEndTurn},
			})
			return nil, err
		}
		return nil, startTurn(c, g, next)
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.EndGame) (any, error) {
		g, err := Load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if g.Status == domain.StatusFinished {
			return nil, domain.ErrGameAlreadyFinished
		}
		scores := make(map[domain.ID]int, len(g.PlayerOrder))
		var winner domain.ID
		best := -1
		for _, id := range g.PlayerOrder {
			scoreAny, err := c.Dispatch(domain.PlayerScore{GameID: g.ID, PlayerID: id})
			if err != nil {
				return nil, err
			}
			score := scoreAny.(int)
			scores[id] = score
			// Ties go to the earlier joiner.
			if score > best {
				best = score
				winner = id
			}
		}
		g.Status = domain.StatusFinished
		g.WinnerID = &winner
		g.Scores = scores
		g.PendingBattleID = nil
		log.Info("game ended",
			zap.String("game_id", g.ID.String()),
			zap.String("winner_id", winner.String()))
		return nil, c.Publish(domain.GameEnded{GameID: g.ID, WinnerID: winner, Scores: scores})
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.ValidateTurn) (any, error) {
		g, err := Load(c, q.GameID)
		if err != nil {
			return nil, err
		}
		if g.Status == domain.StatusFinished {
			return nil, domain.ErrGameAlreadyFinished
		}
		if g.CurrentPlayerID == nil || g.CurrentTurnID == nil {
			return nil, domain.ErrInvalidTurnAction
		}
		if g.PendingBattleID != nil && !q.AllowPendingBattle {
			return nil, domain.ErrInvalidTurnAction
		}
		if *g.CurrentPlayerID != q.PlayerID {
			return nil, domain.ErrNotYourTurn
		}
		if *g.CurrentTurnID != q.TurnID {
			if g.closedTurn(q.TurnID) {
				return nil, domain.ErrTurnAlreadyEnded
			}
			return nil, domain.ErrInvalidTurnAction
		}
		return nil, nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.TurnEnded) error {
		g, err := Load(c, e.GameID)
		if err != nil {
			return err
		}
		if g.CurrentTurnID == nil || *g.CurrentTurnID != e.TurnID {
			return nil
		}
		g.ClosedTurnIDs = append(g.ClosedTurnIDs, e.TurnID)
		if g.Status == domain.StatusFinished {
			return nil
		}
		_, err = c.Dispatch(domain.NextTurn{GameID: e.GameID})
		return err
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.BattleCompleted) error {
		g, err := Load(c, e.GameID)
		if err != nil {
			return err
		}
		if e.NeedsConsumableConfirmation {
			id := e.BattleID
			g.PendingBattleID = &id
		} else {
			g.PendingBattleID = nil
		}
		return nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.ItemAddedToInventory) error {
		if !e.Item.EndsGame() {
			return nil
		}
		_, err := c.Dispatch(domain.EndGame{GameID: e.GameID})
		return err
	})
}

func startTurn(c *bus.Context, g *Game, playerID domain.ID) error {
	turnID := domain.NewID()
	g.Status = domain.StatusTurnInProgress
	g.CurrentPlayerID = &playerID
	g.CurrentTurnID = &turnID
	g.TurnNumber++
	_, err := c.Dispatch(domain.StartTurn{
		GameID: g.ID, PlayerID: playerID, TurnID: turnID, Number: g.TurnNumber,
	})
	return err
}
