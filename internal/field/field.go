// Package field owns the board of one game: placed tiles, the placement
// frontier, the items lying on rooms and the teleportation gates. It also
// hosts the dice source, so every roll goes through the per-game seam.
package field

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/rng"
)

const Kind = "field"

// PickedTile is the tile drawn this turn, not yet placed.
type PickedTile struct {
	Tile             domain.Tile     `json:"tile"`
	PlayerID         domain.ID       `json:"player_id"`
	TurnID           domain.ID       `json:"turn_id"`
	RequiredOpenSide domain.Side     `json:"required_open_side"`
	FieldPlace       domain.Position `json:"field_place"`
}

type Field struct {
	GameID     domain.ID                        `json:"game_id"`
	Tiles      map[domain.Position]domain.Tile  `json:"tiles"`
	Items      map[domain.Position]domain.Item  `json:"items"`
	Available  map[domain.Position]bool         `json:"available"`
	Teleports  []domain.Position                `json:"teleports"`
	Picked     *PickedTile                      `json:"picked,omitempty"`
	LastBattle *domain.BattleCompleted          `json:"last_battle,omitempty"`
}

func (f *Field) Kind() string           { return Kind }
func (f *Field) AggregateID() domain.ID { return f.GameID }

// AvailablePlaces returns the frontier as a slice for responses.
func (f *Field) AvailablePlaces() []domain.Position {
	out := make([]domain.Position, 0, len(f.Available))
	for p := range f.Available {
		out = append(out, p)
	}
	return out
}

// refreshFrontier recomputes the placement frontier: every empty cell
// reachable through an open side of a placed tile.
func (f *Field) refreshFrontier() {
	f.Available = make(map[domain.Position]bool)
	for pos, tile := range f.Tiles {
		for _, s := range tile.Orientation.OpenSides() {
			q := pos.Neighbor(s)
			if _, taken := f.Tiles[q]; !taken {
				f.Available[q] = true
			}
		}
	}
}

// connects reports whether a tile at pos would share at least one open edge
// with a placed neighbor. Mismatched edges are walls, not errors.
func (f *Field) connects(pos domain.Position, o domain.TileOrientation) bool {
	for _, s := range o.OpenSides() {
		q := pos.Neighbor(s)
		neighbor, ok := f.Tiles[q]
		if ok && neighbor.Orientation.Open(s.Opposite()) {
			return true
		}
	}
	return false
}

// place puts the tile down and recomputes the frontier.
func (f *Field) place(pos domain.Position, tile domain.Tile) {
	f.Tiles[pos] = tile
	if tile.HasFeature(domain.FeatureTeleportationGate) {
		f.Teleports = append(f.Teleports, pos)
	}
	f.refreshFrontier()
}

func load(c *bus.Context, gameID domain.ID) (*Field, error) {
	agg, err := c.Load(gameID, &Field{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Field), nil
}

// PlaceResult is the PlaceTile response payload.
type PlaceResult struct {
	Tile            domain.Tile
	Position        domain.Position
	AvailablePlaces []domain.Position
	Item            *domain.Item
}

// Register wires the field handlers.
func Register(b *bus.Bus, rnd *rng.Service, log *zap.Logger) {
	bus.SubscribeEvent(b, func(c *bus.Context, e domain.GameCreated) error {
		f := &Field{
			GameID: e.GameID,
			Tiles:  make(map[domain.Position]domain.Tile),
			Items:  make(map[domain.Position]domain.Item),
		}
		c.Track(f)
		// The starting room sits at the deck's head. It never carries an
		// item.
		tileAny, err := c.Dispatch(domain.DrawTile{GameID: e.GameID})
		if err != nil {
			return err
		}
		start := tileAny.(domain.Tile)
		origin := domain.Position{}
		f.place(origin, start)
		return c.Publish(domain.TilePlaced{
			GameID: e.GameID, TileID: start.ID, Position: origin,
			Orientation: start.Orientation, Room: start.Room, Features: start.Features,
		})
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.PickTile) (any, error) {
		if _, err := c.Dispatch(domain.ValidateTurn{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
		}); err != nil {
			return nil, err
		}
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if f.Picked != nil {
			return nil, domain.ErrInvalidTurnAction
		}
		if !f.Available[cmd.FieldPlace] {
			return nil, domain.ErrInvalidMovement
		}
		tileAny, err := c.Dispatch(domain.DrawTile{GameID: cmd.GameID, TileID: cmd.TileID})
		if err != nil {
			return nil, err
		}
		tile := tileAny.(domain.Tile)
		f.Picked = &PickedTile{
			Tile:             tile,
			PlayerID:         cmd.PlayerID,
			TurnID:           cmd.TurnID,
			RequiredOpenSide: cmd.RequiredOpenSide,
			FieldPlace:       cmd.FieldPlace,
		}
		if _, err := c.Dispatch(domain.RecordTurnAction{
			GameID: cmd.GameID, TurnID: cmd.TurnID,
			Entry: domain.ActionEntry{Kind: domain.ActionPickTile, TileID: &tile.ID},
		}); err != nil {
			return nil, err
		}
		return tile, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.RotateTile) (any, error) {
		if _, err := c.Dispatch(domain.ValidateTurn{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
		}); err != nil {
			return nil, err
		}
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if f.Picked == nil || f.Picked.Tile.ID != cmd.TileID {
			return nil, domain.ErrInvalidTurnAction
		}
		// One rotation brings the requested side to TOP; it must leave the
		// required side open or no rotation can.
		steps := (4 - int(cmd.TopSide)) % 4
		rotated := f.Picked.Tile.Orientation.Rotate(steps)
		if !rotated.Open(cmd.RequiredOpenSide) {
			return nil, domain.ErrNoRotationSatisfies
		}
		f.Picked.Tile.Orientation = rotated
		f.Picked.RequiredOpenSide = cmd.RequiredOpenSide
		if _, err := c.Dispatch(domain.RecordTurnAction{
			GameID: cmd.GameID, TurnID: cmd.TurnID,
			Entry: domain.ActionEntry{Kind: domain.ActionRotateTile, TileID: &cmd.TileID},
		}); err != nil {
			return nil, err
		}
		return f.Picked.Tile, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.PlaceTile) (any, error) {
		if _, err := c.Dispatch(domain.ValidateTurn{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
		}); err != nil {
			return nil, err
		}
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if f.Picked == nil || f.Picked.Tile.ID != cmd.TileID {
			return nil, domain.ErrInvalidTurnAction
		}
		if !f.Available[cmd.FieldPlace] {
			return nil, domain.ErrInvalidMovement
		}
		tile := f.Picked.Tile
		if !f.connects(cmd.FieldPlace, tile.Orientation) {
			return nil, domain.ErrInvalidMovement
		}
		f.place(cmd.FieldPlace, tile)
		f.Picked = nil

		var placedItem *domain.Item
		if tile.Room {
			itemAny, err := c.Dispatch(domain.DrawItem{GameID: cmd.GameID})
			if err != nil {
				return nil, err
			}
			item := itemAny.(domain.Item)
			f.Items[cmd.FieldPlace] = item
			placedItem = &item
		}
		if _, err := c.Dispatch(domain.RecordTurnAction{
			GameID: cmd.GameID, TurnID: cmd.TurnID,
			Entry: domain.ActionEntry{Kind: domain.ActionPlaceTile, TileID: &cmd.TileID},
		}); err != nil {
			return nil, err
		}
		if err := c.Publish(domain.TilePlaced{
			GameID: cmd.GameID, TileID: tile.ID, Position: cmd.FieldPlace,
			Orientation: tile.Orientation, Room: tile.Room, Features: tile.Features,
		}); err != nil {
			return nil, err
		}
		return PlaceResult{
			Tile:            tile,
			Position:        cmd.FieldPlace,
			AvailablePlaces: f.AvailablePlaces(),
			Item:            placedItem,
		}, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.ItemAt) (any, error) {
		f, err := load(c, q.GameID)
		if err != nil {
			return nil, err
		}
		if item, ok := f.Items[q.Position]; ok {
			return &item, nil
		}
		return (*domain.Item)(nil), nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.MarkGuardDefeated) (any, error) {
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		item, ok := f.Items[cmd.Position]
		if !ok {
			return nil, domain.ErrInvalidTurnAction
		}
		item.GuardDefeated = true
		f.Items[cmd.Position] = item
		return nil, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.RemoveItemAt) (any, error) {
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		item, ok := f.Items[cmd.Position]
		if !ok {
			return nil, domain.ErrInvalidTurnAction
		}
		delete(f.Items, cmd.Position)
		return item, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.DropItemAt) (any, error) {
		f, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		item := cmd.Item
		item.GuardDefeated = true
		f.Items[cmd.Position] = item
		return nil, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.FountainAt) (any, error) {
		f, err := load(c, q.GameID)
		if err != nil {
			return nil, err
		}
		tile, ok := f.Tiles[q.Position]
		return ok && tile.HasFeature(domain.FeatureHealingFountain), nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.RollDice) (any, error) {
		src := rnd.ForGame(q.GameID)
		rolls := make([]int, q.N)
		for i := range rolls {
			rolls[i] = src.Roll(q.Min, q.Max)
		}
		log.Debug("dice rolled",
			zap.String("game_id", q.GameID.String()),
			zap.Ints("rolls", rolls))
		return rolls, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.LastBattleInfo) (any, error) {
		f, err := load(c, q.GameID)
		if err != nil {
			return nil, err
		}
		return f.LastBattle, nil
	})

	bus.SubscribeEvent(b, func(c *bus.Context, e domain.BattleCompleted) error {
		f, err := load(c, e.GameID)
		if err != nil {
			return err
		}
		f.LastBattle = &e
		return nil
	})
}
