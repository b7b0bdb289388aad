// Package deck owns the face-down tile pile of one game. The first element
// is the starting room, which the field places at (0,0) before play.
package deck

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/data"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/rng"
)

const Kind = "deck"

// Deck is keyed by game id: one pile per game.
type Deck struct {
	GameID domain.ID     `json:"game_id"`
	Tiles  []domain.Tile `json:"tiles"`
}

func (d *Deck) Kind() string           { return Kind }
func (d *Deck) AggregateID() domain.ID { return d.GameID }

// Remaining is the number of undrawn tiles.
func (d *Deck) Remaining() int { return len(d.Tiles) }

func load(c *bus.Context, gameID domain.ID) (*Deck, error) {
	agg, err := c.Load(gameID, &Deck{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Deck), nil
}

// Register wires the deck handlers.
func Register(b *bus.Bus, rb *data.Rulebook, rnd *rng.Service, log *zap.Logger) {
	bus.SubscribeEvent(b, func(c *bus.Context, e domain.GameCreated) error {
		tiles, err := buildPile(rb, rnd, e.GameID, e.DeckSize)
		if err != nil {
			return err
		}
		rooms := 0
		for _, t := range tiles[1:] {
			if t.Room {
				rooms++
			}
		}
		c.Track(&Deck{GameID: e.GameID, Tiles: tiles})
		log.Debug("deck created",
			zap.String("game_id", e.GameID.String()),
			zap.Int("tiles", len(tiles)),
			zap.Int("rooms", rooms))
		return c.Publish(domain.DeckCreated{GameID: e.GameID, RoomCount: rooms})
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.DrawTile) (any, error) {
		d, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if len(d.Tiles) == 0 {
			return nil, domain.ErrNoTilesLeftInDeck
		}
		tile := d.Tiles[0]
		d.Tiles = d.Tiles[1:]
		if cmd.TileID != domain.NilID {
			tile.ID = cmd.TileID
		}
		return tile, nil
	})
}

// buildPile assembles the pile: the starting room first, then either the
// installed deterministic sequence or the shuffled classic composition.
func buildPile(rb *data.Rulebook, rnd *rng.Service, gameID domain.ID, deckSize int) ([]domain.Tile, error) {
	if ov, ok := rnd.Overrides(gameID); ok && len(ov.TileSequence) > 0 {
		tiles := make([]domain.Tile, 0, len(ov.TileSequence)+1)
		tiles = append(tiles, rb.StartingTile())
		for _, name := range ov.TileSequence {
			t, err := rb.TileByName(name)
			if err != nil {
				return nil, err
			}
			tiles = append(tiles, t)
		}
		return tiles, nil
	}
	if deckSize <= 0 {
		deckSize = domain.DefaultDeckSize
	}
	rest, err := rb.ClassicTiles(deckSize - 1)
	if err != nil {
		return nil, err
	}
	rnd.ForGame(gameID).Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	tiles := make([]domain.Tile, 0, deckSize)
	tiles = append(tiles, rb.StartingTile())
	return append(tiles, rest...), nil
}
