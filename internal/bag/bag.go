// Package bag owns the face-down item pile of one game. The pile is sized
// to the number of rooms in the deck so every placed room can draw an item,
// and the dragon is always inside.
package bag

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/data"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/rng"
)

const Kind = "bag"

// Bag is keyed by game id.
type Bag struct {
	GameID domain.ID     `json:"game_id"`
	Items  []domain.Item `json:"items"`
}

func (b *Bag) Kind() string           { return Kind }
func (b *Bag) AggregateID() domain.ID { return b.GameID }

func (b *Bag) Remaining() int { return len(b.Items) }

func load(c *bus.Context, gameID domain.ID) (*Bag, error) {
	agg, err := c.Load(gameID, &Bag{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Bag), nil
}

// Register wires the bag handlers.
func Register(b *bus.Bus, rb *data.Rulebook, rnd *rng.Service, log *zap.Logger) {
	bus.SubscribeEvent(b, func(c *bus.Context, e domain.DeckCreated) error {
		items, err := buildPile(rb, rnd, e.GameID, e.RoomCount)
		if err != nil {
			return err
		}
		c.Track(&Bag{GameID: e.GameID, Items: items})
		log.Debug("bag created",
			zap.String("game_id", e.GameID.String()),
			zap.Int("items", len(items)))
		return nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.DrawItem) (any, error) {
		bag, err := load(c, cmd.GameID)
		if err != nil {
			return nil, err
		}
		if len(bag.Items) == 0 {
			return nil, domain.ErrNoItemsLeftInBag
		}
		item := bag.Items[0]
		bag.Items = bag.Items[1:]
		return item, nil
	})
}

func buildPile(rb *data.Rulebook, rnd *rng.Service, gameID domain.ID, rooms int) ([]domain.Item, error) {
	if ov, ok := rnd.Overrides(gameID); ok && len(ov.ItemSequence) > 0 {
		items := make([]domain.Item, 0, len(ov.ItemSequence))
		for _, name := range ov.ItemSequence {
			it, err := rb.NewItem(name)
			if err != nil {
				return nil, err
			}
			it.GuardDefeated = false
			items = append(items, it)
		}
		return items, nil
	}
	items, err := rb.ClassicBag(rooms)
	if err != nil {
		return nil, err
	}
	// The dragon sits at the tail before the shuffle, so it is always in.
	rnd.ForGame(gameID).Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	return items, nil
}
