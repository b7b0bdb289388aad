// Package data loads the embedded rulebook tables: the monster roster, the
// classic deck composition and the classic bag distribution.
package data

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dungeonhold/server/internal/domain"
)

//go:embed rulebook.yaml
var rulebookYAML []byte

type MonsterDef struct {
	Name          string          `yaml:"name"`
	HP            int             `yaml:"hp"`
	Loot          domain.ItemType `yaml:"loot"`
	TreasureValue int             `yaml:"treasure_value"`
}

type DeckEntry struct {
	Shape   string             `yaml:"shape"`
	Room    bool               `yaml:"room"`
	Feature domain.TileFeature `yaml:"feature"`
	Count   int                `yaml:"count"`
}

type BagEntry struct {
	Monster string `yaml:"monster"`
	Count   int    `yaml:"count"`
}

// Rulebook is the parsed rule data, loaded once at startup.
type Rulebook struct {
	Monsters []MonsterDef `yaml:"monsters"`
	Deck     []DeckEntry  `yaml:"deck"`
	Bag      []BagEntry   `yaml:"bag"`
	Dragon   string       `yaml:"dragon"`

	byName map[string]MonsterDef
}

// Load parses the embedded rulebook.
func Load() (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(rulebookYAML, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}
	rb.byName = make(map[string]MonsterDef, len(rb.Monsters))
	for _, m := range rb.Monsters {
		rb.byName[m.Name] = m
	}
	if _, ok := rb.byName[rb.Dragon]; !ok {
		return nil, fmt.Errorf("rulebook: dragon %q missing from monster roster", rb.Dragon)
	}
	for _, e := range rb.Bag {
		if _, ok := rb.byName[e.Monster]; !ok {
			return nil, fmt.Errorf("rulebook: bag entry %q missing from monster roster", e.Monster)
		}
	}
	return &rb, nil
}

func (rb *Rulebook) Monster(name string) (MonsterDef, bool) {
	m, ok := rb.byName[name]
	return m, ok
}

// NewItem mints a field item for a monster or chest by roster name.
func (rb *Rulebook) NewItem(name string) (domain.Item, error) {
	m, ok := rb.byName[name]
	if !ok {
		return domain.Item{}, fmt.Errorf("rulebook: unknown item %q", name)
	}
	return domain.Item{
		ID:            domain.NewID(),
		Name:          m.Name,
		Type:          m.Loot,
		GuardHP:       m.HP,
		TreasureValue: m.TreasureValue,
	}, nil
}

func shapeOrientation(shape string) (domain.TileOrientation, error) {
	switch shape {
	case "straight":
		return domain.OrientStraight, nil
	case "corner":
		return domain.OrientCorner, nil
	case "tee":
		return domain.OrientTee, nil
	case "cross":
		return domain.OrientCross, nil
	default:
		return 0, fmt.Errorf("rulebook: unknown tile shape %q", shape)
	}
}

func newTile(entry DeckEntry) (domain.Tile, error) {
	o, err := shapeOrientation(entry.Shape)
	if err != nil {
		return domain.Tile{}, err
	}
	t := domain.Tile{
		ID:          domain.NewID(),
		Orientation: o,
		Room:        entry.Room,
	}
	if entry.Feature != "" {
		t.Features = []domain.TileFeature{entry.Feature}
	}
	return t, nil
}

// StartingTile is the cross-shaped fountain room placed at (0,0) before
// play.
func (rb *Rulebook) StartingTile() domain.Tile {
	return domain.Tile{
		ID:          domain.NewID(),
		Orientation: domain.OrientCross,
		Room:        true,
		Features:    []domain.TileFeature{domain.FeatureHealingFountain},
	}
}

// ClassicTiles expands the classic composition to exactly deckSize tiles,
// unshuffled. Sizes other than the classic total repeat the mix cyclically.
func (rb *Rulebook) ClassicTiles(deckSize int) ([]domain.Tile, error) {
	var mix []DeckEntry
	for _, e := range rb.Deck {
		for i := 0; i < e.Count; i++ {
			mix = append(mix, e)
		}
	}
	if len(mix) == 0 {
		return nil, fmt.Errorf("rulebook: empty deck composition")
	}
	tiles := make([]domain.Tile, 0, deckSize)
	for i := 0; i < deckSize; i++ {
		t, err := newTile(mix[i%len(mix)])
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}

// ClassicBag expands the bag distribution to n items with the dragon
// appended last so it is always included, unshuffled.
func (rb *Rulebook) ClassicBag(n int) ([]domain.Item, error) {
	if n < 1 {
		return nil, nil
	}
	var names []string
	for _, e := range rb.Bag {
		for i := 0; i < e.Count; i++ {
			names = append(names, e.Monster)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("rulebook: empty bag distribution")
	}
	items := make([]domain.Item, 0, n)
	for i := 0; i < n-1; i++ {
		it, err := rb.NewItem(names[i%len(names)])
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	dragon, err := rb.NewItem(rb.Dragon)
	if err != nil {
		return nil, err
	}
	items = append(items, dragon)
	return items, nil
}

// TileByName resolves deterministic-seam tile names. Bare shapes name
// corridors; "room" is a cross room; "fountain" and "gate" are cross rooms
// bearing the feature.
func (rb *Rulebook) TileByName(name string) (domain.Tile, error) {
	switch name {
	case "corridor":
		return newTile(DeckEntry{Shape: "cross"})
	case "straight", "corner", "tee", "cross":
		return newTile(DeckEntry{Shape: name})
	case "room":
		return newTile(DeckEntry{Shape: "cross", Room: true})
	case "fountain":
		return newTile(DeckEntry{Shape: "cross", Room: true, Feature: domain.FeatureHealingFountain})
	case "gate":
		return newTile(DeckEntry{Shape: "cross", Room: true, Feature: domain.FeatureTeleportationGate})
	default:
		return domain.Tile{}, fmt.Errorf("rulebook: unknown tile name %q", name)
	}
}
