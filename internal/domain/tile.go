package domain

// TileFeature marks special rooms.
type TileFeature string

const (
	FeatureHealingFountain   TileFeature = "HEALING_FOUNTAIN"
	FeatureTeleportationGate TileFeature = "TELEPORTATION_GATE"
)

// Tile is a dungeon tile. It lives in the deck as a template, is held by the
// current player between PickTile and PlaceTile, and is frozen once placed.
type Tile struct {
	ID          ID              `json:"id"`
	Orientation TileOrientation `json:"orientation"`
	Room        bool            `json:"room"`
	Features    []TileFeature   `json:"features,omitempty"`
}

func (t Tile) HasFeature(f TileFeature) bool {
	for _, have := range t.Features {
		if have == f {
			return true
		}
	}
	return false
}
