package field

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dungeonhold/server/internal/domain"
)

func crossAt(f *Field, p domain.Position) {
	f.place(p, domain.Tile{ID: domain.NewID(), Orientation: domain.OrientCross})
}

func newField() *Field {
	return &Field{
		GameID: domain.NewID(),
		Tiles:  make(map[domain.Position]domain.Tile),
		Items:  make(map[domain.Position]domain.Item),
	}
}

func TestFrontierFollowsOpenSides(t *testing.T) {
	f := newField()
	crossAt(f, domain.Pos(0, 0))
	require.Len(t, f.Available, 4)
	require.True(t, f.Available[domain.Pos(1, 0)])
	require.True(t, f.Available[domain.Pos(0, -1)])

	// A straight corridor north of the start opens the frontier upward only.
	f.place(domain.Pos(0, -1), domain.Tile{ID: domain.NewID(), Orientation: domain.OrientStraight})
	require.False(t, f.Available[domain.Pos(1, -1)])
	require.False(t, f.Available[domain.Pos(-1, -1)])
	require.True(t, f.Available[domain.Pos(0, -2)])
	require.False(t, f.Available[domain.Pos(0, -1)], "occupied cells leave the frontier")
}

func TestConnectsNeedsASharedOpenEdge(t *testing.T) {
	f := newField()
	crossAt(f, domain.Pos(0, 0))

	// Straight (top/bottom) east of the start: the facing edges are walls.
	require.False(t, f.connects(domain.Pos(1, 0), domain.OrientStraight))
	// Rotated a quarter it opens left/right and connects.
	require.True(t, f.connects(domain.Pos(1, 0), domain.OrientStraight.Rotate(1)))
	// Nothing placed around (5,5).
	require.False(t, f.connects(domain.Pos(5, 5), domain.OrientCross))
}

func TestPlaceTracksTeleportGates(t *testing.T) {
	f := newField()
	crossAt(f, domain.Pos(0, 0))
	f.place(domain.Pos(1, 0), domain.Tile{
		ID:          domain.NewID(),
		Orientation: domain.OrientCross,
		Room:        true,
		Features:    []domain.TileFeature{domain.FeatureTeleportationGate},
	})
	require.Equal(t, []domain.Position{domain.Pos(1, 0)}, f.Teleports)
}

func TestAvailablePlacesMatchesFrontier(t *testing.T) {
	f := newField()
	crossAt(f, domain.Pos(0, 0))
	places := f.AvailablePlaces()
	require.Len(t, places, 4)
	for _, p := range places {
		require.True(t, f.Available[p])
	}
}
