package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dungeonhold/server/internal/domain"
)

func entries(kinds ...domain.ActionKind) []domain.ActionEntry {
	out := make([]domain.ActionEntry, len(kinds))
	for i, k := range kinds {
		out[i] = domain.ActionEntry{Kind: k}
	}
	return out
}

func TestCountedActions(t *testing.T) {
	tr := &Turn{Actions: entries(
		domain.ActionPickTile,
		domain.ActionRotateTile,
		domain.ActionPlaceTile,
		domain.ActionMove,
		domain.ActionFightMonster,
	)}
	// Rotation, placement and the fight are free.
	require.Equal(t, 2, tr.CountedActions())
}

func TestHasBattle(t *testing.T) {
	tr := &Turn{Actions: entries(domain.ActionMove)}
	require.False(t, tr.HasBattle())
	tr.Actions = append(tr.Actions, domain.ActionEntry{Kind: domain.ActionFightMonster})
	require.True(t, tr.HasBattle())
}

func TestHasUnplacedTile(t *testing.T) {
	tr := &Turn{Actions: entries(domain.ActionPickTile)}
	require.True(t, tr.HasUnplacedTile())
	tr.Actions = append(tr.Actions, domain.ActionEntry{Kind: domain.ActionPlaceTile})
	require.False(t, tr.HasUnplacedTile())
	tr.Actions = append(tr.Actions, domain.ActionEntry{Kind: domain.ActionPickTile})
	require.True(t, tr.HasUnplacedTile())
}

func TestLegalAfterFight(t *testing.T) {
	require.True(t, legalAfter(domain.ActionFightMonster, domain.ActionPickItem))
	require.True(t, legalAfter(domain.ActionFightMonster, domain.ActionEndTurn))
	require.False(t, legalAfter(domain.ActionFightMonster, domain.ActionMove))
	require.False(t, legalAfter(domain.ActionFightMonster, domain.ActionPickTile))
	require.True(t, legalAfter(domain.ActionMove, domain.ActionMove))
	require.True(t, legalAfter(domain.ActionPickItem, domain.ActionMove))
	require.True(t, legalAfter(domain.ActionPickItem, domain.ActionEndTurn))
	require.False(t, legalAfter(domain.ActionPickItem, domain.ActionFightMonster))
}

func TestBattleEntryCarriesExtra(t *testing.T) {
	entry, err := BattleEntry(domain.BattleExtra{
		Dice:   []int{3, 4},
		Result: domain.BattleDraw,
		From:   domain.Pos(0, 0),
		To:     domain.Pos(1, 0),
	}, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, domain.ActionFightMonster, entry.Kind)
	require.NotEmpty(t, entry.Extra)
}
