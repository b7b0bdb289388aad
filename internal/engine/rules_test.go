package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/data"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/persist"
	"github.com/dungeonhold/server/internal/rng"
)

func TestCommandIdempotency(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{
		TileSequence: []string{"corridor"},
	}, 1)

	playerID, turnID := h.turn()
	cmdID := domain.NewID()
	h.pickAndPlace(domain.Pos(1, 0))
	res, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(0, 0), To: domain.Pos(1, 0),
	}, cmdID)
	require.NoError(t, err)
	require.Equal(t, domain.Pos(1, 0), res.To)

	// Resending the same command id is an accepted no-op.
	res, err = h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(1, 0), To: domain.Pos(0, 0),
	}, cmdID)
	require.NoError(t, err)
	require.Equal(t, domain.Position{}, res.To)
	require.Equal(t, domain.Pos(1, 0), h.view().Players[0].Position)
	require.Equal(t, players[0], *h.view().CurrentPlayerID)
}

func TestNotYourTurn(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 2)

	_, turnID := h.turn()
	_, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: players[1], TurnID: turnID,
		From: domain.Pos(0, 0), To: domain.Pos(1, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNotYourTurn)
}

func TestStaleTurnIDRejected(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 1)

	_, oldTurn := h.turn()
	h.endTurn()
	_, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: players[0], TurnID: oldTurn,
		From: domain.Pos(0, 0), To: domain.Pos(1, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrTurnAlreadyEnded)
}

func TestUnplacedTileBlocksEndTurn(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 1)

	playerID, turnID := h.turn()
	_, err := h.eng.PickTile(h.ctx, domain.PickTile{
		GameID: h.gameID, TileID: domain.NewID(), PlayerID: playerID, TurnID: turnID,
		RequiredOpenSide: domain.SideLeft, FieldPlace: domain.Pos(1, 0),
	}, domain.NewID())
	require.NoError(t, err)

	err = h.eng.EndTurn(h.ctx, domain.EndTurn{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrUnplacedTile)
}

func TestRotationMustSatisfyRequiredSide(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"corner"}}, 1)

	playerID, turnID := h.turn()
	// South of the start the tile must open towards the top.
	tile, err := h.eng.PickTile(h.ctx, domain.PickTile{
		GameID: h.gameID, TileID: domain.NewID(), PlayerID: playerID, TurnID: turnID,
		RequiredOpenSide: domain.SideTop, FieldPlace: domain.Pos(0, 1),
	}, domain.NewID())
	require.NoError(t, err)
	require.Equal(t, domain.OrientCorner, tile.Orientation)

	// A corner turned so its openings face bottom and left cannot keep the
	// top open.
	_, err = h.eng.RotateTile(h.ctx, domain.RotateTile{
		GameID: h.gameID, TileID: tile.ID, PlayerID: playerID, TurnID: turnID,
		TopSide: domain.SideBottom, RequiredOpenSide: domain.SideTop,
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNoRotationSatisfies)

	// Turning the right opening up keeps top open: top+right becomes
	// left+top.
	rotated, err := h.eng.RotateTile(h.ctx, domain.RotateTile{
		GameID: h.gameID, TileID: tile.ID, PlayerID: playerID, TurnID: turnID,
		TopSide: domain.SideRight, RequiredOpenSide: domain.SideTop,
	}, domain.NewID())
	require.NoError(t, err)
	require.True(t, rotated.Orientation.Open(domain.SideTop))
	require.True(t, rotated.Orientation.Open(domain.SideLeft))

	_, err = h.eng.PlaceTile(h.ctx, domain.PlaceTile{
		GameID: h.gameID, TileID: tile.ID, PlayerID: playerID, TurnID: turnID,
		FieldPlace: domain.Pos(0, 1),
	}, domain.NewID())
	require.NoError(t, err)
}

func TestPlacementRequiresConnection(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"straight"}}, 1)

	playerID, turnID := h.turn()
	// A straight corridor (top/bottom) placed east of the start would touch
	// it only with a wall.
	tile, err := h.eng.PickTile(h.ctx, domain.PickTile{
		GameID: h.gameID, TileID: domain.NewID(), PlayerID: playerID, TurnID: turnID,
		RequiredOpenSide: domain.SideTop, FieldPlace: domain.Pos(1, 0),
	}, domain.NewID())
	require.NoError(t, err)

	_, err = h.eng.PlaceTile(h.ctx, domain.PlaceTile{
		GameID: h.gameID, TileID: tile.ID, PlayerID: playerID, TurnID: turnID,
		FieldPlace: domain.Pos(1, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrInvalidMovement)
}

func TestActionBudgetAutoEndsTurn(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{
		TileSequence: []string{"corridor", "corridor", "corridor"},
	}, 2)

	// Four counted actions: three moves and one exploration.
	_, firstTurn := h.turn()
	h.pickAndPlace(domain.Pos(1, 0))
	h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	h.pickAndPlace(domain.Pos(2, 0))
	h.movePlayer(domain.Pos(1, 0), domain.Pos(2, 0))

	v := h.view()
	require.NotEqual(t, firstTurn, *v.CurrentTurnID, "budget spent, turn closed")
	require.Equal(t, players[1], *v.CurrentPlayerID)
}

func TestMovementRules(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 1)

	playerID, turnID := h.turn()
	// No tile at (0,1) yet.
	_, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(0, 0), To: domain.Pos(0, 1),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrInvalidMovement)

	// Wrong origin.
	h.pickAndPlace(domain.Pos(1, 0))
	_, err = h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(1, 0), To: domain.Pos(0, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrInvalidMovement)
}

func TestNoMoreMovesAfterBattle(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{
		DiceRolls:    []int{6, 6},
		TileSequence: []string{"room"},
		ItemSequence: []string{"giant_rat"},
	}, 2)

	h.pickAndPlace(domain.Pos(1, 0))
	battle := h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	require.Equal(t, domain.BattleWin, battle.Result)

	playerID, turnID := h.turn()
	_, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(1, 0), To: domain.Pos(0, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrCannotMoveAfterBattle)
}

func TestTeleportGatesFormAClique(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{
		TileSequence: []string{"gate", "gate"},
		ItemSequence: []string{"chest", "chest"},
	}, 1)

	// Gates are rooms; chests guard nothing, so entering is a plain move.
	h.pickAndPlace(domain.Pos(1, 0))
	battle := h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	require.Nil(t, battle)
	h.endTurn()

	h.pickAndPlace(domain.Pos(-1, 0))
	h.movePlayer(domain.Pos(1, 0), domain.Pos(-1, 0))
	require.Equal(t, domain.Pos(-1, 0), h.view().Players[0].Position)
}

func TestFountainHealsAndEndsTurn(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{
		TileSequence: []string{"corridor"},
		StartingHP:   []int{3},
	}, 1)

	_, firstTurn := h.turn()
	h.pickAndPlace(domain.Pos(1, 0))
	h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	require.Equal(t, 3, h.view().Players[0].HP, "corridors do not heal")

	// Stepping back onto the starting fountain heals to max and closes the
	// turn.
	h.movePlayer(domain.Pos(1, 0), domain.Pos(0, 0))
	v := h.view()
	require.Equal(t, domain.MaxHP, v.Players[0].HP)
	require.NotEqual(t, firstTurn, *v.CurrentTurnID)
	require.Equal(t, players[0], *v.CurrentPlayerID)
}

func TestTeleportSpellNeedsFountainTarget(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{
		DiceRolls:    []int{6, 6},
		TileSequence: []string{"room", "room"},
		ItemSequence: []string{"mummy", "fallen"},
	}, 1)

	// Earn the axe, then the teleport scroll.
	h.pickAndPlace(domain.Pos(1, 0))
	h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	_, err := h.pickItem(domain.Pos(1, 0), nil)
	require.NoError(t, err)
	h.endTurn()

	h.pickAndPlace(domain.Pos(2, 0))
	battle := h.movePlayer(domain.Pos(1, 0), domain.Pos(2, 0))
	require.Equal(t, domain.BattleWin, battle.Result, "12 dice plus axe 3 beats the fallen's 12")
	teleport, err := h.pickItem(domain.Pos(2, 0), nil)
	require.NoError(t, err)
	require.Equal(t, domain.ItemTeleport, teleport.Type)
	h.endTurn()

	playerID, turnID := h.turn()
	badTarget := domain.Pos(1, 0)
	_, err = h.eng.UseSpell(h.ctx, domain.UseSpell{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		SpellID: teleport.ID, TargetPosition: &badTarget,
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrInvalidMovement)

	fountain := domain.Pos(0, 0)
	used, err := h.eng.UseSpell(h.ctx, domain.UseSpell{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		SpellID: teleport.ID, TargetPosition: &fountain,
	}, domain.NewID())
	require.NoError(t, err)
	require.Equal(t, domain.ItemTeleport, used.Type)

	v := h.view()
	require.Equal(t, fountain, v.Players[0].Position)
	require.NotEqual(t, turnID, *v.CurrentTurnID, "teleport ends the turn")
}

func TestLobbyRules(t *testing.T) {
	h, _ := newHarness(t, nil, 1)

	// The game already started: no more joiners.
	_, err := h.eng.AddPlayer(h.ctx, domain.AddPlayer{GameID: h.gameID, Username: "late"}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrGameNotPreparing)

	_, err = h.eng.StartGame(h.ctx, domain.StartGame{GameID: h.gameID}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrGameNotPreparing)

	_, err = h.eng.GetGame(h.ctx, domain.NewID())
	require.ErrorIs(t, err, domain.ErrGameNotFound)
}

// freshLobby creates a game without seating or starting anyone.
func freshLobby(t *testing.T) *harness {
	t.Helper()
	rb, err := data.Load()
	require.NoError(t, err)
	rnd, err := rng.NewService()
	require.NoError(t, err)
	store := persist.NewMemoryStore()
	eng := New(store, rb, rnd, &rng.FixedClock{At: time.Unix(1700000000, 0), Step: time.Second}, zap.NewNop())
	h := &harness{t: t, ctx: context.Background(), eng: eng, store: store, gameID: domain.NewID()}
	_, err = eng.CreateGame(h.ctx, domain.CreateGame{GameID: h.gameID}, domain.NewID())
	require.NoError(t, err)
	return h
}

func TestFifthPlayerRejected(t *testing.T) {
	h := freshLobby(t)
	for i := 0; i < domain.MaxPlayers; i++ {
		_, err := h.eng.AddPlayer(h.ctx, domain.AddPlayer{GameID: h.gameID, Username: "hero"}, domain.NewID())
		require.NoError(t, err)
	}
	_, err := h.eng.AddPlayer(h.ctx, domain.AddPlayer{GameID: h.gameID, Username: "extra"}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrGameAlreadyFull)
}

func TestStartNeedsPlayers(t *testing.T) {
	h := freshLobby(t)
	_, err := h.eng.StartGame(h.ctx, domain.StartGame{GameID: h.gameID}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNoPlayers)
}

func TestDeckExhaustion(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 1)

	h.pickAndPlace(domain.Pos(1, 0))
	playerID, turnID := h.turn()
	_, err := h.eng.PickTile(h.ctx, domain.PickTile{
		GameID: h.gameID, TileID: domain.NewID(), PlayerID: playerID, TurnID: turnID,
		RequiredOpenSide: domain.SideLeft, FieldPlace: domain.Pos(2, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNoTilesLeftInDeck)
}

func TestBagExhaustionAbortsPlacement(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{
		TileSequence: []string{"room", "room"},
		ItemSequence: []string{"chest"},
	}, 1)

	h.pickAndPlace(domain.Pos(1, 0))
	h.endTurn()

	playerID, turnID := h.turn()
	tile, err := h.eng.PickTile(h.ctx, domain.PickTile{
		GameID: h.gameID, TileID: domain.NewID(), PlayerID: playerID, TurnID: turnID,
		RequiredOpenSide: domain.SideLeft, FieldPlace: domain.Pos(2, 0),
	}, domain.NewID())
	require.NoError(t, err)
	_, err = h.eng.PlaceTile(h.ctx, domain.PlaceTile{
		GameID: h.gameID, TileID: tile.ID, PlayerID: playerID, TurnID: turnID,
		FieldPlace: domain.Pos(2, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrNoItemsLeftInBag)

	// The failed command left no trace: the tile is still in hand, the
	// cell still free.
	v := h.view()
	require.NotNil(t, v.PickedTile)
	_, placed := v.Tiles[domain.Pos(2, 0)]
	require.False(t, placed)
}

func TestNoCombatAfterPickingAnItem(t *testing.T) {
	h, players := newHarness(t, &rng.Overrides{
		DiceRolls:    []int{6, 6},
		TileSequence: []string{"room", "room", "room"},
		ItemSequence: []string{"skeleton_turnkey", "chest", "giant_rat"},
	}, 2)

	// Turn 1: earn the key.
	h.pickAndPlace(domain.Pos(1, 0))
	battle := h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	require.Equal(t, domain.BattleWin, battle.Result)
	key, err := h.pickItem(domain.Pos(1, 0), nil)
	require.NoError(t, err)
	require.Equal(t, domain.ItemKey, key.Type)
	h.endTurn()

	// The second player lays out the chest and the rat.
	h.pickAndPlace(domain.Pos(2, 0))
	h.pickAndPlace(domain.Pos(3, 0))
	h.endTurn()

	// Open the chest, then try to charge the rat in the same turn.
	h.movePlayer(domain.Pos(1, 0), domain.Pos(2, 0))
	chest, err := h.pickItem(domain.Pos(2, 0), nil)
	require.NoError(t, err)
	require.Equal(t, domain.ItemChest, chest.Type)

	playerID, turnID := h.turn()
	_, err = h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(2, 0), To: domain.Pos(3, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrInvalidTurnAction)

	// The rejected charge left nothing behind: no step, no battle.
	v := h.view()
	require.Equal(t, domain.Pos(2, 0), v.Players[0].Position)
	require.Nil(t, v.PendingBattleID)
	require.Equal(t, players[0], *v.CurrentPlayerID, "the turn is still open")
}

func TestStunnedPlayerMayOnlyChargeMonsters(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{
		DiceRolls:    []int{6, 6},
		TileSequence: []string{"corridor", "room"},
		ItemSequence: []string{"giant_rat"},
		StartingHP:   []int{0},
	}, 1)

	playerID, turnID := h.turn()
	h.pickAndPlace(domain.Pos(1, 0))

	// An empty corridor is no destination for a stunned hero.
	_, err := h.eng.MovePlayer(h.ctx, domain.MovePlayer{
		GameID: h.gameID, PlayerID: playerID, TurnID: turnID,
		From: domain.Pos(0, 0), To: domain.Pos(1, 0),
	}, domain.NewID())
	require.ErrorIs(t, err, domain.ErrPlayerStunnedCanOnlyMoveToMonsters)
	require.Equal(t, domain.Pos(0, 0), h.view().Players[0].Position)

	// An undefeated monster is.
	h.pickAndPlace(domain.Pos(0, 1))
	battle := h.movePlayer(domain.Pos(0, 0), domain.Pos(0, 1))
	require.NotNil(t, battle)
	require.Equal(t, domain.BattleWin, battle.Result)
}

func TestOutboxKeepsPerGameFIFO(t *testing.T) {
	h, _ := newHarness(t, &rng.Overrides{TileSequence: []string{"corridor"}}, 1)

	h.pickAndPlace(domain.Pos(1, 0))
	h.movePlayer(domain.Pos(0, 0), domain.Pos(1, 0))
	h.endTurn()

	batch, err := h.store.NextBatch(h.ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, batch)
	for i := 1; i < len(batch); i++ {
		require.Less(t, batch[i-1].ID, batch[i].ID, "outbox rows keep insertion order")
		require.Equal(t, h.gameID, batch[i].GameID)
	}
}
