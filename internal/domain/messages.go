package domain

// GameStatus is the game lifecycle state.
type GameStatus string

const (
	StatusLobby          GameStatus = "LOBBY"
	StatusStarted        GameStatus = "STARTED"
	StatusTurnInProgress GameStatus = "TURN_IN_PROGRESS"
	StatusFinished       GameStatus = "FINISHED"
)

const (
	MaxPlayers      = 4
	MaxHP           = 5
	DefaultDeckSize = 88
)

// External marks events that are forwarded through the outbox after commit.
// In-process subscribers always run synchronously regardless.
type External interface {
	ExternalEvent()
}

// ── Commands ──────────────────────────────────────────────────────

type CreateGame struct {
	GameID   ID
	DeckSize int
}

type AddPlayer struct {
	GameID     ID
	PlayerID   ID
	ExternalID string
	Username   string
	Wallet     string
}

type StartGame struct {
	GameID ID
}

type PickTile struct {
	GameID           ID
	TileID           ID
	PlayerID         ID
	TurnID           ID
	RequiredOpenSide Side
	FieldPlace       Position
}

type RotateTile struct {
	GameID           ID
	TileID           ID
	PlayerID         ID
	TurnID           ID
	TopSide          Side
	RequiredOpenSide Side
}

type PlaceTile struct {
	GameID     ID
	TileID     ID
	PlayerID   ID
	TurnID     ID
	FieldPlace Position
}

type MovePlayer struct {
	GameID              ID
	PlayerID            ID
	TurnID              ID
	From                Position
	To                  Position
	IgnoreMonster       bool
	IsTilePlacementMove bool
}

type PickItem struct {
	GameID          ID
	PlayerID        ID
	TurnID          ID
	Position        Position
	ItemIDToReplace *ID
}

type UseSpell struct {
	GameID         ID
	PlayerID       ID
	TurnID         ID
	SpellID        ID
	TargetPosition *Position
}

// StartBattle is internal: emitted when a player moves onto an undefeated
// monster.
type StartBattle struct {
	GameID   ID
	PlayerID ID
	TurnID   ID
	From     Position
	To       Position
}

type FinalizeBattle struct {
	BattleID              ID
	GameID                ID
	PlayerID              ID
	TurnID                ID
	SelectedConsumableIDs []ID
	PickupItem            bool
	ReplaceItemID         *ID
}

type EndTurn struct {
	GameID   ID
	PlayerID ID
	TurnID   ID
}

// Internal commands dispatched between aggregates.

type StartTurn struct {
	GameID   ID
	PlayerID ID
	TurnID   ID
	Number   int
}

type NextTurn struct {
	GameID ID
}

type EndGame struct {
	GameID ID
}

type RecordTurnAction struct {
	GameID ID
	TurnID ID
	Entry  ActionEntry
}

type ReducePlayerHP struct {
	GameID   ID
	PlayerID ID
	Amount   int
}

type HealPlayer struct {
	GameID   ID
	PlayerID ID
}

// SetPlayerHP is only used by the turn-skip regeneration and the
// deterministic test seam.
type SetPlayerHP struct {
	GameID   ID
	PlayerID ID
	HP       int
}

// RelocatePlayer moves a player without movement validation: battle
// returns and teleport spells.
type RelocatePlayer struct {
	GameID       ID
	PlayerID     ID
	To           Position
	BattleReturn bool
}

type RemoveInventoryItems struct {
	GameID   ID
	PlayerID ID
	ItemIDs  []ID
}

type DrawTile struct {
	GameID ID
	TileID ID
}

type DrawItem struct {
	GameID ID
}

type MarkGuardDefeated struct {
	GameID   ID
	Position Position
}

// RemoveItemAt takes the item off the field, returning it.
type RemoveItemAt struct {
	GameID   ID
	Position Position
}

// DropItemAt puts a replaced inventory item back onto the field.
type DropItemAt struct {
	GameID   ID
	Position Position
	Item     Item
}

// ── Queries (cross-aggregate reads, dispatched like commands) ─────

// ValidateTurn checks that the game is running, the battle gate is clear,
// and (playerID, turnID) match the current turn.
type ValidateTurn struct {
	GameID   ID
	PlayerID ID
	TurnID   ID
	// AllowPendingBattle lets FinalizeBattle through while a battle awaits
	// consumable confirmation.
	AllowPendingBattle bool
}

// ItemAt returns the *Item at a position, or nil.
type ItemAt struct {
	GameID   ID
	Position Position
}

// RollDice asks the field's dice source for n rolls in [min,max].
type RollDice struct {
	GameID ID
	N      int
	Min    int
	Max    int
}

// PlayerWeaponDamage returns the summed damage of equipped weapons.
type PlayerWeaponDamage struct {
	GameID   ID
	PlayerID ID
}

// PlayerConsumables returns the player's battle-usable spells.
type PlayerConsumables struct {
	GameID   ID
	PlayerID ID
}

// PlayerPosition returns a player's current position.
type PlayerPosition struct {
	GameID   ID
	PlayerID ID
}

// PlayerState returns a player's vitals.
type PlayerState struct {
	GameID   ID
	PlayerID ID
}

// PlayerVitals is the PlayerState result.
type PlayerVitals struct {
	HP       int
	Defeated bool
}

// PlayerScore returns the summed treasure value of a player's inventory.
type PlayerScore struct {
	GameID   ID
	PlayerID ID
}

// LastBattleInfo returns the most recent resolved battle on the field.
type LastBattleInfo struct {
	GameID ID
}

// TurnActionAllowed reports whether the given action kind may legally be
// recorded next on the turn.
type TurnActionAllowed struct {
	GameID ID
	TurnID ID
	Next   ActionKind
}

// TurnHasBattle reports whether a FIGHT_MONSTER entry exists this turn.
type TurnHasBattle struct {
	GameID ID
	TurnID ID
}

// FountainAt reports whether the tile at a position heals.
type FountainAt struct {
	GameID   ID
	Position Position
}

// ── Events ────────────────────────────────────────────────────────

type GameCreated struct {
	GameID   ID
	DeckSize int
}

type DeckCreated struct {
	GameID    ID
	RoomCount int
}

type PlayerAdded struct {
	GameID     ID
	PlayerID   ID
	ExternalID string
	Username   string
	Wallet     string
	Index      int // join order, used for the starting-HP test seam
}

type GameStarted struct {
	GameID    ID
	PlayerIDs []ID
}

func (GameStarted) ExternalEvent() {}

type TurnStarted struct {
	GameID   ID
	TurnID   ID
	PlayerID ID
	Number   int
}

func (TurnStarted) ExternalEvent() {}

type TilePlaced struct {
	GameID      ID
	TileID      ID
	Position    Position
	Orientation TileOrientation
	Room        bool
	Features    []TileFeature
}

func (TilePlaced) ExternalEvent() {}

type PlayerMoved struct {
	GameID              ID
	PlayerID            ID
	From                Position
	To                  Position
	IsBattleReturn      bool
	IsTilePlacementMove bool
}

func (PlayerMoved) ExternalEvent() {}

type BattleCompleted struct {
	GameID                      ID
	BattleID                    ID
	PlayerID                    ID
	TurnID                      ID
	Result                      BattleResult
	Dice                        []int
	UsedItems                   []Item
	TotalDamage                 int
	MonsterHP                   int
	NeedsConsumableConfirmation bool
	AvailableConsumables        []Item
	From                        Position
	To                          Position
}

func (BattleCompleted) ExternalEvent() {}

type ItemAddedToInventory struct {
	GameID   ID
	PlayerID ID
	Item     Item
	Replaced *Item
}

func (ItemAddedToInventory) ExternalEvent() {}

type PlayerStunned struct {
	GameID   ID
	PlayerID ID
}

func (PlayerStunned) ExternalEvent() {}

type PlayerHealed struct {
	GameID   ID
	PlayerID ID
	HP       int
}

type TurnEnded struct {
	GameID   ID
	TurnID   ID
	PlayerID ID
}

func (TurnEnded) ExternalEvent() {}

type GameEnded struct {
	GameID   ID
	WinnerID ID
	Scores   map[ID]int
}

func (GameEnded) ExternalEvent() {}
