package domain

import "fmt"

// RuleError is a rule rejection with a stable code. The transport adapter
// maps codes to status codes; the engine only guarantees that a RuleError
// never leaves partial state behind.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string { return e.Message }

// Is lets errors.Is match two rule errors by code.
func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	return ok && t.Code == e.Code
}

func ruleErr(code, msg string) *RuleError {
	return &RuleError{Code: code, Message: msg}
}

var (
	ErrGameNotFound          = ruleErr("GAME_NOT_FOUND", "game not found")
	ErrGameAlreadyFinished   = ruleErr("GAME_ALREADY_FINISHED", "game is already finished")
	ErrGameAlreadyFull       = ruleErr("GAME_ALREADY_FULL", "game already has the maximum number of players")
	ErrGameNotPreparing      = ruleErr("GAME_NOT_PREPARING", "game is not in the lobby")
	ErrNoPlayers             = ruleErr("NO_PLAYERS", "cannot start a game without players")
	ErrTurnAlreadyEnded      = ruleErr("TURN_ALREADY_ENDED", "turn has already ended")
	ErrInvalidTurnAction     = ruleErr("INVALID_TURN_ACTION", "action is not allowed at this point of the turn")
	ErrUnplacedTile          = ruleErr("UNPLACED_TILE", "a picked tile must be placed before the turn can end")
	ErrNotYourTurn           = ruleErr("NOT_YOUR_TURN", "it is not this player's turn")
	ErrInvalidMovement       = ruleErr("INVALID_MOVEMENT", "movement is not possible")
	ErrCannotMoveAfterBattle = ruleErr("CANNOT_MOVE_AFTER_BATTLE",
		"no further movement is allowed after a battle this turn")
	ErrPlayerStunnedCanOnlyMoveToMonsters = ruleErr("PLAYER_STUNNED_CAN_ONLY_MOVE_TO_MONSTERS",
		"a stunned player may only move onto an undefeated monster")
	ErrNoRotationSatisfies = ruleErr("NO_ROTATION_SATISFIES", "no rotation satisfies the request")
	ErrNoTilesLeftInDeck   = ruleErr("NO_TILES_LEFT_IN_DECK", "the deck is empty")
	ErrNoItemsLeftInBag    = ruleErr("NO_ITEMS_LEFT_IN_BAG", "the bag is empty")
	ErrBattleNotFound      = ruleErr("BATTLE_NOT_FOUND", "battle not found")
	ErrBattleNotPending    = ruleErr("BATTLE_NOT_PENDING", "battle is not awaiting confirmation")
)

// InventoryFullError carries enough context for the client to prompt for a
// replacement instead of failing blind.
type InventoryFullError struct {
	Category  ItemCategory
	Cap       int
	Items     []Item
	Candidate Item
}

func (e *InventoryFullError) Error() string {
	return fmt.Sprintf("inventory full: %s slots hold %d/%d items", e.Category, len(e.Items), e.Cap)
}

// MissingKeyError is returned when a chest is picked without a key.
type MissingKeyError struct {
	ChestType ItemType
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("a key is required to open a %s", e.ChestType)
}

// ConflictError signals an optimistic-lock failure; the command may be
// retried against fresh state.
type ConflictError struct {
	Kind string
	ID   ID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Kind, e.ID)
}
