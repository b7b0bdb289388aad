package domain

import (
	"encoding/json"
	"time"
)

// ActionKind is one entry kind in a turn's action log.
type ActionKind string

const (
	ActionMove           ActionKind = "MOVE"
	ActionPickTile       ActionKind = "PICK_TILE"
	ActionRotateTile     ActionKind = "ROTATE_TILE"
	ActionPlaceTile      ActionKind = "PLACE_TILE"
	ActionPickItem       ActionKind = "PICK_ITEM"
	ActionUseSpell       ActionKind = "USE_SPELL"
	ActionTeleportSpell  ActionKind = "TELEPORT_SPELL"
	ActionHealAtFountain ActionKind = "HEAL_AT_FOUNTAIN"
	ActionFightMonster   ActionKind = "FIGHT_MONSTER"
	ActionEndTurn        ActionKind = "END_TURN"
)

// MaxActionsPerTurn is the per-turn budget of counted actions.
const MaxActionsPerTurn = 4

// Counted reports whether the action consumes one of the per-turn slots.
// Rotation and placement are bundled with the exploration move that picked
// the tile; fighting never costs a slot.
func (a ActionKind) Counted() bool {
	switch a {
	case ActionMove, ActionPickTile, ActionPickItem, ActionUseSpell,
		ActionTeleportSpell, ActionHealAtFountain:
		return true
	default:
		return false
	}
}

// EndsTurn reports whether recording the action closes the turn.
func (a ActionKind) EndsTurn() bool {
	switch a {
	case ActionHealAtFountain, ActionTeleportSpell, ActionEndTurn:
		return true
	default:
		return false
	}
}

// ActionEntry is one recorded action.
type ActionEntry struct {
	Kind   ActionKind      `json:"kind"`
	TileID *ID             `json:"tile_id,omitempty"`
	Extra  json.RawMessage `json:"extra,omitempty"`
	At     time.Time       `json:"at"`
}

// BattleExtra is the Extra payload of a FIGHT_MONSTER entry.
type BattleExtra struct {
	Dice      []int        `json:"dice"`
	UsedItems []Item       `json:"used_items,omitempty"`
	Result    BattleResult `json:"result"`
	From      Position     `json:"from"`
	To        Position     `json:"to"`
}

// BattleResult is the outcome of a resolved battle.
type BattleResult string

const (
	BattleWin  BattleResult = "WIN"
	BattleDraw BattleResult = "DRAW"
	BattleLose BattleResult = "LOSE"
)
