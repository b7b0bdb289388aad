// Package battle resolves fights in two phases: dice plus equipped weapons
// first, then an optional consumable top-up before the result is final. A
// roll that already beats the monster skips the second phase.
package battle

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/turn"
)

const Kind = "battle"

const (
	diceCount = 2
	dieMin    = 1
	dieMax    = 6
)

// Phase is the battle lifecycle state.
type Phase string

const (
	PhaseRolled    Phase = "ROLLED_WEAPONS"
	PhaseFinalized Phase = "FINALIZED"
)

type Battle struct {
	ID       domain.ID           `json:"id"`
	GameID   domain.ID           `json:"game_id"`
	PlayerID domain.ID           `json:"player_id"`
	TurnID   domain.ID           `json:"turn_id"`
	Monster  domain.Item         `json:"monster"`
	From     domain.Position     `json:"from"`
	To       domain.Position     `json:"to"`
	Dice     []int               `json:"dice"`
	Weapons  int                 `json:"weapons"`
	Used     []domain.Item       `json:"used,omitempty"`
	Total    int                 `json:"total"`
	Phase    Phase               `json:"phase"`
	Result   domain.BattleResult `json:"result,omitempty"`
}

func (b *Battle) Kind() string           { return Kind }
func (b *Battle) AggregateID() domain.ID { return b.ID }

// outcome compares the attack total against the guard's hit points.
func outcome(total, monsterHP int) domain.BattleResult {
	switch {
	case total > monsterHP:
		return domain.BattleWin
	case total == monsterHP:
		return domain.BattleDraw
	default:
		return domain.BattleLose
	}
}

func load(c *bus.Context, battleID domain.ID) (*Battle, error) {
	agg, err := c.Load(battleID, &Battle{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrBattleNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Battle), nil
}

// Register wires the battle handlers.
func Register(b *bus.Bus, log *zap.Logger) {
	bus.HandleCommand(b, func(c *bus.Context, cmd domain.StartBattle) (any, error) {
		return handleStart(c, cmd, log)
	})
	bus.HandleCommand(b, func(c *bus.Context, cmd domain.FinalizeBattle) (any, error) {
		return handleFinalize(c, cmd, log)
	})
}

func handleStart(c *bus.Context, cmd domain.StartBattle, log *zap.Logger) (any, error) {
	// Check the action log before any dice fly: a fight after a pickup is
	// illegal and has to fail here, not at the confirmation step.
	allowedAny, err := c.Dispatch(domain.TurnActionAllowed{
		GameID: cmd.GameID, TurnID: cmd.TurnID, Next: domain.ActionFightMonster,
	})
	if err != nil {
		return nil, err
	}
	if !allowedAny.(bool) {
		return nil, domain.ErrInvalidTurnAction
	}
	itemAny, err := c.Dispatch(domain.ItemAt{GameID: cmd.GameID, Position: cmd.To})
	if err != nil {
		return nil, err
	}
	monster, _ := itemAny.(*domain.Item)
	if monster == nil || !monster.Guarded() {
		return nil, domain.ErrInvalidMovement
	}

	diceAny, err := c.Dispatch(domain.RollDice{GameID: cmd.GameID, N: diceCount, Min: dieMin, Max: dieMax})
	if err != nil {
		return nil, err
	}
	dice := diceAny.([]int)
	weaponsAny, err := c.Dispatch(domain.PlayerWeaponDamage{GameID: cmd.GameID, PlayerID: cmd.PlayerID})
	if err != nil {
		return nil, err
	}
	weapons := weaponsAny.(int)

	total := weapons
	for _, d := range dice {
		total += d
	}

	bt := &Battle{
		ID:       domain.NewID(),
		GameID:   cmd.GameID,
		PlayerID: cmd.PlayerID,
		TurnID:   cmd.TurnID,
		Monster:  *monster,
		From:     cmd.From,
		To:       cmd.To,
		Dice:     dice,
		Weapons:  weapons,
		Total:    total,
		Phase:    PhaseRolled,
	}
	c.Track(bt)

	log.Debug("battle rolled",
		zap.String("game_id", cmd.GameID.String()),
		zap.String("monster", monster.Name),
		zap.Ints("dice", dice),
		zap.Int("total", total))

	if outcome(total, monster.GuardHP) == domain.BattleWin {
		// Already a win: consumables could not improve it.
		return finishBattle(c, bt, nil, false, nil)
	}

	consumablesAny, err := c.Dispatch(domain.PlayerConsumables{GameID: cmd.GameID, PlayerID: cmd.PlayerID})
	if err != nil {
		return nil, err
	}
	consumables, _ := consumablesAny.([]domain.Item)
	if len(consumables) == 0 {
		// Nothing to confirm; the roll stands.
		return finishBattle(c, bt, nil, false, nil)
	}
	preview := domain.BattleCompleted{
		GameID:                      bt.GameID,
		BattleID:                    bt.ID,
		PlayerID:                    bt.PlayerID,
		TurnID:                      bt.TurnID,
		Result:                      outcome(total, monster.GuardHP),
		Dice:                        dice,
		TotalDamage:                 total,
		MonsterHP:                   monster.GuardHP,
		NeedsConsumableConfirmation: true,
		AvailableConsumables:        consumables,
		From:                        bt.From,
		To:                          bt.To,
	}
	if err := c.Publish(preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func handleFinalize(c *bus.Context, cmd domain.FinalizeBattle, log *zap.Logger) (any, error) {
	if _, err := c.Dispatch(domain.ValidateTurn{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
		AllowPendingBattle: true,
	}); err != nil {
		return nil, err
	}
	bt, err := load(c, cmd.BattleID)
	if err != nil {
		return nil, err
	}
	if bt.Phase != PhaseRolled || bt.PlayerID != cmd.PlayerID || bt.TurnID != cmd.TurnID {
		return nil, domain.ErrBattleNotPending
	}

	var selected []domain.Item
	if len(cmd.SelectedConsumableIDs) > 0 {
		consumablesAny, err := c.Dispatch(domain.PlayerConsumables{GameID: cmd.GameID, PlayerID: cmd.PlayerID})
		if err != nil {
			return nil, err
		}
		consumables, _ := consumablesAny.([]domain.Item)
		byID := make(map[domain.ID]domain.Item, len(consumables))
		for _, it := range consumables {
			byID[it.ID] = it
		}
		ids := make([]domain.ID, 0, len(cmd.SelectedConsumableIDs))
		for _, id := range cmd.SelectedConsumableIDs {
			it, ok := byID[id]
			if !ok {
				return nil, domain.ErrInvalidTurnAction
			}
			selected = append(selected, it)
			ids = append(ids, id)
		}
		if _, err := c.Dispatch(domain.RemoveInventoryItems{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, ItemIDs: ids,
		}); err != nil {
			return nil, err
		}
		for _, it := range selected {
			bt.Total += it.Damage()
		}
	}

	log.Debug("battle finalized",
		zap.String("game_id", cmd.GameID.String()),
		zap.Int("total", bt.Total),
		zap.Int("consumables", len(selected)))

	return finishBattle(c, bt, selected, cmd.PickupItem, cmd.ReplaceItemID)
}

// finishBattle publishes the final result and runs its consequences: the log
// entry, then win loot or the priced retreat, then the turn close.
func finishBattle(c *bus.Context, bt *Battle, used []domain.Item, pickup bool, replaceID *domain.ID) (any, error) {
	bt.Phase = PhaseFinalized
	bt.Used = used
	bt.Result = outcome(bt.Total, bt.Monster.GuardHP)

	final := domain.BattleCompleted{
		GameID:      bt.GameID,
		BattleID:    bt.ID,
		PlayerID:    bt.PlayerID,
		TurnID:      bt.TurnID,
		Result:      bt.Result,
		Dice:        bt.Dice,
		UsedItems:   used,
		TotalDamage: bt.Total,
		MonsterHP:   bt.Monster.GuardHP,
		From:        bt.From,
		To:          bt.To,
	}
	if err := c.Publish(final); err != nil {
		return nil, err
	}

	entry, err := turn.BattleEntry(domain.BattleExtra{
		Dice:      bt.Dice,
		UsedItems: used,
		Result:    bt.Result,
		From:      bt.From,
		To:        bt.To,
	}, c.Now())
	if err != nil {
		return nil, err
	}
	if _, err := c.Dispatch(domain.RecordTurnAction{
		GameID: bt.GameID, TurnID: bt.TurnID, Entry: entry,
	}); err != nil {
		return nil, err
	}

	switch bt.Result {
	case domain.BattleWin:
		if _, err := c.Dispatch(domain.MarkGuardDefeated{GameID: bt.GameID, Position: bt.To}); err != nil {
			return nil, err
		}
		if pickup {
			if _, err := c.Dispatch(domain.PickItem{
				GameID: bt.GameID, PlayerID: bt.PlayerID, TurnID: bt.TurnID,
				Position: bt.To, ItemIDToReplace: replaceID,
			}); err != nil {
				return nil, err
			}
			if _, err := closeTurn(c, bt); err != nil {
				return nil, err
			}
		}
	case domain.BattleDraw:
		if _, err := retreat(c, bt, false); err != nil {
			return nil, err
		}
	case domain.BattleLose:
		if _, err := retreat(c, bt, true); err != nil {
			return nil, err
		}
	}
	return &final, nil
}

// retreat sends the hero back where they came from and closes the turn; a
// loss costs a hit point first, so a fountain at the return square heals a
// wounded hero.
func retreat(c *bus.Context, bt *Battle, wound bool) (any, error) {
	if wound {
		if _, err := c.Dispatch(domain.ReducePlayerHP{
			GameID: bt.GameID, PlayerID: bt.PlayerID, Amount: 1,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := c.Dispatch(domain.RelocatePlayer{
		GameID: bt.GameID, PlayerID: bt.PlayerID, To: bt.From, BattleReturn: true,
	}); err != nil {
		return nil, err
	}
	return closeTurn(c, bt)
}

// closeTurn records the forced END_TURN a resolved battle imposes.
func closeTurn(c *bus.Context, bt *Battle) (any, error) {
	return c.Dispatch(domain.RecordTurnAction{
		GameID: bt.GameID, TurnID: bt.TurnID,
		Entry: domain.ActionEntry{Kind: domain.ActionEndTurn},
	})
}
