// Package player owns one hero: hit points, stun state and the capped
// inventory. Weapons add passive battle damage; spells are consumed on use.
package player

import (
	"go.uber.org/zap"

	"github.com/dungeonhold/server/internal/core/bus"
	"github.com/dungeonhold/server/internal/domain"
	"github.com/dungeonhold/server/internal/rng"
)

const Kind = "player"

type Player struct {
	ID         domain.ID     `json:"id"`
	GameID     domain.ID     `json:"game_id"`
	ExternalID string        `json:"external_id,omitempty"`
	Username   string        `json:"username"`
	Wallet     string        `json:"wallet,omitempty"`
	HP         int           `json:"hp"`
	Defeated   bool          `json:"defeated"`
	Inventory  []domain.Item `json:"inventory"`
}

func (p *Player) Kind() string           { return Kind }
func (p *Player) AggregateID() domain.ID { return p.ID }

// WeaponDamage is the passive bonus every battle roll gets.
func (p *Player) WeaponDamage() int {
	total := 0
	for _, it := range p.Inventory {
		if it.Category() == domain.CategoryWeapon {
			total += it.Damage()
		}
	}
	return total
}

// Consumables are the spells usable inside a battle.
func (p *Player) Consumables() []domain.Item {
	var out []domain.Item
	for _, it := range p.Inventory {
		if it.Category() == domain.CategorySpell {
			out = append(out, it)
		}
	}
	return out
}

// Score is the summed treasure value of everything carried.
func (p *Player) Score() int {
	total := 0
	for _, it := range p.Inventory {
		total += it.TreasureValue
	}
	return total
}

func (p *Player) categoryItems(cat domain.ItemCategory) []domain.Item {
	var out []domain.Item
	for _, it := range p.Inventory {
		if it.Category() == cat {
			out = append(out, it)
		}
	}
	return out
}

func (p *Player) item(id domain.ID) (int, bool) {
	for i, it := range p.Inventory {
		if it.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (p *Player) removeAt(i int) domain.Item {
	it := p.Inventory[i]
	p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
	return it
}

// removeOneKey consumes a key for a chest pickup.
func (p *Player) removeOneKey() bool {
	for i, it := range p.Inventory {
		if it.Type == domain.ItemKey {
			p.removeAt(i)
			return true
		}
	}
	return false
}

func Load(c *bus.Context, playerID domain.ID) (*Player, error) {
	agg, err := c.Load(playerID, &Player{})
	if err == bus.ErrNotFound {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return agg.(*Player), nil
}

// Register wires the player handlers.
func Register(b *bus.Bus, rnd *rng.Service, log *zap.Logger) {
	bus.SubscribeEvent(b, func(c *bus.Context, e domain.PlayerAdded) error {
		hp := domain.MaxHP
		if ov, ok := rnd.Overrides(e.GameID); ok && e.Index < len(ov.StartingHP) {
			hp = ov.StartingHP[e.Index]
		}
		c.Track(&Player{
			ID:         e.PlayerID,
			GameID:     e.GameID,
			ExternalID: e.ExternalID,
			Username:   e.Username,
			Wallet:     e.Wallet,
			HP:         hp,
			Defeated:   hp == 0,
		})
		return nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.PickItem) (any, error) {
		return handlePickItem(c, cmd)
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.UseSpell) (any, error) {
		return handleUseSpell(c, cmd)
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.ReducePlayerHP) (any, error) {
		p, err := Load(c, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		p.HP -= cmd.Amount
		if p.HP <= 0 {
			p.HP = 0
			p.Defeated = true
			if err := c.Publish(domain.PlayerStunned{GameID: p.GameID, PlayerID: p.ID}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.HealPlayer) (any, error) {
		p, err := Load(c, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		p.HP = domain.MaxHP
		p.Defeated = false
		return nil, c.Publish(domain.PlayerHealed{GameID: p.GameID, PlayerID: p.ID, HP: p.HP})
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.SetPlayerHP) (any, error) {
		p, err := Load(c, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		p.HP = cmd.HP
		p.Defeated = p.HP <= 0
		return nil, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, cmd domain.RemoveInventoryItems) (any, error) {
		p, err := Load(c, cmd.PlayerID)
		if err != nil {
			return nil, err
		}
		for _, id := range cmd.ItemIDs {
			i, ok := p.item(id)
			if !ok {
				return nil, domain.ErrInvalidTurnAction
			}
			p.removeAt(i)
		}
		return nil, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.PlayerWeaponDamage) (any, error) {
		p, err := Load(c, q.PlayerID)
		if err != nil {
			return nil, err
		}
		return p.WeaponDamage(), nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.PlayerConsumables) (any, error) {
		p, err := Load(c, q.PlayerID)
		if err != nil {
			return nil, err
		}
		return p.Consumables(), nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.PlayerState) (any, error) {
		p, err := Load(c, q.PlayerID)
		if err != nil {
			return nil, err
		}
		return domain.PlayerVitals{HP: p.HP, Defeated: p.Defeated}, nil
	})

	bus.HandleCommand(b, func(c *bus.Context, q domain.PlayerScore) (any, error) {
		p, err := Load(c, q.PlayerID)
		if err != nil {
			return nil, err
		}
		return p.Score(), nil
	})
}

// PickResult is what a successful pickup returns.
type PickResult struct {
	Item     domain.Item
	Replaced *domain.Item
}

func handlePickItem(c *bus.Context, cmd domain.PickItem) (any, error) {
	if _, err := c.Dispatch(domain.ValidateTurn{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
	}); err != nil {
		return nil, err
	}
	posAny, err := c.Dispatch(domain.PlayerPosition{GameID: cmd.GameID, PlayerID: cmd.PlayerID})
	if err != nil {
		return nil, err
	}
	if posAny.(domain.Position) != cmd.Position {
		return nil, domain.ErrInvalidTurnAction
	}
	itemAny, err := c.Dispatch(domain.ItemAt{GameID: cmd.GameID, Position: cmd.Position})
	if err != nil {
		return nil, err
	}
	onField, _ := itemAny.(*domain.Item)
	if onField == nil || onField.Guarded() {
		return nil, domain.ErrInvalidTurnAction
	}

	p, err := Load(c, cmd.PlayerID)
	if err != nil {
		return nil, err
	}
	candidate := *onField
	if candidate.NeedsKey() && len(p.categoryItems(domain.CategoryKey)) == 0 {
		return nil, &domain.MissingKeyError{ChestType: candidate.Type}
	}

	var replaced *domain.Item
	cat := candidate.Category()
	if limit := domain.CategoryCap(cat); limit >= 0 {
		held := p.categoryItems(cat)
		if len(held) >= limit {
			if cmd.ItemIDToReplace == nil {
				return nil, &domain.InventoryFullError{
					Category: cat, Cap: limit, Items: held, Candidate: candidate,
				}
			}
			i, ok := p.item(*cmd.ItemIDToReplace)
			if !ok || p.Inventory[i].Category() != cat {
				return nil, domain.ErrInvalidTurnAction
			}
			dropped := p.removeAt(i)
			replaced = &dropped
		}
	}

	if candidate.NeedsKey() && !p.removeOneKey() {
		return nil, &domain.MissingKeyError{ChestType: candidate.Type}
	}
	// The pickup leaves the field before the replacement lands on its square.
	if _, err := c.Dispatch(domain.RemoveItemAt{GameID: cmd.GameID, Position: cmd.Position}); err != nil {
		return nil, err
	}
	if replaced != nil {
		if _, err := c.Dispatch(domain.DropItemAt{
			GameID: cmd.GameID, Position: cmd.Position, Item: *replaced,
		}); err != nil {
			return nil, err
		}
	}
	candidate.GuardDefeated = true
	p.Inventory = append(p.Inventory, candidate)

	if _, err := c.Dispatch(domain.RecordTurnAction{
		GameID: cmd.GameID, TurnID: cmd.TurnID,
		Entry: domain.ActionEntry{Kind: domain.ActionPickItem, At: c.Now()},
	}); err != nil {
		return nil, err
	}
	if err := c.Publish(domain.ItemAddedToInventory{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID, Item: candidate, Replaced: replaced,
	}); err != nil {
		return nil, err
	}
	return PickResult{Item: candidate, Replaced: replaced}, nil
}

func handleUseSpell(c *bus.Context, cmd domain.UseSpell) (any, error) {
	if _, err := c.Dispatch(domain.ValidateTurn{
		GameID: cmd.GameID, PlayerID: cmd.PlayerID, TurnID: cmd.TurnID,
	}); err != nil {
		return nil, err
	}
	p, err := Load(c, cmd.PlayerID)
	if err != nil {
		return nil, err
	}
	i, ok := p.item(cmd.SpellID)
	if !ok || p.Inventory[i].Category() != domain.CategorySpell {
		return nil, domain.ErrInvalidTurnAction
	}
	spell := p.Inventory[i]
	switch spell.Type {
	case domain.ItemTeleport:
		if cmd.TargetPosition == nil {
			return nil, domain.ErrInvalidMovement
		}
		fountainAny, err := c.Dispatch(domain.FountainAt{GameID: cmd.GameID, Position: *cmd.TargetPosition})
		if err != nil {
			return nil, err
		}
		if !fountainAny.(bool) {
			return nil, domain.ErrInvalidMovement
		}
		p.removeAt(i)
		if _, err := c.Dispatch(domain.RelocatePlayer{
			GameID: cmd.GameID, PlayerID: cmd.PlayerID, To: *cmd.TargetPosition,
		}); err != nil {
			return nil, err
		}
		if _, err := c.Dispatch(domain.RecordTurnAction{
			GameID: cmd.GameID, TurnID: cmd.TurnID,
			Entry: domain.ActionEntry{Kind: domain.ActionTeleportSpell, At: c.Now()},
		}); err != nil {
			return nil, err
		}
		return spell, nil
	default:
		// Fireballs are battle consumables, selected in FinalizeBattle.
		return nil, domain.ErrInvalidTurnAction
	}
}
