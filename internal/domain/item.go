package domain

// ItemType is what an item turns into once picked up.
type ItemType string

const (
	ItemKey       ItemType = "KEY"
	ItemChest     ItemType = "CHEST"
	ItemRubyChest ItemType = "RUBY_CHEST"
	ItemDagger    ItemType = "DAGGER"
	ItemSword     ItemType = "SWORD"
	ItemAxe       ItemType = "AXE"
	ItemFireball  ItemType = "FIREBALL"
	ItemTeleport  ItemType = "TELEPORT"
)

// ItemCategory groups item types for inventory caps.
type ItemCategory string

const (
	CategoryKey      ItemCategory = "KEY"
	CategoryWeapon   ItemCategory = "WEAPON"
	CategorySpell    ItemCategory = "SPELL"
	CategoryTreasure ItemCategory = "TREASURE"
)

// Inventory caps per category; treasures are unbounded.
const (
	MaxKeys    = 1
	MaxWeapons = 2
	MaxSpells  = 3
)

func (t ItemType) Category() ItemCategory {
	switch t {
	case ItemKey:
		return CategoryKey
	case ItemDagger, ItemSword, ItemAxe:
		return CategoryWeapon
	case ItemFireball, ItemTeleport:
		return CategorySpell
	default:
		return CategoryTreasure
	}
}

// Damage is the flat bonus the item adds to a battle roll.
func (t ItemType) Damage() int {
	switch t {
	case ItemDagger:
		return 1
	case ItemSword:
		return 2
	case ItemAxe:
		return 3
	case ItemFireball:
		return 1
	default:
		return 0
	}
}

// CategoryCap returns the inventory cap for a category, or -1 for unbounded.
func CategoryCap(c ItemCategory) int {
	switch c {
	case CategoryKey:
		return MaxKeys
	case CategoryWeapon:
		return MaxWeapons
	case CategorySpell:
		return MaxSpells
	default:
		return -1
	}
}

// Item is a room content: the guard (if any) and the loot it yields. Loot
// with GuardHP 0 is free to pick; otherwise the guard must be defeated
// first. Only the ruby chest ends the game.
type Item struct {
	ID            ID       `json:"id"`
	Name          string   `json:"name"`
	Type          ItemType `json:"type"`
	GuardHP       int      `json:"guard_hp"`
	TreasureValue int      `json:"treasure_value"`
	GuardDefeated bool     `json:"guard_defeated"`
}

func (i Item) Category() ItemCategory { return i.Type.Category() }

func (i Item) Damage() int { return i.Type.Damage() }

func (i Item) EndsGame() bool { return i.Type == ItemRubyChest }

// Guarded reports whether an undefeated monster still protects the item.
func (i Item) Guarded() bool { return i.GuardHP > 0 && !i.GuardDefeated }

// Chest types need a key in inventory before pickup.
func (i Item) NeedsKey() bool {
	return i.Type == ItemChest || i.Type == ItemRubyChest
}
