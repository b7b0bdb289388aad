package player

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dungeonhold/server/internal/domain"
)

func item(t domain.ItemType, tv int) domain.Item {
	return domain.Item{ID: domain.NewID(), Type: t, TreasureValue: tv}
}

func TestWeaponDamageSumsEquipped(t *testing.T) {
	p := &Player{Inventory: []domain.Item{
		item(domain.ItemSword, 0),
		item(domain.ItemDagger, 0),
		item(domain.ItemKey, 0),
	}}
	require.Equal(t, 3, p.WeaponDamage())
}

func TestConsumablesAreSpellsOnly(t *testing.T) {
	fireball := item(domain.ItemFireball, 0)
	teleport := item(domain.ItemTeleport, 0)
	p := &Player{Inventory: []domain.Item{
		item(domain.ItemAxe, 0), fireball, teleport,
	}}
	got := p.Consumables()
	require.Len(t, got, 2)
	require.Equal(t, fireball.ID, got[0].ID)
	require.Equal(t, teleport.ID, got[1].ID)
}

func TestScoreSumsTreasure(t *testing.T) {
	p := &Player{Inventory: []domain.Item{
		item(domain.ItemChest, 2),
		item(domain.ItemChest, 2),
		item(domain.ItemRubyChest, 3),
		item(domain.ItemSword, 0),
	}}
	require.Equal(t, 7, p.Score())
}

func TestRemoveOneKey(t *testing.T) {
	p := &Player{Inventory: []domain.Item{
		item(domain.ItemSword, 0),
		item(domain.ItemKey, 0),
	}}
	require.True(t, p.removeOneKey())
	require.Len(t, p.Inventory, 1)
	require.False(t, p.removeOneKey())
}

func TestCategoryItems(t *testing.T) {
	p := &Player{Inventory: []domain.Item{
		item(domain.ItemSword, 0),
		item(domain.ItemAxe, 0),
		item(domain.ItemFireball, 0),
	}}
	require.Len(t, p.categoryItems(domain.CategoryWeapon), 2)
	require.Len(t, p.categoryItems(domain.CategorySpell), 1)
	require.Empty(t, p.categoryItems(domain.CategoryKey))
}
