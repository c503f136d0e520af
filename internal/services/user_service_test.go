package services

import (
	"testing"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrLogin(t *testing.T) {
	f := newFixture(t)

	user, created, err := f.users.CreateOrLogin(f.ctx, "42", "alice", "<i>Alice</i>")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(3000), user.Coins)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.False(t, user.IsAdmin)

	f.source.Set(settings.KeyDefaultCoins, "10")
	user, created, err = f.users.CreateOrLogin(f.ctx, "42", "alice_renamed", "Alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(3000), user.Coins, "returning users keep their balance")

	stored, err := f.users.GetUser(f.ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "alice_renamed", stored.Username)
	require.NotNil(t, stored.LastLoginAt)

	fresh, created, err := f.users.CreateOrLogin(f.ctx, "43", "bob", "Bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(10), fresh.Coins)
}

func TestCreateOrLogin_DisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "42", 100)
	require.NoError(t, f.userRepo.UpdateUserStatus(f.ctx, "42", models.UserStatusBanned))

	_, _, err := f.users.CreateOrLogin(f.ctx, "42", "alice", "Alice")
	assertCode(t, err, errors.ErrCodeAccountDisabled)

	_, _, err = f.users.CreateOrLogin(f.ctx, "", "nobody", "")
	assertCode(t, err, errors.ErrCodeValidation)
}

func TestActorUsesPersistedFlag(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "42", 0)
	f.createUser(t, "43", 0)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", "42").UpdateColumn("is_admin", true).Error)

	actor, err := f.users.Actor(f.ctx, "42")
	require.NoError(t, err)
	assert.True(t, actor.IsAdmin)

	actor, err = f.users.Actor(f.ctx, "43")
	require.NoError(t, err)
	assert.False(t, actor.IsAdmin)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "42", 0)

	err := f.users.UpdateStatus(f.ctx, Actor{UserID: "7"}, "42", models.UserStatusBanned)
	assertCode(t, err, errors.ErrCodeForbidden)

	err = f.users.UpdateStatus(f.ctx, admin, "42", "frozen")
	assertCode(t, err, errors.ErrCodeValidation)

	err = f.users.UpdateStatus(f.ctx, admin, "admin", models.UserStatusBanned)
	assertCode(t, err, errors.ErrCodeValidation)

	err = f.users.UpdateStatus(f.ctx, admin, "ghost", models.UserStatusBanned)
	assertCode(t, err, errors.ErrCodeNotFound)

	require.NoError(t, f.users.UpdateStatus(f.ctx, admin, "42", models.UserStatusBanned))
	_, err = f.economy.Buy(f.ctx, "42", "potion_small", 1)
	assertCode(t, err, errors.ErrCodeAccountDisabled)

	require.NoError(t, f.users.UpdateStatus(f.ctx, admin, "42", models.UserStatusActive))
}

func TestCatalogAdmin(t *testing.T) {
	f := newFixture(t)

	err := f.catalog.UpdateStock(f.ctx, Actor{UserID: "7"}, "sword_basic", 5)
	assertCode(t, err, errors.ErrCodeForbidden)

	err = f.catalog.UpdateStock(f.ctx, admin, "sword_basic", -2)
	assertCode(t, err, errors.ErrCodeValidation)

	err = f.catalog.UpdateStock(f.ctx, admin, "laser", 5)
	assertCode(t, err, errors.ErrCodeNotFound)

	require.NoError(t, f.catalog.UpdateStock(f.ctx, admin, "sword_basic", models.UnlimitedStock))
	assert.True(t, f.item(t, "sword_basic").Unlimited())

	require.NoError(t, f.catalog.UpdateStatus(f.ctx, admin, "sword_basic", false))
	items, err := f.catalog.ListActive(f.ctx)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, "sword_basic", item.ID)
	}
}

func TestCatalogUpsert(t *testing.T) {
	f := newFixture(t)

	err := f.catalog.Upsert(f.ctx, []models.Item{
		{ID: "bow", Name: "Bow", Category: "weapon", Price: 150, CurrentStock: 10, CanSell: true, IsActive: true},
		{ID: "sword_basic", Name: "Basic Sword", Category: "weapon", Price: 120, CurrentStock: 50, CanSell: false, IsActive: true},
	})
	require.NoError(t, err)

	bow := f.item(t, "bow")
	assert.Equal(t, int64(150), bow.Price)
	sword := f.item(t, "sword_basic")
	assert.Equal(t, int64(120), sword.Price)
	assert.False(t, sword.CanSell, "false overwrites on conflict")

	tests := []struct {
		name string
		item models.Item
	}{
		{name: "Bad id", item: models.Item{ID: "a b", Name: "x"}},
		{name: "No name", item: models.Item{ID: "x"}},
		{name: "Negative price", item: models.Item{ID: "x", Name: "x", Price: -1}},
		{name: "Stock below unlimited", item: models.Item{ID: "x", Name: "x", CurrentStock: -5}},
		{name: "Unknown plan", item: models.Item{ID: "gold_membership", Name: "Gold", Category: models.CategoryMembership}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.catalog.Upsert(f.ctx, []models.Item{tt.item})
			assertCode(t, err, errors.ErrCodeValidation)
		})
	}
}
