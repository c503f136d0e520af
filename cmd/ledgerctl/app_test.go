package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedCatalog(db))

	require.NoError(t, db.Create(&models.User{ID: "42", Coins: 1000, Status: models.UserStatusActive}).Error)

	out := &bytes.Buffer{}
	env := services.Env{
		DB:       db,
		Settings: settings.NewResolver(settings.NewMapSource(nil)),
		Clock:    clock.NewFixed(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Retry:    database.RetryPolicy{Attempts: 2, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
	return newApp(env, out), out
}

var admin = services.Actor{UserID: "1", IsAdmin: true}

func TestRunAdjustAuditStats(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, admin, []string{"adjust", "42", "1500", "support", "refund"}))
	assert.Contains(t, out.String(), "42: 1000 -> 1500 (+500)")

	out.Reset()
	require.NoError(t, a.run(ctx, admin, []string{"audit", "42"}))
	assert.Contains(t, out.String(), "user 42: 1 entries, balance 1500")
	assert.Contains(t, out.String(), "ledger consistent")

	out.Reset()
	require.NoError(t, a.run(ctx, admin, []string{"stats"}))
	assert.Contains(t, out.String(), "users: 1 total")
	assert.Contains(t, out.String(), "entries today: 1")
}

func TestRunExport(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.run(ctx, admin, []string{"adjust", "42", "10"}))

	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	require.NoError(t, a.run(ctx, admin, []string{"export", "-user", "42", "-out", path}))
	assert.Contains(t, out.String(), "wrote 1 entries")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(services.SheetLedger)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRunRejections(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
		code string
	}{
		{name: "Unknown command", args: []string{"drop"}, code: errors.ErrCodeValidation},
		{name: "Adjust missing balance", args: []string{"adjust", "42"}, code: errors.ErrCodeValidation},
		{name: "Adjust bad balance", args: []string{"adjust", "42", "lots"}, code: errors.ErrCodeValidation},
		{name: "Extend without membership", args: []string{"extend", "42", "3"}, code: errors.ErrCodeNoActiveMembership},
		{name: "Cancel unknown user", args: []string{"cancel"}, code: errors.ErrCodeValidation},
		{name: "Export without output", args: []string{"export"}, code: errors.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.run(ctx, admin, tt.args)
			assert.True(t, errors.IsCode(err, tt.code), "got %v, want %s", err, tt.code)
		})
	}
}

func TestParseExportFlags(t *testing.T) {
	filter, path, err := parseExportFlags([]string{"-user", "42", "-type", "buy", "-from", "2024-03-01", "-to", "2024-03-10", "-out", "x.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "x.xlsx", path)
	assert.Equal(t, "42", filter.UserID)
	assert.Equal(t, models.EntryTypeBuy, filter.Type)
	assert.Equal(t, clock.Date("2024-03-01"), filter.From)
	assert.Equal(t, clock.Date("2024-03-10"), filter.To)

	bad := [][]string{
		{"-out", "x.xlsx", "-type", "gift"},
		{"-out", "x.xlsx", "-from", "March"},
		{"-out", "x.xlsx", "-from", "2024-03-10", "-to", "2024-03-01"},
		{"-bogus"},
	}
	for _, args := range bad {
		_, _, err := parseExportFlags(args)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "%v: %v", args, err)
	}
}
