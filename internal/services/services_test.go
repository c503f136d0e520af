package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	clock    *clock.Fixed
	source   *settings.MapSource
	economy  *EconomyService
	members  *MembershipService
	users    *UserService
	catalog  *CatalogService
	reports  *ReportService
	audit    *AuditService
	userRepo *repositories.UserRepository
}

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	source := settings.NewMapSource(nil)
	env := Env{
		DB:       db,
		Settings: settings.NewResolver(source),
		Clock:    clock.NewFixed(testNow),
		Retry:    database.RetryPolicy{Attempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
	return &fixture{
		ctx:      context.Background(),
		db:       db,
		clock:    env.Clock.(*clock.Fixed),
		source:   source,
		economy:  NewEconomyService(env),
		members:  NewMembershipService(env),
		users:    NewUserService(env),
		catalog:  NewCatalogService(env),
		reports:  NewReportService(env),
		audit:    NewAuditService(env),
		userRepo: repositories.NewUserRepository(db),
	}
}

func (f *fixture) today() clock.Date {
	return f.clock.Today()
}

func (f *fixture) createUser(t *testing.T, id string, coins int64) {
	t.Helper()
	require.NoError(t, f.userRepo.CreateUser(f.ctx, &models.User{
		ID:     id,
		Coins:  coins,
		Status: models.UserStatusActive,
	}))
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	u, err := f.userRepo.GetUserByID(f.ctx, id)
	require.NoError(t, err)
	return u.Coins
}

func (f *fixture) item(t *testing.T, id string) *models.Item {
	t.Helper()
	item, err := repositories.NewItemRepository(f.db).GetItemByID(f.ctx, id)
	require.NoError(t, err)
	return item
}

func (f *fixture) holding(t *testing.T, userID, itemID string) int64 {
	t.Helper()
	q, err := repositories.NewHoldingRepository(f.db).GetQuantity(f.ctx, userID, itemID)
	require.NoError(t, err)
	return q
}

func (f *fixture) entries(t *testing.T, userID string) []models.LedgerEntry {
	t.Helper()
	chain, err := repositories.NewLedgerRepository(f.db).Chain(f.ctx, userID)
	require.NoError(t, err)
	return chain
}

func (f *fixture) setStock(t *testing.T, itemID string, stock int64) {
	t.Helper()
	require.NoError(t, repositories.NewItemRepository(f.db).SetStock(f.ctx, itemID, stock))
}

var admin = Actor{UserID: "admin", IsAdmin: true}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errors.CodeOf(err), "error: %v", err)
}

// afterNextQuery runs fn once inside the caller's transaction, right after the
// next query on table, so the caller continues from a stale snapshot.
func (f *fixture) afterNextQuery(t *testing.T, table string, fn func(tx *gorm.DB)) {
	t.Helper()
	var once sync.Once
	name := "test:after_query_" + uuid.NewString()
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register(name, func(db *gorm.DB) {
		if db.Error != nil || db.Statement.Table != table {
			return
		}
		once.Do(func() { fn(db.Session(&gorm.Session{NewDB: true})) })
	}))
}
