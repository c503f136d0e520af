package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mroshb/shop_economy/internal/models"
	apperrors "github.com/mroshb/shop_economy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var fastPolicy = RetryPolicy{Attempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantTransient  bool
		wantRolledBack bool
	}{
		{name: "Serialization failure", err: &pgconn.PgError{Code: "40001"}, wantTransient: true, wantRolledBack: true},
		{name: "Deadlock wrapped", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), wantTransient: true, wantRolledBack: true},
		{name: "Connection exception", err: &pgconn.PgError{Code: "08006"}, wantTransient: true, wantRolledBack: false},
		{name: "Unique violation", err: &pgconn.PgError{Code: "23505"}, wantTransient: false},
		{name: "Bad connection", err: driver.ErrBadConn, wantTransient: true, wantRolledBack: false},
		{name: "Business error", err: apperrors.ErrInsufficientCoins, wantTransient: false},
		{name: "Plain error", err: errors.New("boom"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transient, rolledBack := Classify(tt.err)
			assert.Equal(t, tt.wantTransient, transient)
			if tt.wantTransient {
				assert.Equal(t, tt.wantRolledBack, rolledBack)
			}
		})
	}
}

func TestWithRetry_RetriesRolledBackFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, false, "buy", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_Exhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, true, "claim", func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.CodeOf(err))
}

func TestWithRetry_UnknownOutcome(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, false, "buy", func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	assert.Equal(t, 1, calls, "non-idempotent write with unknown outcome must not be repeated")
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.CodeOf(err))

	calls = 0
	err = WithRetry(context.Background(), fastPolicy, true, "report", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_BusinessErrorsPassThrough(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, true, "buy", func(ctx context.Context) error {
		calls++
		return apperrors.New(apperrors.ErrCodeDailyLimitExceeded, "limit")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, apperrors.ErrDailyLimitExceeded)

	err = WithRetry(context.Background(), fastPolicy, true, "buy", func(ctx context.Context) error {
		return errors.New("syntax error")
	})
	assert.Equal(t, apperrors.ErrCodeInternalError, apperrors.CodeOf(err))
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{Attempts: 5, MinBackoff: time.Second, MaxBackoff: time.Second}
	err := WithRetry(ctx, policy, true, "claim", func(ctx context.Context) error {
		return &pgconn.PgError{Code: "40001"}
	})
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffBounds(t *testing.T) {
	p := RetryPolicy{MinBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond, Factor: 2}

	assert.Equal(t, 10*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 40*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 40*time.Millisecond, p.Backoff(10))

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
}

func openSQLite(t *testing.T) *gorm.DB {
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
	return db
}

func TestAutoMigrateAndSeed(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db), "migrations must be re-runnable")

	require.NoError(t, SeedCatalog(db))
	require.NoError(t, SeedCatalog(db))

	var count int64
	require.NoError(t, db.Model(&models.Item{}).Count(&count).Error)
	assert.Equal(t, int64(len(DefaultCatalog())), count)

	var potion models.Item
	require.NoError(t, db.First(&potion, "id = ?", "potion_small").Error)
	assert.Equal(t, models.UnlimitedStock, potion.CurrentStock)

	var plan models.Item
	require.NoError(t, db.First(&plan, "id = ?", "weekly_membership").Error)
	assert.False(t, plan.CanSell, "membership plans are not sellable")
}

func TestOneActiveMembershipIndex(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))

	first := models.Membership{UserID: "u1", PlanID: "weekly_membership", StartDate: "2024-01-01", EndDate: "2024-01-08", DailyRewardCoins: 100, IsActive: true}
	require.NoError(t, db.Create(&first).Error)

	second := first
	second.ID = 0
	err := db.Create(&second).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	second.IsActive = false
	require.NoError(t, db.Create(&second).Error, "inactive history rows are unrestricted")
}

func TestPromoteBootstrapAdmins(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, db.Create(&models.User{ID: "42", Status: models.UserStatusActive, Coins: 10}).Error)
	require.NoError(t, db.Create(&models.User{ID: "43", Status: models.UserStatusActive, Coins: 10}).Error)

	n, err := PromoteBootstrapAdmins(db, []string{"42", "999"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = PromoteBootstrapAdmins(db, []string{"42"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	var u models.User
	require.NoError(t, db.First(&u, "id = ?", "43").Error)
	assert.False(t, u.IsAdmin)
}
