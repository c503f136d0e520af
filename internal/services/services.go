// Package services holds the economy engines. Each mutating operation is one
// store transaction that locks the user row first, wrapped in bounded retry.
package services

import (
	"context"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/gorm"
)

// Actor is the authenticated caller of admin operations. IsAdmin comes from the
// persisted users.is_admin flag; the engines trust it and do no authentication.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) requireAdmin() error {
	if !a.IsAdmin {
		return errors.New(errors.ErrCodeForbidden, "admin rights required")
	}
	return nil
}

// Env carries what every engine needs besides its repositories.
type Env struct {
	DB       *gorm.DB
	Settings settings.Provider
	Clock    clock.Clock
	Retry    database.RetryPolicy
}

func (e Env) retry(ctx context.Context, op string, idempotent bool, fn func(ctx context.Context) error) error {
	return database.WithRetry(ctx, e.Retry, idempotent, op, fn)
}

// inTx runs fn in one transaction, repeated under the retry policy.
func (e Env) inTx(ctx context.Context, op string, idempotent bool, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return e.retry(ctx, op, idempotent, func(ctx context.Context) error {
		return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, tx)
		})
	})
}

// read runs read-only queries, which are always safe to repeat.
func (e Env) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return e.retry(ctx, op, true, fn)
}

// logRejected logs a failed operation: rule rejections at debug, faults at warn.
func logRejected(op string, err error, keysAndValues ...interface{}) {
	kv := append([]interface{}{"op", op, "code", errors.CodeOf(err), "error", err}, keysAndValues...)
	switch errors.CodeOf(err) {
	case errors.ErrCodeValidation, errors.ErrCodeNotFound, errors.ErrCodeForbidden:
		logger.Debug("Operation rejected", kv...)
	case errors.ErrCodeInvariantViolation:
		logger.Error("Ledger invariant violated", kv...)
	default:
		if errors.IsBusiness(err) {
			logger.Debug("Operation rejected", kv...)
			return
		}
		logger.Warn("Operation failed", kv...)
	}
}

func validateID(what, id string) error {
	if id == "" {
		return errors.Newf(errors.ErrCodeValidation, "%s id is required", what)
	}
	return nil
}
