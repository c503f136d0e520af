package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
)

// RetryPolicy bounds how often a failed store transaction is repeated.
type RetryPolicy struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Factor     float64
	Jitter     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		MinBackoff: 50 * time.Millisecond,
		MaxBackoff: time.Second,
		Factor:     2.0,
		Jitter:     0.2,
	}
}

// Backoff returns the wait before the given retry (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := p.MinBackoff
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	max := p.MaxBackoff
	if max < min {
		max = min
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if p.Jitter <= 0 {
		return wait
	}
	jitter := p.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// SQLSTATEs after which Postgres has already rolled the transaction back.
var rolledBackCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement_timeout)
}

// Classify reports whether err is transient, and whether the failed attempt is
// known to have left no effect behind.
func Classify(err error) (transient, rolledBack bool) {
	if err == nil {
		return false, false
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		if rolledBackCodes[pgErr.Code] {
			return true, true
		}
		// Class 08: connection exception
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return true, false
		}
		return false, false
	}

	if pgconn.SafeToRetry(err) {
		return true, true
	}
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, io.ErrUnexpectedEOF) || pgconn.Timeout(err) {
		return true, false
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true, false
	}
	return false, false
}

// WithRetry runs fn until it succeeds, fails permanently, or the policy is
// exhausted. Failures with an unknown outcome are only repeated when the
// operation is idempotent; otherwise they surface as SERVICE_UNAVAILABLE.
func WithRetry(ctx context.Context, p RetryPolicy, idempotent bool, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		transient, rolledBack := Classify(err)
		if !transient {
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) {
				return err
			}
			return errors.Wrap(err, errors.ErrCodeInternalError, op+" failed")
		}

		if !rolledBack && !idempotent {
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable,
				op+" outcome unknown, check state before repeating")
		}
		if attempt >= attempts {
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable,
				fmt.Sprintf("%s failed after %d attempts", op, attempt))
		}

		wait := p.Backoff(attempt)
		logger.Warn("Retrying store operation", "op", op, "attempt", attempt, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeServiceUnavailable, op+" cancelled")
		case <-time.After(wait):
		}
	}
}
