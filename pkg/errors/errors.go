package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retriable reports whether the caller may safely repeat the whole operation.
func (e *AppError) Retriable() bool {
	return e.Code == ErrCodeServiceUnavailable
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeInternalError.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// As is errors.As, so callers need not import both packages.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsBusiness reports whether err is an expected rule rejection rather than a fault.
func IsBusiness(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInsufficientStock, ErrCodeInsufficientCoins, ErrCodeQuantityExceedsLimit,
		ErrCodeDailyLimitExceeded, ErrCodeItemUnavailable, ErrCodeItemNotSellable,
		ErrCodeInsufficientHoldings, ErrCodeNoActiveMembership, ErrCodeNoValidMembership,
		ErrCodeAccountDisabled:
		return true
	}
	return false
}

// Common error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// Ledger business codes
const (
	ErrCodeInsufficientStock    = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientCoins    = "INSUFFICIENT_COINS"
	ErrCodeQuantityExceedsLimit = "QUANTITY_EXCEEDS_LIMIT"
	ErrCodeDailyLimitExceeded   = "DAILY_LIMIT_EXCEEDED"
	ErrCodeItemUnavailable      = "ITEM_UNAVAILABLE"
	ErrCodeItemNotSellable      = "ITEM_NOT_SELLABLE"
	ErrCodeInsufficientHoldings = "INSUFFICIENT_HOLDINGS"
	ErrCodeNoActiveMembership   = "NO_ACTIVE_MEMBERSHIP"
	ErrCodeNoValidMembership    = "NO_VALID_MEMBERSHIP"
	ErrCodeAccountDisabled      = "ACCOUNT_DISABLED"
)

const (
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
)

// Sentinels for errors.Is; only the code is compared.
var (
	ErrInsufficientStock    = New(ErrCodeInsufficientStock, "insufficient stock")
	ErrInsufficientCoins    = New(ErrCodeInsufficientCoins, "insufficient coins")
	ErrQuantityExceedsLimit = New(ErrCodeQuantityExceedsLimit, "quantity exceeds limit")
	ErrDailyLimitExceeded   = New(ErrCodeDailyLimitExceeded, "daily limit exceeded")
	ErrItemUnavailable      = New(ErrCodeItemUnavailable, "item unavailable")
	ErrItemNotSellable      = New(ErrCodeItemNotSellable, "item not sellable")
	ErrInsufficientHoldings = New(ErrCodeInsufficientHoldings, "insufficient holdings")
	ErrNoActiveMembership   = New(ErrCodeNoActiveMembership, "no active membership")
	ErrNoValidMembership    = New(ErrCodeNoValidMembership, "no valid membership")
	ErrServiceUnavailable   = New(ErrCodeServiceUnavailable, "service unavailable")
)
