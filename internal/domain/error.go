package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrPlanNotFound       = errors.New("subscription plan not found")
	ErrActivePlanExists   = errors.New("user already has an active plan")
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrCouponInvalid      = errors.New("coupon is expired, exhausted or inactive")
	ErrInvalidTransition  = errors.New("subscription is not in a state that allows this transition")
	ErrBadCallback        = errors.New("callback is missing required parameters")
	ErrNotAcceptable      = errors.New("gateway returned an unrecognized status code")
	ErrRateLimited        = errors.New("too many payment requests")
	ErrLockNotAcquired    = errors.New("could not acquire payment lock")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid query execution context")
)
