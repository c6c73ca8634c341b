package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrValidation     = errors.New("invalid request")
	ErrMarketInactive = errors.New("market is not active")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrStoreFailure   = errors.New("store unavailable")
	ErrLockHeld       = errors.New("lock already held")
)
