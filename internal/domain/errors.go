package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAmount       = errors.New("invalid trade amount")
	ErrInvalidOutcome      = errors.New("outcome does not belong to market")
	ErrOutcomeMismatch     = errors.New("position already held in a different outcome of this market")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMarketClosed        = errors.New("market is closed for trading")
	ErrMarketResolved      = errors.New("market already resolved")
	ErrPositionClosed      = errors.New("position already closed")
	ErrLockHeld            = errors.New("lock already held")
	ErrContextDone         = errors.New("context cancelled")
)
