package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrTradingHalted      = errors.New("trading halted")
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrRiskRejected       = errors.New("risk check rejected")
)
