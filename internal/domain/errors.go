package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidState          = errors.New("invalid pool state")
	ErrCorruptState          = errors.New("corrupt persisted pool state")
	ErrLedgerUnavailable     = errors.New("ledger unavailable")
	ErrSlippageExceeded      = errors.New("flow amount exceeds slippage tolerance")
	ErrPositionLimitExceeded = errors.New("position limit exceeded")
	ErrMarketNotTradable     = errors.New("market is not tradable")
	ErrInvalidTransition     = errors.New("invalid market state transition")
	ErrLockHeld              = errors.New("lock already held")
)
