package locker

import "errors"

var (
	ErrReserveFloorBreach    = errors.New("operation would breach the minimum reserve")
	ErrUnknownStrategy       = errors.New("unknown strategy")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrInvalidRatio          = errors.New("ratio must not exceed 10000 basis points")
	ErrExceedsInvested       = errors.New("amount exceeds value invested into strategy")
	ErrNoDebt                = errors.New("no outstanding debt")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity above the minimum reserve")
	ErrUnauthorized          = errors.New("caller is not the dispatcher")
	ErrAlreadyWired          = errors.New("dispatcher already set")
	ErrNotWired              = errors.New("dispatcher not set")
	// ErrStateDiverged marks a failure after which the locker books no
	// longer match the ledger, the operation must not be retried.
	ErrStateDiverged = errors.New("locker state diverged from the ledger")
)
