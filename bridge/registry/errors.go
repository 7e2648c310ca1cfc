package registry

import "errors"

var (
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrAlreadyRegistered = errors.New("relayer already registered")
	ErrNotListed         = errors.New("relayer not listed")
	ErrNotYetUnfreezable = errors.New("stake is still frozen")
	ErrWithdrawalPending = errors.New("relayer has requested withdrawal")
	ErrUnauthorized      = errors.New("caller is not the dispatcher")
	ErrAlreadyWired      = errors.New("dispatcher already set")
	ErrNotWired          = errors.New("dispatcher not set")
	ErrStateDiverged     = errors.New("registry state diverged from the ledger")
)
