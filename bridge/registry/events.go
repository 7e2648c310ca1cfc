package registry

import (
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

type (
	ListedEvent struct {
		Relayer types.Address
		Role    Role
		Score   uint64
	}

	WithdrawRequestedEvent struct {
		Relayer  types.Address
		UnlockAt uint64
	}

	UnlistedEvent struct {
		Relayer types.Address
		Stake   *uint256.Int
	}
)
