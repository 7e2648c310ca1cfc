package locker

import (
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

type (
	LockedEvent struct {
		Sender    types.Address
		Amount    *uint256.Int
		AccountID string
	}

	// UnlockedEvent carries the amount actually paid out, the unpaid rest
	// is reported by DebtCreatedEvent.
	UnlockedEvent struct {
		Recipient types.Address
		Amount    *uint256.Int
	}

	DebtCreatedEvent struct {
		Creditor  types.Address
		Amount    *uint256.Int
		TotalDebt *uint256.Int
	}

	DebtRepaidEvent struct {
		Creditor      types.Address
		Amount        *uint256.Int
		RemainingDebt *uint256.Int
	}

	StrategyEvent struct {
		Strategy types.Address
		Amount   *uint256.Int
	}

	HarvestedEvent struct {
		Strategy types.Address
		Profit   *uint256.Int
		Rewards  *uint256.Int
	}
)
