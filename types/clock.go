package types

import "github.com/holiman/uint256"

type (
	// Clock supplies the monotonically increasing block height of the local
	// chain. All time based gating (claim period, freezing period) is
	// evaluated against it.
	Clock interface {
		CurrentHeight() uint64
	}

	// Call describes the invoker of a state changing operation and the value
	// attached to the invocation.
	Call struct {
		From  Address
		Value *uint256.Int
	}
)
