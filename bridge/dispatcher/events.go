package dispatcher

import (
	"github.com/rainbow-dao/drn/bridge/command"
	"github.com/rainbow-dao/drn/types"
)

type (
	RelayLogEvent struct {
		Height  uint64
		Relayer types.Address
		Score   uint64
	}

	CommandRelayedEvent struct {
		ReceiptID types.ReceiptID
		Command   command.Command
	}
)
