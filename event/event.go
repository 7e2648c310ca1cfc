package event

type Type int

const (
	Locked Type = iota
	Unlocked
	DebtCreated
	DebtRepaid
	StrategyDeposit
	StrategyWithdrawal
	Harvested
	Listed
	Unlisted
	WithdrawRequested
	RelayLog
	CommandRelayed
	ParameterChanged
)

type (
	Event struct {
		EventType Type
		Content   any
	}

	// Handler receives events emitted by the bridge components. Handlers are
	// called synchronously while the emitting component holds its lock so
	// they must not call back into the component.
	Handler func(e *Event)
)

func (t Type) String() string {
	switch t {
	case Locked:
		return "Locked"
	case Unlocked:
		return "Unlocked"
	case DebtCreated:
		return "DebtCreated"
	case DebtRepaid:
		return "DebtRepaid"
	case StrategyDeposit:
		return "StrategyDeposit"
	case StrategyWithdrawal:
		return "StrategyWithdrawal"
	case Harvested:
		return "Harvested"
	case Listed:
		return "Listed"
	case Unlisted:
		return "Unlisted"
	case WithdrawRequested:
		return "WithdrawRequested"
	case RelayLog:
		return "RelayLog"
	case CommandRelayed:
		return "CommandRelayed"
	case ParameterChanged:
		return "ParameterChanged"
	default:
		return "Unknown"
	}
}

// Emit calls h with the event unless h is nil.
func (h Handler) Emit(t Type, content any) {
	if h != nil {
		h(&Event{EventType: t, Content: content})
	}
}

// Parameter is the content of the ParameterChanged event.
type Parameter struct {
	Component string
	Name      string
	Value     string
}
