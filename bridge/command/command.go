/*
Package command decodes the payloads of remote outcome proofs into bridge
commands.

DAO command payload is a command code byte followed by the command specific
parameters, unlock payload has no code byte. Integers are little endian,
addresses are 20 raw bytes. The payload must be consumed exactly.
*/
package command

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

// Code is the first byte of the DAO command payload.
type Code uint8

const (
	// locker
	CodeSetReserveRatio         Code = 1
	CodeSetMinHarvest           Code = 2
	CodeDepositToStrategy       Code = 3
	CodeDepositAllToStrategy    Code = 4
	CodeWithdrawFromStrategy    Code = 5
	CodeWithdrawAllFromStrategy Code = 6
	CodeSetLockerRewardsRatio   Code = 7
	CodeHarvest                 Code = 8
	CodeHarvestAll              Code = 9

	// relay registry
	CodeSetRegistryRewardsRatio Code = 10
	CodeSetFreezingPeriod       Code = 11
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyPayload     = errors.New("empty payload")
)

type (
	// Command is one of the types declared in this package, the set is closed.
	Command interface {
		Code() Code
		encode(w *writer)
	}

	SetReserveRatio struct{ Ratio uint64 }
	SetMinHarvest   struct{ Amount *uint256.Int }

	DepositToStrategy struct {
		Strategy types.Address
		Amount   *uint256.Int
	}
	DepositAllToStrategy struct{ Strategy types.Address }

	WithdrawFromStrategy struct {
		Strategy types.Address
		Amount   *uint256.Int
	}
	WithdrawAllFromStrategy struct{ Strategy types.Address }

	SetLockerRewardsRatio struct{ Ratio uint64 }
	Harvest               struct{ Strategy types.Address }
	HarvestAll            struct{}

	SetRegistryRewardsRatio struct{ Ratio uint64 }
	SetFreezingPeriod       struct{ Period uint64 }

	// Unlock is the payload of the asset unlock proof.
	Unlock struct {
		Amount    *uint256.Int
		Recipient types.Address
	}
)

func (SetReserveRatio) Code() Code         { return CodeSetReserveRatio }
func (SetMinHarvest) Code() Code           { return CodeSetMinHarvest }
func (DepositToStrategy) Code() Code       { return CodeDepositToStrategy }
func (DepositAllToStrategy) Code() Code    { return CodeDepositAllToStrategy }
func (WithdrawFromStrategy) Code() Code    { return CodeWithdrawFromStrategy }
func (WithdrawAllFromStrategy) Code() Code { return CodeWithdrawAllFromStrategy }
func (SetLockerRewardsRatio) Code() Code   { return CodeSetLockerRewardsRatio }
func (Harvest) Code() Code                 { return CodeHarvest }
func (HarvestAll) Code() Code              { return CodeHarvestAll }
func (SetRegistryRewardsRatio) Code() Code { return CodeSetRegistryRewardsRatio }
func (SetFreezingPeriod) Code() Code       { return CodeSetFreezingPeriod }

func (c Code) String() string {
	switch c {
	case CodeSetReserveRatio:
		return "setReserveRatio"
	case CodeSetMinHarvest:
		return "setMinHarvest"
	case CodeDepositToStrategy:
		return "depositToStrategy"
	case CodeDepositAllToStrategy:
		return "depositAllToStrategy"
	case CodeWithdrawFromStrategy:
		return "withdrawFromStrategy"
	case CodeWithdrawAllFromStrategy:
		return "withdrawAllFromStrategy"
	case CodeSetLockerRewardsRatio:
		return "setRewardsRatio(locker)"
	case CodeHarvest:
		return "harvest"
	case CodeHarvestAll:
		return "harvestAll"
	case CodeSetRegistryRewardsRatio:
		return "setRewardsRatio(registry)"
	case CodeSetFreezingPeriod:
		return "setFreezingPeriod"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

/*
Decode decodes DAO command payload. Fails with ErrUnknownCommand when the
code is not one of the known commands.
*/
func Decode(payload []byte) (Command, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	r := &reader{buf: payload[1:]}
	var cmd Command
	switch code := Code(payload[0]); code {
	case CodeSetReserveRatio:
		cmd = SetReserveRatio{Ratio: r.u64()}
	case CodeSetMinHarvest:
		cmd = SetMinHarvest{Amount: r.u128()}
	case CodeDepositToStrategy:
		cmd = DepositToStrategy{Strategy: r.address(), Amount: r.u128()}
	case CodeDepositAllToStrategy:
		cmd = DepositAllToStrategy{Strategy: r.address()}
	case CodeWithdrawFromStrategy:
		cmd = WithdrawFromStrategy{Strategy: r.address(), Amount: r.u128()}
	case CodeWithdrawAllFromStrategy:
		cmd = WithdrawAllFromStrategy{Strategy: r.address()}
	case CodeSetLockerRewardsRatio:
		cmd = SetLockerRewardsRatio{Ratio: r.u64()}
	case CodeHarvest:
		cmd = Harvest{Strategy: r.address()}
	case CodeHarvestAll:
		cmd = HarvestAll{}
	case CodeSetRegistryRewardsRatio:
		cmd = SetRegistryRewardsRatio{Ratio: r.u64()}
	case CodeSetFreezingPeriod:
		cmd = SetFreezingPeriod{Period: r.u64()}
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnknownCommand, uint8(code))
	}
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("decoding %s command: %w", cmd.Code(), err)
	}
	return cmd, nil
}

// Encode serializes the command into DAO command payload.
func Encode(cmd Command) []byte {
	w := &writer{buf: []byte{byte(cmd.Code())}}
	cmd.encode(w)
	return w.buf
}

// DecodeUnlock decodes asset unlock payload.
func DecodeUnlock(payload []byte) (*Unlock, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	r := &reader{buf: payload}
	u := &Unlock{Amount: r.u128(), Recipient: r.address()}
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("decoding unlock: %w", err)
	}
	return u, nil
}

// Encode serializes the unlock request into payload.
func (u *Unlock) Encode() []byte {
	w := &writer{}
	w.u128(u.Amount)
	w.address(u.Recipient)
	return w.buf
}

func (c SetReserveRatio) encode(w *writer) { w.u64(c.Ratio) }
func (c SetMinHarvest) encode(w *writer)   { w.u128(c.Amount) }
func (c DepositToStrategy) encode(w *writer) {
	w.address(c.Strategy)
	w.u128(c.Amount)
}
func (c DepositAllToStrategy) encode(w *writer) { w.address(c.Strategy) }
func (c WithdrawFromStrategy) encode(w *writer) {
	w.address(c.Strategy)
	w.u128(c.Amount)
}
func (c WithdrawAllFromStrategy) encode(w *writer) { w.address(c.Strategy) }
func (c SetLockerRewardsRatio) encode(w *writer)   { w.u64(c.Ratio) }
func (c Harvest) encode(w *writer)                 { w.address(c.Strategy) }
func (HarvestAll) encode(*writer)                  {}
func (c SetRegistryRewardsRatio) encode(w *writer) { w.u64(c.Ratio) }
func (c SetFreezingPeriod) encode(w *writer)       { w.u64(c.Period) }
