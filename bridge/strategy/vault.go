/*
Package strategy contains investment strategies the asset locker can
delegate locked value to.
*/
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/keyvaluedb/memorydb"
	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

const positionPrefix = "pos/"

var ErrInsufficientBalance = errors.New("insufficient vault balance")

type (
	Bank interface {
		Transfer(from, to types.Address, amount *uint256.Int) error
	}

	/*
		Vault is a custody strategy on the host ledger. It holds the deposited
		value in its own account and accrues profit credited to it with
		AddProfit. Withdrawals are served from the profit first so harvesting
		never touches the principal.
	*/
	Vault struct {
		mu        sync.Mutex
		address   types.Address
		bank      Bank
		positions map[types.Address]*position
		db        keyvaluedb.KeyValueDB
		log       *slog.Logger
	}

	position struct {
		_         struct{} `cbor:",toarray"`
		Principal *uint256.Int
		Balance   *uint256.Int
	}
)

// NewVault creates vault owning the account address, nil db means the
// positions are kept in memory only.
func NewVault(address types.Address, bank Bank, db keyvaluedb.KeyValueDB, log *slog.Logger) (*Vault, error) {
	if db == nil {
		db = memorydb.New()
	}
	v := &Vault{
		address:   address,
		bank:      bank,
		positions: make(map[types.Address]*position),
		db:        db,
		log:       log.With(logger.Module("vault"), logger.Address(address)),
	}
	err := keyvaluedb.ForEach(db, []byte(positionPrefix), func(key []byte, it keyvaluedb.Iterator) error {
		p := &position{}
		if err := it.Value(p); err != nil {
			return fmt.Errorf("decoding position: %w", err)
		}
		v.positions[common.BytesToAddress(key[len(positionPrefix):])] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading vault positions: %w", err)
	}
	return v, nil
}

func (v *Vault) Address() types.Address {
	return v.address
}

// Deposit books amount already transferred to the vault account.
func (v *Vault) Deposit(_ context.Context, depositor types.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.position(depositor)
	p.Principal.Add(p.Principal, amount)
	p.Balance.Add(p.Balance, amount)
	return v.save(depositor, p)
}

func (v *Vault) Withdraw(_ context.Context, depositor types.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.position(depositor)
	if amount.Gt(p.Balance) {
		return fmt.Errorf("%w: requested %s, balance %s", ErrInsufficientBalance, amount.ToBig(), p.Balance.ToBig())
	}
	profit := types.SubSat(p.Balance, p.Principal)
	p.Principal = types.SubSat(p.Principal, types.SubSat(amount, profit))
	p.Balance.Sub(p.Balance, amount)
	return v.payOut(depositor, p, amount)
}

func (v *Vault) WithdrawAll(_ context.Context, depositor types.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.position(depositor)
	amount := p.Balance
	p = &position{Principal: uint256.NewInt(0), Balance: uint256.NewInt(0)}
	if err := v.payOut(depositor, p, amount); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

// BalanceOf returns principal plus accrued profit of the depositor.
func (v *Vault) BalanceOf(_ context.Context, depositor types.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position(depositor).Balance, nil
}

func (v *Vault) AvailableProfit(_ context.Context, depositor types.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := v.position(depositor)
	return types.SubSat(p.Balance, p.Principal), nil
}

// AddProfit transfers amount from the funder to the vault and credits it
// to the position of the depositor as profit.
func (v *Vault) AddProfit(funder, depositor types.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.position(depositor)
	p := v.position(depositor)
	p.Balance.Add(p.Balance, amount)
	if err := v.save(depositor, p); err != nil {
		return err
	}
	if err := v.bank.Transfer(funder, v.address, amount); err != nil {
		v.restore(depositor, prev)
		return fmt.Errorf("transferring profit: %w", err)
	}
	v.log.Debug("profit added", logger.Address(depositor), logger.Amount(amount))
	return nil
}

// position returns copy of the depositor position, changes are applied with save.
func (v *Vault) position(depositor types.Address) *position {
	p, ok := v.positions[depositor]
	if !ok {
		return &position{Principal: uint256.NewInt(0), Balance: uint256.NewInt(0)}
	}
	return &position{Principal: p.Principal.Clone(), Balance: p.Balance.Clone()}
}

// payOut saves the position p and then transfers amount to the depositor,
// a failing transfer restores the previous position.
func (v *Vault) payOut(depositor types.Address, p *position, amount *uint256.Int) error {
	prev := v.position(depositor)
	if err := v.save(depositor, p); err != nil {
		return err
	}
	if err := v.bank.Transfer(v.address, depositor, amount); err != nil {
		v.restore(depositor, prev)
		return fmt.Errorf("paying out: %w", err)
	}
	return nil
}

func (v *Vault) restore(depositor types.Address, p *position) {
	if err := v.save(depositor, p); err != nil {
		v.log.Error("restoring vault position", logger.Address(depositor), logger.Error(err))
	}
}

func (v *Vault) save(depositor types.Address, p *position) error {
	key := keyvaluedb.Key(positionPrefix, depositor.Bytes())
	var err error
	if p.Balance.IsZero() && p.Principal.IsZero() {
		err = v.db.Delete(key)
	} else {
		err = v.db.Write(key, p)
	}
	if err != nil {
		return fmt.Errorf("writing vault position: %w", err)
	}
	if p.Balance.IsZero() && p.Principal.IsZero() {
		delete(v.positions, depositor)
	} else {
		v.positions[depositor] = p
	}
	return nil
}
