/*
Package ledger implements the host chain account ledger the bridge
components run on: account balances, call nonces and the block height.
*/
package ledger

import (
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

const (
	balancePrefix = "bal/"
	noncePrefix   = "nonce/"
)

var keyHeight = []byte("height")

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidNonce      = errors.New("invalid nonce")
)

/*
Ledger keeps balances in memory and writes every change through to the
key value DB, a transfer is written atomically in single DB transaction.
*/
type Ledger struct {
	mu       sync.RWMutex
	balances map[types.Address]*uint256.Int
	nonces   map[types.Address]uint64
	height   uint64
	db       keyvaluedb.KeyValueDB
	log      *slog.Logger
}

// New loads ledger state from db, when db is nil non persistent in-memory DB is used.
func New(db keyvaluedb.KeyValueDB, log *slog.Logger) (*Ledger, error) {
	if db == nil {
		db = memorydb.New()
	}
	l := &Ledger{
		balances: make(map[types.Address]*uint256.Int),
		nonces:   make(map[types.Address]uint64),
		db:       db,
		log:      log,
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("loading ledger state: %w", err)
	}
	return l, nil
}

func (l *Ledger) load() error {
	if _, err := l.db.Read(keyHeight, &l.height); err != nil {
		return fmt.Errorf("reading height: %w", err)
	}
	err := keyvaluedb.ForEach(l.db, []byte(balancePrefix), func(key []byte, it keyvaluedb.Iterator) error {
		v := new(uint256.Int)
		if err := it.Value(v); err != nil {
			return fmt.Errorf("decoding balance: %w", err)
		}
		l.balances[common.BytesToAddress(key[len(balancePrefix):])] = v
		return nil
	})
	if err != nil {
		return err
	}
	return keyvaluedb.ForEach(l.db, []byte(noncePrefix), func(key []byte, it keyvaluedb.Iterator) error {
		var n uint64
		if err := it.Value(&n); err != nil {
			return fmt.Errorf("decoding nonce: %w", err)
		}
		l.nonces[common.BytesToAddress(key[len(noncePrefix):])] = n
		return nil
	})
}

// BalanceOf returns copy of the account balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(addr types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return types.AmountOrZero(l.balances[addr])
}

/*
Transfer moves amount from one account to another. Transfer of zero amount
is a no-op.
*/
func (l *Ledger) Transfer(from, to types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := types.AmountOrZero(l.balances[from])
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: account %s has %s, transfer requires %s", ErrInsufficientFunds, from, fromBalance.ToBig(), amount.ToBig())
	}
	if from == to {
		return nil
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance := types.AmountOrZero(l.balances[to])
	toBalance.Add(toBalance, amount)

	tx, err := l.db.StartTx()
	if err != nil {
		return fmt.Errorf("starting db tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := tx.Write(balanceKey(from), fromBalance); err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}
	if err := tx.Write(balanceKey(to), toBalance); err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transfer: %w", err)
	}
	l.balances[from] = fromBalance
	l.balances[to] = toBalance
	return nil
}

/*
Mint creates amount out of thin air into the account. Used for genesis
allocations only.
*/
func (l *Ledger) Mint(to types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := types.AmountOrZero(l.balances[to])
	b.Add(b, amount)
	if err := l.db.Write(balanceKey(to), b); err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}
	l.balances[to] = b
	l.log.Debug("minted", logger.Address(to), logger.Amount(amount))
	return nil
}

// Nonce returns the number of calls executed on behalf of the account.
func (l *Ledger) Nonce(addr types.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[addr]
}

/*
UseNonce increments the account nonce if nonce equals to the current
value, fails with ErrInvalidNonce otherwise.
*/
func (l *Ledger) UseNonce(addr types.Address, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur := l.nonces[addr]; cur != nonce {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, cur, nonce)
	}
	if err := l.db.Write(keyvaluedb.Key(noncePrefix, addr.Bytes()), nonce+1); err != nil {
		return fmt.Errorf("writing nonce: %w", err)
	}
	l.nonces[addr] = nonce + 1
	return nil
}

// CurrentHeight returns the current block height.
func (l *Ledger) CurrentHeight() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// AdvanceHeight moves ledger to the next block and returns the new height.
func (l *Ledger) AdvanceHeight() (uint64, error) {
	return l.SetHeight(l.CurrentHeight() + 1)
}

// SetHeight sets block height, height can't move backwards.
func (l *Ledger) SetHeight(h uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h < l.height {
		return l.height, fmt.Errorf("height can't decrease from %d to %d", l.height, h)
	}
	if err := l.db.Write(keyHeight, h); err != nil {
		return l.height, fmt.Errorf("writing height: %w", err)
	}
	l.height = h
	return h, nil
}

func balanceKey(addr types.Address) []byte {
	return keyvaluedb.Key(balancePrefix, addr.Bytes())
}
