package locker

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/event"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/keyvaluedb/memorydb"
	"github.com/rainbow-dao/drn/types"
)

type (
	Config struct {
		// ReserveRatio is the share of locked value kept liquid in the
		// locker when investing, basis points.
		ReserveRatio uint64
		// MinReserveRatio is the hard floor unlocks must preserve, basis points.
		MinReserveRatio uint64
		// RewardsRatio is the share of harvested profit destined to rewards, basis points.
		RewardsRatio uint64
		// MinHarvest is the smallest profit worth harvesting, smaller profit
		// is left in the strategy.
		MinHarvest *uint256.Int
	}

	// Bank moves value between the accounts of the host ledger.
	Bank interface {
		BalanceOf(addr types.Address) *uint256.Int
		Transfer(from, to types.Address, amount *uint256.Int) error
	}

	/*
		Strategy is an investment strategy custodying part of the locked value.
		Deposit is called after the value has been transferred to the strategy
		account, Withdraw and WithdrawAll transfer the value to the depositor.
		Withdrawals are served from the available profit first, the rest
		reduces the invested principal.
	*/
	Strategy interface {
		Address() types.Address
		Deposit(ctx context.Context, depositor types.Address, amount *uint256.Int) error
		Withdraw(ctx context.Context, depositor types.Address, amount *uint256.Int) error
		WithdrawAll(ctx context.Context, depositor types.Address) (*uint256.Int, error)
		BalanceOf(ctx context.Context, depositor types.Address) (*uint256.Int, error)
		AvailableProfit(ctx context.Context, depositor types.Address) (*uint256.Int, error)
	}

	Option func(*options)

	options struct {
		db           keyvaluedb.KeyValueDB
		eventHandler event.Handler
		strategies   []Strategy
	}
)

func DefaultConfig() Config {
	return Config{
		ReserveRatio:    4000,
		MinReserveRatio: 1800,
		RewardsRatio:    10000,
		MinHarvest:      uint256.NewInt(0),
	}
}

func (c *Config) IsValid() error {
	var errs []error
	if c.ReserveRatio > types.RatioDenominator {
		errs = append(errs, fmt.Errorf("%w: reserve ratio %d", ErrInvalidRatio, c.ReserveRatio))
	}
	if c.MinReserveRatio > types.RatioDenominator {
		errs = append(errs, fmt.Errorf("%w: min reserve ratio %d", ErrInvalidRatio, c.MinReserveRatio))
	}
	if c.RewardsRatio > types.RatioDenominator {
		errs = append(errs, fmt.Errorf("%w: rewards ratio %d", ErrInvalidRatio, c.RewardsRatio))
	}
	return errors.Join(errs...)
}

// WithStore sets the DB locker state is persisted in, by default
// non-persistent in-memory DB is used.
func WithStore(db keyvaluedb.KeyValueDB) Option {
	return func(o *options) {
		o.db = db
	}
}

func WithEventHandler(h event.Handler) Option {
	return func(o *options) {
		o.eventHandler = h
	}
}

// WithStrategy registers investment strategies the DAO commands may refer to.
func WithStrategy(s ...Strategy) Option {
	return func(o *options) {
		o.strategies = append(o.strategies, s...)
	}
}

func loadOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.db == nil {
		o.db = memorydb.New()
	}
	return o
}
