package registry

import (
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
		_ struct{} `cbor:",toarray"`
		// StakingRequired is the minimum value to attach to Register.
		StakingRequired *uint256.Int
		// RelayerLimit is the number of relayers on active duty.
		RelayerLimit uint64
		// FreezingPeriod is the number of blocks the stake stays locked
		// after the withdrawal request.
		FreezingPeriod uint64
		RewardsRatio   uint64
		// MinScoreRatio, in percent, of the lowest relayer's score a candidate
		// has to exceed to replace it.
		MinScoreRatio uint64
	}

	// Bank moves value between the accounts of the host ledger.
	Bank interface {
		Transfer(from, to types.Address, amount *uint256.Int) error
	}

	Option func(*options)

	options struct {
		db           keyvaluedb.KeyValueDB
		eventHandler event.Handler
	}
)

func DefaultConfig() Config {
	return Config{
		StakingRequired: types.Ether(5),
		RelayerLimit:    12,
		FreezingPeriod:  6500 * 2,
		RewardsRatio:    2,
		MinScoreRatio:   30,
	}
}

func (c *Config) IsValid() error {
	var errs []error
	if c.StakingRequired == nil || c.StakingRequired.IsZero() {
		errs = append(errs, errors.New("staking requirement must be positive"))
	}
	if c.RelayerLimit == 0 {
		errs = append(errs, errors.New("relayer limit must be positive"))
	}
	if c.MinScoreRatio > 100 {
		errs = append(errs, fmt.Errorf("min score ratio %d exceeds 100 percent", c.MinScoreRatio))
	}
	return errors.Join(errs...)
}

// WithStore sets the DB registry state is persisted in, by default
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
