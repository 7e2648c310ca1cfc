package dispatcher

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/event"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/keyvaluedb/memorydb"
	"github.com/rainbow-dao/drn/types"
)

type (
	Config struct {
		// DAOAccount is the remote account whose outcomes are DAO commands.
		DAOAccount string
		// FactoryAccount is the remote account whose outcomes are unlocks.
		FactoryAccount string
		// ClaimPeriod is the number of blocks a proof stays acceptable after
		// its anchor height.
		ClaimPeriod uint64
		// ReceiptRetention is the number of blocks a consumed receipt is kept
		// in the replay ledger, zero keeps receipts forever.
		ReceiptRetention uint64
		Score            ScorePolicy
	}

	/*
		ScorePolicy bands relayed blocks by how far they advance the last
		relayed height: at least HighMinAdvance scores High, at least
		MediumMinAdvance scores Medium, anything else Low. The first relayed
		block scores High.
	*/
	ScorePolicy struct {
		High             uint64
		Medium           uint64
		Low              uint64
		HighMinAdvance   uint64
		MediumMinAdvance uint64
	}

	// Prover verifies outcome proofs of the remote chain.
	Prover interface {
		Verify(ctx context.Context, proof *types.OutcomeProof, expectedExecutor string, blockHeight uint64) (bool, error)
	}

	// HeaderStore is the remote chain light client.
	HeaderStore interface {
		Submit(ctx context.Context, block *types.LightClientBlock) (bool, error)
	}

	// Locker is the set of asset locker operations commands are routed to.
	Locker interface {
		SetReserveRatio(ctx context.Context, caller types.Address, ratio uint64) error
		SetMinHarvest(ctx context.Context, caller types.Address, amount *uint256.Int) error
		SetRewardsRatio(ctx context.Context, caller types.Address, ratio uint64) error
		DepositToStrategy(ctx context.Context, caller, strategy types.Address, amount *uint256.Int) error
		DepositAllToStrategy(ctx context.Context, caller, strategy types.Address) error
		WithdrawFromStrategy(ctx context.Context, caller, strategy types.Address, amount *uint256.Int) error
		WithdrawAllFromStrategy(ctx context.Context, caller, strategy types.Address) error
		Harvest(ctx context.Context, caller, strategy types.Address) error
		HarvestAll(ctx context.Context, caller types.Address) error
		Unlock(ctx context.Context, caller types.Address, amount *uint256.Int, recipient types.Address) (*locker.UnlockResult, error)
	}

	// Registry is the set of relay registry operations the dispatcher uses.
	Registry interface {
		Eligible(relayer types.Address) bool
		RecordRelay(ctx context.Context, caller, relayer types.Address, score uint64) error
		SetRewardsRatio(ctx context.Context, caller types.Address, ratio uint64) error
		SetFreezingPeriod(ctx context.Context, caller types.Address, period uint64) error
	}

	Option func(*options)

	options struct {
		db           keyvaluedb.KeyValueDB
		eventHandler event.Handler
	}
)

func DefaultConfig() Config {
	return Config{
		DAOAccount:     "rainbowdao",
		FactoryAccount: "neareth",
		ClaimPeriod:    6500 * 7,
		Score:          DefaultScorePolicy(),
	}
}

func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		High:             50000,
		Medium:           40000,
		Low:              20000,
		HighMinAdvance:   50,
		MediumMinAdvance: 10,
	}
}

func (c *Config) IsValid() error {
	var errs []error
	if c.DAOAccount == "" {
		errs = append(errs, errors.New("DAO account is empty"))
	}
	if c.FactoryAccount == "" {
		errs = append(errs, errors.New("factory account is empty"))
	}
	if c.ClaimPeriod == 0 {
		errs = append(errs, errors.New("claim period must be positive"))
	}
	if c.Score.MediumMinAdvance > c.Score.HighMinAdvance {
		errs = append(errs, errors.New("medium score advance exceeds high score advance"))
	}
	return errors.Join(errs...)
}

// score returns the band of block relayed at height when the last relayed
// height is last, zero last means nothing has been relayed yet.
func (p *ScorePolicy) score(last, height uint64) uint64 {
	if last == 0 {
		return p.High
	}
	var advance uint64
	if height > last {
		advance = height - last
	}
	switch {
	case advance >= p.HighMinAdvance:
		return p.High
	case advance >= p.MediumMinAdvance:
		return p.Medium
	default:
		return p.Low
	}
}

// WithStore sets the DB the replay ledger is persisted in, by default
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
