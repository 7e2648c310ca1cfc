/*
Package registry implements the relay registry: relayers stake value to get
listed, earn score for relayed blocks and compete for the limited number of
active relayer slots.
*/
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/event"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

const relayerPrefix = "relayer/"

var (
	keyConfig = []byte("config")
	keySeq    = []byte("seq")
)

type Role uint8

const (
	RoleRelayer   Role = 1
	RoleCandidate Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleRelayer:
		return "relayer"
	case RoleCandidate:
		return "candidate"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

type (
	Relayer struct {
		_            struct{} `cbor:",toarray"`
		Address      types.Address
		Stake        *uint256.Int
		Score        uint64
		Role         Role
		Seq          uint64 // registration order
		RegisteredAt uint64
		// UnlockAt is the height the stake can be withdrawn at, zero when
		// withdrawal hasn't been requested.
		UnlockAt uint64
	}

	Registry struct {
		mu         sync.Mutex
		address    types.Address
		dispatcher *types.Address
		bank       Bank
		clock      types.Clock
		cfg        Config
		relayers   map[types.Address]*Relayer
		seq        uint64
		db         keyvaluedb.KeyValueDB
		events     event.Handler
		log        *slog.Logger
	}
)

func (r *Relayer) Withdrawing() bool {
	return r.UnlockAt != 0
}

func (r *Relayer) clone() *Relayer {
	c := *r
	c.Stake = r.Stake.Clone()
	return &c
}

/*
New creates registry owning the account address of the bank, stakes are
held in that account. Persisted parameters take precedence over cfg.
*/
func New(address types.Address, bank Bank, clock types.Clock, cfg Config, log *slog.Logger, opts ...Option) (*Registry, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is nil")
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid registry configuration: %w", err)
	}
	o := loadOptions(opts)
	r := &Registry{
		address:  address,
		bank:     bank,
		clock:    clock,
		cfg:      cfg,
		relayers: make(map[types.Address]*Relayer),
		db:       o.db,
		events:   o.eventHandler,
		log:      log.With(logger.Module("registry")),
	}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("loading registry state: %w", err)
	}
	return r, nil
}

func (r *Registry) load() error {
	stored := Config{}
	found, err := r.db.Read(keyConfig, &stored)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if found {
		r.cfg = stored
	}
	if _, err := r.db.Read(keySeq, &r.seq); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}
	return keyvaluedb.ForEach(r.db, []byte(relayerPrefix), func(key []byte, it keyvaluedb.Iterator) error {
		rl := &Relayer{}
		if err := it.Value(rl); err != nil {
			return fmt.Errorf("decoding relayer: %w", err)
		}
		r.relayers[common.BytesToAddress(key[len(relayerPrefix):])] = rl
		return nil
	})
}

// InitDispatcher sets the only caller allowed to invoke privileged operations.
func (r *Registry) InitDispatcher(dispatcher types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dispatcher != nil {
		return ErrAlreadyWired
	}
	r.dispatcher = &dispatcher
	return nil
}

func (r *Registry) Address() types.Address {
	return r.address
}

func (r *Registry) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cfg
	c.StakingRequired = r.cfg.StakingRequired.Clone()
	return c
}

// Relayer returns copy of the relayer record.
func (r *Registry) Relayer(addr types.Address) (*Relayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.relayers[addr]
	if !ok {
		return nil, false
	}
	return rl.clone(), true
}

// Relayers returns copies of all listed relayers in registration order.
func (r *Registry) Relayers() []*Relayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Relayer, 0, len(r.relayers))
	for _, rl := range r.relayers {
		res = append(res, rl.clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return res
}

// ActiveCount returns the number of relayers on active duty.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount()
}

// Eligible returns true when addr is listed and hasn't requested withdrawal.
func (r *Registry) Eligible(addr types.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.relayers[addr]
	return ok && !rl.Withdrawing()
}

/*
Register lists the caller with the value attached to the call as stake.
The relayer gets active duty when there is a free slot, otherwise it is
listed as candidate.
*/
func (r *Registry) Register(_ context.Context, call types.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call.Value == nil || call.Value.Lt(r.cfg.StakingRequired) {
		return fmt.Errorf("%w: required %s, got %s", ErrInsufficientStake, r.cfg.StakingRequired.ToBig(), types.AmountOrZero(call.Value).ToBig())
	}
	if _, ok := r.relayers[call.From]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, call.From)
	}
	rl := &Relayer{
		Address:      call.From,
		Stake:        call.Value.Clone(),
		Role:         RoleCandidate,
		Seq:          r.seq + 1,
		RegisteredAt: r.clock.CurrentHeight(),
	}
	if uint64(r.activeCount()) < r.cfg.RelayerLimit {
		rl.Role = RoleRelayer
	}
	prevSeq := r.seq
	if err := r.commit(rl.Seq, []*Relayer{rl}, nil); err != nil {
		return err
	}
	if err := r.bank.Transfer(call.From, r.address, call.Value); err != nil {
		return r.revert(fmt.Errorf("transferring stake: %w", err), func() error {
			return r.commit(prevSeq, nil, []types.Address{rl.Address})
		})
	}
	r.log.Info("relayer registered", logger.Address(rl.Address), slog.String("role", rl.Role.String()), logger.Amount(rl.Stake))
	r.events.Emit(event.Listed, &ListedEvent{Relayer: rl.Address, Role: rl.Role})
	return nil
}

/*
RecordRelay adds score to the relayer. A candidate is promoted when there is
a free slot or when its score exceeds MinScoreRatio percent of the lowest
scoring active relayer, which is demoted in exchange.
*/
func (r *Registry) RecordRelay(_ context.Context, caller, relayer types.Address, score uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	cur, ok := r.relayers[relayer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotListed, relayer)
	}
	if cur.Withdrawing() {
		return fmt.Errorf("%w: %s", ErrWithdrawalPending, relayer)
	}
	rl := cur.clone()
	rl.Score += score
	changed := []*Relayer{rl}
	var listed []*Relayer

	if rl.Role == RoleCandidate {
		if uint64(r.activeCount()) < r.cfg.RelayerLimit {
			rl.Role = RoleRelayer
			listed = append(listed, rl)
		} else if lowest := r.lowestActive(); lowest != nil && r.outscores(rl, lowest) {
			demoted := lowest.clone()
			demoted.Role = RoleCandidate
			rl.Role = RoleRelayer
			changed = append(changed, demoted)
			listed = append(listed, demoted, rl)
		}
	}
	if err := r.commit(r.seq, changed, nil); err != nil {
		return err
	}
	r.log.Debug("relay recorded", logger.Address(relayer), slog.Uint64("score", rl.Score))
	for _, l := range listed {
		r.log.Info("relayer role changed", logger.Address(l.Address), slog.String("role", l.Role.String()))
		r.events.Emit(event.Listed, &ListedEvent{Relayer: l.Address, Role: l.Role, Score: l.Score})
	}
	return nil
}

/*
Withdraw is the two phase exit of a relayer. The first call requests the
withdrawal, the relayer leaves active duty and its stake is frozen for
FreezingPeriod blocks. Calling Withdraw again after that returns the stake
and removes the relayer.
*/
func (r *Registry) Withdraw(_ context.Context, call types.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.relayers[call.From]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotListed, call.From)
	}
	now := r.clock.CurrentHeight()
	if !cur.Withdrawing() {
		return r.requestWithdrawal(cur, now)
	}
	if now < cur.UnlockAt {
		return fmt.Errorf("%w: unlocks at height %d, current height %d", ErrNotYetUnfreezable, cur.UnlockAt, now)
	}
	if err := r.commit(r.seq, nil, []types.Address{cur.Address}); err != nil {
		return err
	}
	if err := r.bank.Transfer(r.address, cur.Address, cur.Stake); err != nil {
		return r.revert(fmt.Errorf("returning stake: %w", err), func() error {
			return r.commit(r.seq, []*Relayer{cur}, nil)
		})
	}
	r.log.Info("relayer unlisted", logger.Address(cur.Address), logger.Amount(cur.Stake))
	r.events.Emit(event.Unlisted, &UnlistedEvent{Relayer: cur.Address, Stake: cur.Stake.Clone()})
	return nil
}

func (r *Registry) requestWithdrawal(cur *Relayer, now uint64) error {
	rl := cur.clone()
	rl.UnlockAt = now + r.cfg.FreezingPeriod
	if rl.UnlockAt == 0 {
		// zero marks "not withdrawing"
		rl.UnlockAt = 1
	}
	changed := []*Relayer{rl}
	var promoted *Relayer
	if rl.Role == RoleRelayer {
		rl.Role = RoleCandidate
		if best := r.bestCandidate(rl.Address); best != nil {
			promoted = best.clone()
			promoted.Role = RoleRelayer
			changed = append(changed, promoted)
		}
	}
	if err := r.commit(r.seq, changed, nil); err != nil {
		return err
	}
	r.log.Info("withdrawal requested", logger.Address(rl.Address), slog.Uint64("unlock_at", rl.UnlockAt))
	r.events.Emit(event.WithdrawRequested, &WithdrawRequestedEvent{Relayer: rl.Address, UnlockAt: rl.UnlockAt})
	if promoted != nil {
		r.events.Emit(event.Listed, &ListedEvent{Relayer: promoted.Address, Role: promoted.Role, Score: promoted.Score})
	}
	return nil
}

func (r *Registry) SetRewardsRatio(_ context.Context, caller types.Address, ratio uint64) error {
	return r.setParameter(caller, "rewardsRatio", ratio, func(c *Config) { c.RewardsRatio = ratio })
}

func (r *Registry) SetFreezingPeriod(_ context.Context, caller types.Address, period uint64) error {
	return r.setParameter(caller, "freezingPeriod", period, func(c *Config) { c.FreezingPeriod = period })
}

func (r *Registry) setParameter(caller types.Address, name string, value uint64, set func(c *Config)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	cfg := r.cfg
	set(&cfg)
	if err := r.db.Write(keyConfig, &cfg); err != nil {
		return fmt.Errorf("writing registry config: %w", err)
	}
	r.cfg = cfg
	r.log.Info("parameter changed", slog.String("name", name), slog.Uint64("value", value))
	r.events.Emit(event.ParameterChanged, &event.Parameter{Component: "registry", Name: name, Value: fmt.Sprint(value)})
	return nil
}

func (r *Registry) authorize(caller types.Address) error {
	if r.dispatcher == nil {
		return ErrNotWired
	}
	if *r.dispatcher != caller {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

func (r *Registry) activeCount() int {
	n := 0
	for _, rl := range r.relayers {
		if rl.Role == RoleRelayer {
			n++
		}
	}
	return n
}

// lowestActive returns the active relayer with the lowest score, of equal
// scores the most recently registered one.
func (r *Registry) lowestActive() *Relayer {
	var lowest *Relayer
	for _, rl := range r.relayers {
		if rl.Role != RoleRelayer {
			continue
		}
		if lowest == nil || rl.Score < lowest.Score || (rl.Score == lowest.Score && rl.Seq > lowest.Seq) {
			lowest = rl
		}
	}
	return lowest
}

// bestCandidate returns the highest scoring candidate not withdrawing, of
// equal scores the earliest registered one.
func (r *Registry) bestCandidate(exclude types.Address) *Relayer {
	var best *Relayer
	for _, rl := range r.relayers {
		if rl.Role != RoleCandidate || rl.Withdrawing() || rl.Address == exclude {
			continue
		}
		if best == nil || rl.Score > best.Score || (rl.Score == best.Score && rl.Seq < best.Seq) {
			best = rl
		}
	}
	return best
}

func (r *Registry) outscores(candidate, lowest *Relayer) bool {
	c := new(uint256.Int).Mul(uint256.NewInt(candidate.Score), uint256.NewInt(100))
	l := new(uint256.Int).Mul(uint256.NewInt(lowest.Score), uint256.NewInt(r.cfg.MinScoreRatio))
	return c.Gt(l)
}

// revert undoes a commit made ahead of a value transfer which then failed.
func (r *Registry) revert(cause error, restore func() error) error {
	if err := restore(); err != nil {
		r.log.Error("restoring registry state", logger.Error(err))
		return fmt.Errorf("%w: %w, restoring state: %w", ErrStateDiverged, cause, err)
	}
	return cause
}

// commit writes sequence, changed and removed relayers in single DB
// transaction and applies them to the in-memory state on success.
func (r *Registry) commit(seq uint64, changed []*Relayer, removed []types.Address) (err error) {
	tx, err := r.db.StartTx()
	if err != nil {
		return fmt.Errorf("starting db tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if seq != r.seq {
		if err = tx.Write(keySeq, seq); err != nil {
			return fmt.Errorf("writing sequence: %w", err)
		}
	}
	for _, rl := range changed {
		if err = tx.Write(keyvaluedb.Key(relayerPrefix, rl.Address.Bytes()), rl); err != nil {
			return fmt.Errorf("writing relayer: %w", err)
		}
	}
	for _, addr := range removed {
		if err = tx.Delete(keyvaluedb.Key(relayerPrefix, addr.Bytes())); err != nil {
			return fmt.Errorf("deleting relayer: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing registry state: %w", err)
	}
	r.seq = seq
	for _, rl := range changed {
		r.relayers[rl.Address] = rl
	}
	for _, addr := range removed {
		delete(r.relayers, addr)
	}
	return nil
}
