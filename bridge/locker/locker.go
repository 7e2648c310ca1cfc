/*
Package locker implements the asset locker of the bridge: custody of the
locked value, delegation of a part of it to investment strategies, harvesting
of the returns and settlement of unlocks.

Unlock never fails for lack of liquidity. When paying the full amount would
breach the minimum reserve the locker pays what is safe and records the rest
as a debt of the creditor, the debt is settled later with RepayDebt.
*/
package locker

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

const debtPrefix = "debt/"

var keyState = []byte("state")

type (
	Locker struct {
		mu         sync.Mutex
		address    types.Address
		dispatcher *types.Address
		bank       Bank
		strategies map[types.Address]Strategy
		state      *lockerState
		debts      map[types.Address]*uint256.Int
		db         keyvaluedb.KeyValueDB
		events     event.Handler
		log        *slog.Logger
	}

	lockerState struct {
		_               struct{} `cbor:",toarray"`
		ReserveRatio    uint64
		MinReserveRatio uint64
		RewardsRatio    uint64
		MinHarvest      *uint256.Int
		LockedEth       *uint256.Int
		Invested        map[types.Address]*uint256.Int
	}

	// UnlockResult is the outcome of an unlock, Paid + Debt equals to the
	// requested amount.
	UnlockResult struct {
		Paid      *uint256.Int
		Debt      *uint256.Int
		TotalDebt *uint256.Int
	}
)

/*
New creates the locker owning the account address of the bank. Persisted
state, when present in the store, takes precedence over cfg as the
parameters may have been changed by DAO commands since.
*/
func New(address types.Address, bank Bank, cfg Config, log *slog.Logger, opts ...Option) (*Locker, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid locker configuration: %w", err)
	}
	o := loadOptions(opts)
	l := &Locker{
		address:    address,
		bank:       bank,
		strategies: make(map[types.Address]Strategy),
		debts:      make(map[types.Address]*uint256.Int),
		db:         o.db,
		events:     o.eventHandler,
		log:        log.With(logger.Module("locker")),
	}
	for _, s := range o.strategies {
		if _, ok := l.strategies[s.Address()]; ok {
			return nil, fmt.Errorf("duplicate strategy %s", s.Address())
		}
		l.strategies[s.Address()] = s
	}
	if err := l.load(cfg); err != nil {
		return nil, fmt.Errorf("loading locker state: %w", err)
	}
	return l, nil
}

func (l *Locker) load(cfg Config) error {
	st := &lockerState{}
	found, err := l.db.Read(keyState, st)
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}
	if !found {
		st = &lockerState{
			ReserveRatio:    cfg.ReserveRatio,
			MinReserveRatio: cfg.MinReserveRatio,
			RewardsRatio:    cfg.RewardsRatio,
			MinHarvest:      types.AmountOrZero(cfg.MinHarvest),
			LockedEth:       uint256.NewInt(0),
		}
	}
	if st.Invested == nil {
		st.Invested = make(map[types.Address]*uint256.Int)
	}
	st.MinHarvest = types.AmountOrZero(st.MinHarvest)
	st.LockedEth = types.AmountOrZero(st.LockedEth)
	l.state = st

	return keyvaluedb.ForEach(l.db, []byte(debtPrefix), func(key []byte, it keyvaluedb.Iterator) error {
		d := new(uint256.Int)
		if err := it.Value(d); err != nil {
			return fmt.Errorf("decoding debt: %w", err)
		}
		l.debts[common.BytesToAddress(key[len(debtPrefix):])] = d
		return nil
	})
}

// InitDispatcher sets the only caller allowed to invoke privileged operations.
func (l *Locker) InitDispatcher(dispatcher types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dispatcher != nil {
		return ErrAlreadyWired
	}
	l.dispatcher = &dispatcher
	return nil
}

func (l *Locker) Address() types.Address {
	return l.address
}

/*
LockEth moves the value attached to the call into the locker. accountID is
the beneficiary on the remote chain, the locker only reports it.
*/
func (l *Locker) LockEth(_ context.Context, call types.Call, accountID string) error {
	if call.Value == nil || call.Value.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	st := l.state.clone()
	st.LockedEth.Add(st.LockedEth, call.Value)
	if err := l.commit(st); err != nil {
		return err
	}
	if err := l.bank.Transfer(call.From, l.address, call.Value); err != nil {
		return l.revert(fmt.Errorf("transferring locked value: %w", err), func() error { return l.commit(prev) })
	}
	l.log.Info("value locked", logger.Address(call.From), logger.Amount(call.Value), logger.Data(accountID))
	l.events.Emit(event.Locked, &LockedEvent{Sender: call.From, Amount: call.Value.Clone(), AccountID: accountID})
	return nil
}

// Reserve returns the liquid value the locker keeps when investing.
func (l *Locker) Reserve() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserve()
}

func (l *Locker) reserve() *uint256.Int {
	return types.MulRatio(l.state.LockedEth, l.state.ReserveRatio, types.RatioDenominator)
}

func (l *Locker) minReserve(locked *uint256.Int) *uint256.Int {
	return types.MulRatio(locked, l.state.MinReserveRatio, types.RatioDenominator)
}

func (l *Locker) LockedEth() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LockedEth.Clone()
}

// Balance returns the liquid value held by the locker account.
func (l *Locker) Balance() *uint256.Int {
	return l.bank.BalanceOf(l.address)
}

// Debt returns the outstanding debt towards the creditor.
func (l *Locker) Debt(creditor types.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.AmountOrZero(l.debts[creditor])
}

// Debts returns copy of all outstanding debts.
func (l *Locker) Debts() map[types.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make(map[types.Address]*uint256.Int, len(l.debts))
	for k, v := range l.debts {
		res[k] = v.Clone()
	}
	return res
}

// Invested returns the principal the locker has invested into the strategy.
func (l *Locker) Invested(strategy types.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.AmountOrZero(l.state.Invested[strategy])
}

// Strategies returns addresses of the known strategies in ascending order.
func (l *Locker) Strategies() []types.Address {
	res := make([]types.Address, 0, len(l.strategies))
	for addr := range l.strategies {
		res = append(res, addr)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Hex() < res[j].Hex() })
	return res
}

func (l *Locker) ReserveRatio() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.ReserveRatio
}

func (l *Locker) MinReserveRatio() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.MinReserveRatio
}

func (l *Locker) RewardsRatio() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.RewardsRatio
}

func (l *Locker) MinHarvest() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.MinHarvest.Clone()
}

func (l *Locker) SetReserveRatio(_ context.Context, caller types.Address, ratio uint64) error {
	if ratio > types.RatioDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidRatio, ratio)
	}
	return l.setParameter(caller, "reserveRatio", fmt.Sprint(ratio), func(st *lockerState) {
		st.ReserveRatio = ratio
	})
}

func (l *Locker) SetRewardsRatio(_ context.Context, caller types.Address, ratio uint64) error {
	if ratio > types.RatioDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidRatio, ratio)
	}
	return l.setParameter(caller, "rewardsRatio", fmt.Sprint(ratio), func(st *lockerState) {
		st.RewardsRatio = ratio
	})
}

func (l *Locker) SetMinHarvest(_ context.Context, caller types.Address, amount *uint256.Int) error {
	amount = types.AmountOrZero(amount)
	return l.setParameter(caller, "minHarvest", amount.ToBig().String(), func(st *lockerState) {
		st.MinHarvest = amount
	})
}

func (l *Locker) setParameter(caller types.Address, name, value string, set func(st *lockerState)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	st := l.state.clone()
	set(st)
	if err := l.commit(st); err != nil {
		return err
	}
	l.log.Info("parameter changed", slog.String("name", name), slog.String("value", value))
	l.events.Emit(event.ParameterChanged, &event.Parameter{Component: "locker", Name: name, Value: value})
	return nil
}

// DepositToStrategy invests amount into the strategy, the liquid balance
// left behind must cover the reserve.
func (l *Locker) DepositToStrategy(ctx context.Context, caller, strategy types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	s, err := l.strategy(strategy)
	if err != nil {
		return err
	}
	available := types.SubSat(l.bank.BalanceOf(l.address), l.reserve())
	if amount.Gt(available) {
		return fmt.Errorf("%w: deposit of %s exceeds %s available above the reserve", ErrReserveFloorBreach, amount.ToBig(), available.ToBig())
	}
	return l.deposit(ctx, s, amount)
}

// DepositAllToStrategy invests everything above the reserve into the strategy.
func (l *Locker) DepositAllToStrategy(ctx context.Context, caller, strategy types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	s, err := l.strategy(strategy)
	if err != nil {
		return err
	}
	amount := types.SubSat(l.bank.BalanceOf(l.address), l.reserve())
	if amount.IsZero() {
		l.log.Debug("nothing to deposit above the reserve", logger.Address(strategy))
		return nil
	}
	return l.deposit(ctx, s, amount)
}

func (l *Locker) deposit(ctx context.Context, s Strategy, amount *uint256.Int) error {
	prev := l.state
	st := l.state.clone()
	invested := types.AmountOrZero(st.Invested[s.Address()])
	st.Invested[s.Address()] = invested.Add(invested, amount)
	if err := l.commit(st); err != nil {
		return err
	}
	restore := func() error { return l.commit(prev) }
	if err := l.bank.Transfer(l.address, s.Address(), amount); err != nil {
		return l.revert(fmt.Errorf("transferring to strategy: %w", err), restore)
	}
	if err := s.Deposit(ctx, l.address, amount); err != nil {
		if rerr := l.bank.Transfer(s.Address(), l.address, amount); rerr != nil {
			// the value stays with the strategy account, so do the books
			l.log.Error("returning rejected strategy deposit", logger.Error(rerr), logger.Address(s.Address()))
			return fmt.Errorf("%w: strategy deposit: %w, returning the deposit: %w", ErrStateDiverged, err, rerr)
		}
		return l.revert(fmt.Errorf("strategy deposit: %w", err), restore)
	}
	l.log.Info("deposited to strategy", logger.Address(s.Address()), logger.Amount(amount))
	l.events.Emit(event.StrategyDeposit, &StrategyEvent{Strategy: s.Address(), Amount: amount.Clone()})
	return nil
}

func (l *Locker) WithdrawFromStrategy(ctx context.Context, caller, strategy types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	s, err := l.strategy(strategy)
	if err != nil {
		return err
	}
	balance, err := s.BalanceOf(ctx, l.address)
	if err != nil {
		return fmt.Errorf("reading strategy balance: %w", err)
	}
	if amount.Gt(balance) {
		return fmt.Errorf("%w: requested %s, strategy holds %s", ErrExceedsInvested, amount.ToBig(), balance.ToBig())
	}
	profit, err := s.AvailableProfit(ctx, l.address)
	if err != nil {
		return fmt.Errorf("reading available profit: %w", err)
	}
	// profit is withdrawn first, only the rest comes out of the principal
	principal := types.SubSat(amount, types.AmountOrZero(profit))
	prev := l.state
	if err := l.commit(l.withdrawnState(strategy, principal)); err != nil {
		return err
	}
	if err := s.Withdraw(ctx, l.address, amount); err != nil {
		return l.revert(fmt.Errorf("strategy withdraw: %w", err), func() error { return l.commit(prev) })
	}
	l.withdrawn(strategy, amount)
	return nil
}

func (l *Locker) WithdrawAllFromStrategy(ctx context.Context, caller, strategy types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	s, err := l.strategy(strategy)
	if err != nil {
		return err
	}
	prev := l.state
	st := l.state.clone()
	delete(st.Invested, strategy)
	if err := l.commit(st); err != nil {
		return err
	}
	amount, err := s.WithdrawAll(ctx, l.address)
	if err != nil {
		return l.revert(fmt.Errorf("strategy withdraw all: %w", err), func() error { return l.commit(prev) })
	}
	l.withdrawn(strategy, types.AmountOrZero(amount))
	return nil
}

// withdrawnState returns copy of the state with principal taken out of the
// value invested into the strategy.
func (l *Locker) withdrawnState(strategy types.Address, principal *uint256.Int) *lockerState {
	st := l.state.clone()
	if invested := types.SubSat(types.AmountOrZero(st.Invested[strategy]), principal); invested.IsZero() {
		delete(st.Invested, strategy)
	} else {
		st.Invested[strategy] = invested
	}
	return st
}

func (l *Locker) withdrawn(strategy types.Address, amount *uint256.Int) {
	l.log.Info("withdrawn from strategy", logger.Address(strategy), logger.Amount(amount))
	l.events.Emit(event.StrategyWithdrawal, &StrategyEvent{Strategy: strategy, Amount: amount.Clone()})
}

// Harvest collects the profit of the strategy into the locker balance, the
// invested principal is left in the strategy.
func (l *Locker) Harvest(ctx context.Context, caller, strategy types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	s, err := l.strategy(strategy)
	if err != nil {
		return err
	}
	profit, err := l.harvestable(ctx, s)
	if err != nil || profit == nil {
		return err
	}
	return l.harvest(ctx, s, profit)
}

/*
HarvestAll harvests every known strategy. The profits of all strategies are
read before anything is withdrawn so a failing read has no effect. A
strategy failing to pay out leaves the harvests before it in place,
harvesting again collects only what is left.
*/
func (l *Locker) HarvestAll(ctx context.Context, caller types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return err
	}
	addrs := l.Strategies()
	profits := make([]*uint256.Int, len(addrs))
	for i, addr := range addrs {
		profit, err := l.harvestable(ctx, l.strategies[addr])
		if err != nil {
			return fmt.Errorf("harvesting %s: %w", addr, err)
		}
		profits[i] = profit
	}
	for i, addr := range addrs {
		if profits[i] == nil {
			continue
		}
		if err := l.harvest(ctx, l.strategies[addr], profits[i]); err != nil {
			return fmt.Errorf("harvesting %s: %w", addr, err)
		}
	}
	return nil
}

// harvestable returns the profit of the strategy or nil when it is below
// MinHarvest.
func (l *Locker) harvestable(ctx context.Context, s Strategy) (*uint256.Int, error) {
	profit, err := s.AvailableProfit(ctx, l.address)
	if err != nil {
		return nil, fmt.Errorf("reading available profit: %w", err)
	}
	if profit == nil || profit.IsZero() || profit.Lt(l.state.MinHarvest) {
		l.log.Debug("nothing to harvest", logger.Address(s.Address()), logger.Amount(profit))
		return nil, nil
	}
	return profit, nil
}

func (l *Locker) harvest(ctx context.Context, s Strategy, profit *uint256.Int) error {
	if err := s.Withdraw(ctx, l.address, profit); err != nil {
		return fmt.Errorf("withdrawing profit: %w", err)
	}
	rewards := types.MulRatio(profit, l.state.RewardsRatio, types.RatioDenominator)
	l.log.Info("harvested", logger.Address(s.Address()), logger.Amount(profit))
	l.events.Emit(event.Harvested, &HarvestedEvent{Strategy: s.Address(), Profit: profit.Clone(), Rewards: rewards})
	return nil
}

/*
Unlock releases amount to the recipient. The payout is limited to what can
be paid while keeping MinReserveRatio of the value that stays locked, the
unpaid rest becomes debt of the recipient. LockedEth always decreases by
the full amount.
*/
func (l *Locker) Unlock(_ context.Context, caller types.Address, amount *uint256.Int, recipient types.Address) (*UnlockResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.authorize(caller); err != nil {
		return nil, err
	}
	remaining := types.SubSat(l.state.LockedEth, amount)
	safe := types.SubSat(l.bank.BalanceOf(l.address), l.minReserve(remaining))
	paid := types.Min(amount, safe)
	debt := new(uint256.Int).Sub(amount, paid)

	prev, prevDebt := l.state, types.AmountOrZero(l.debts[recipient])
	st := l.state.clone()
	st.LockedEth = remaining
	totalDebt := new(uint256.Int).Add(prevDebt, debt)
	if err := l.commitWithDebt(st, recipient, totalDebt); err != nil {
		return nil, err
	}
	if err := l.bank.Transfer(l.address, recipient, paid); err != nil {
		return nil, l.revert(fmt.Errorf("paying out unlock: %w", err), func() error {
			return l.commitWithDebt(prev, recipient, prevDebt)
		})
	}
	l.log.Info("value unlocked", logger.Address(recipient), logger.Amount(paid))
	l.events.Emit(event.Unlocked, &UnlockedEvent{Recipient: recipient, Amount: paid.Clone()})
	if !debt.IsZero() {
		l.log.Warn("unlock shortfall recorded as debt", logger.Address(recipient), logger.Amount(debt))
		l.events.Emit(event.DebtCreated, &DebtCreatedEvent{Creditor: recipient, Amount: debt.Clone(), TotalDebt: totalDebt.Clone()})
	}
	return &UnlockResult{Paid: paid, Debt: debt, TotalDebt: totalDebt.Clone()}, nil
}

/*
RepayDebt pays as much of the creditor's debt as the liquid balance above
the minimum reserve allows. Anybody may trigger the repayment, the value
always goes to the creditor. Returns the amount paid.
*/
func (l *Locker) RepayDebt(_ context.Context, creditor types.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	debt := l.debts[creditor]
	if debt == nil || debt.IsZero() {
		return nil, ErrNoDebt
	}
	payable := types.SubSat(l.bank.BalanceOf(l.address), l.minReserve(l.state.LockedEth))
	if payable.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	paid := types.Min(debt, payable)
	rest := new(uint256.Int).Sub(debt, paid)
	if err := l.commitWithDebt(nil, creditor, rest); err != nil {
		return nil, err
	}
	if err := l.bank.Transfer(l.address, creditor, paid); err != nil {
		return nil, l.revert(fmt.Errorf("paying out debt: %w", err), func() error {
			return l.commitWithDebt(nil, creditor, debt)
		})
	}
	l.log.Info("debt repaid", logger.Address(creditor), logger.Amount(paid))
	l.events.Emit(event.DebtRepaid, &DebtRepaidEvent{Creditor: creditor, Amount: paid.Clone(), RemainingDebt: rest.Clone()})
	return paid, nil
}

func (l *Locker) authorize(caller types.Address) error {
	if l.dispatcher == nil {
		return ErrNotWired
	}
	if *l.dispatcher != caller {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

func (l *Locker) strategy(addr types.Address) (Strategy, error) {
	s, ok := l.strategies[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, addr)
	}
	return s, nil
}

/*
revert restores the books committed ahead of a value transfer which then
failed. When restoring fails too the books are ahead of the ledger and the
returned error is marked with ErrStateDiverged.
*/
func (l *Locker) revert(cause error, restore func() error) error {
	if err := restore(); err != nil {
		l.log.Error("restoring locker state", logger.Error(err))
		return fmt.Errorf("%w: %w, restoring state: %w", ErrStateDiverged, cause, err)
	}
	return cause
}

func (l *Locker) commit(st *lockerState) error {
	if err := l.db.Write(keyState, st); err != nil {
		return fmt.Errorf("writing locker state: %w", err)
	}
	l.state = st
	return nil
}

// commitWithDebt writes state (when not nil) and the debt of the creditor in
// single DB transaction, zero debt deletes the record.
func (l *Locker) commitWithDebt(st *lockerState, creditor types.Address, debt *uint256.Int) (err error) {
	tx, err := l.db.StartTx()
	if err != nil {
		return fmt.Errorf("starting db tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if st != nil {
		if err = tx.Write(keyState, st); err != nil {
			return fmt.Errorf("writing locker state: %w", err)
		}
	}
	key := keyvaluedb.Key(debtPrefix, creditor.Bytes())
	if debt.IsZero() {
		err = tx.Delete(key)
	} else {
		err = tx.Write(key, debt)
	}
	if err != nil {
		return fmt.Errorf("writing debt: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing locker state: %w", err)
	}
	if st != nil {
		l.state = st
	}
	if debt.IsZero() {
		delete(l.debts, creditor)
	} else {
		l.debts[creditor] = debt
	}
	return nil
}

func (s *lockerState) clone() *lockerState {
	c := *s
	c.MinHarvest = s.MinHarvest.Clone()
	c.LockedEth = s.LockedEth.Clone()
	c.Invested = make(map[types.Address]*uint256.Int, len(s.Invested))
	for k, v := range s.Invested {
		c.Invested[k] = v.Clone()
	}
	return &c
}
