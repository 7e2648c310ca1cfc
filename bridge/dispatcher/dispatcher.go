/*
Package dispatcher authorizes privileged bridge operations by remote chain
outcome proofs.

A proof is accepted once: it must verify against the expected remote
executor, its receipt must not have been consumed before and its anchor
height must be within the claim period and not ahead of the current height.
The receipt is marked consumed before the routed operation runs, when the
operation fails the receipt is released so the whole call has no effect.
A receipt is kept consumed when the operation reports
locker.ErrStateDiverged as the value may have moved already.
*/
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rainbow-dao/drn/bridge/command"
	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/event"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

var keyRelayedHeight = []byte("relayed")

type Dispatcher struct {
	mu      sync.Mutex
	address types.Address
	prover  Prover
	clock   types.Clock
	cfg     Config

	headerStore HeaderStore
	locker      Locker
	registry    Registry

	replay        *replayLedger
	relayedHeight uint64
	db            keyvaluedb.KeyValueDB
	events        event.Handler
	log           *slog.Logger
}

/*
New creates dispatcher which calls the privileged operations of the locker
and the registry on behalf of address. The relative contracts must be set
with InitRelativeContracts before use.
*/
func New(address types.Address, prover Prover, clock types.Clock, cfg Config, log *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if prover == nil {
		return nil, fmt.Errorf("prover is nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is nil")
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher configuration: %w", err)
	}
	o := loadOptions(opts)
	replay, err := loadReplayLedger(o.db)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		address: address,
		prover:  prover,
		clock:   clock,
		cfg:     cfg,
		replay:  replay,
		db:      o.db,
		events:  o.eventHandler,
		log:     log.With(logger.Module("dispatcher")),
	}
	if _, err := o.db.Read(keyRelayedHeight, &d.relayedHeight); err != nil {
		return nil, fmt.Errorf("reading last relayed height: %w", err)
	}
	return d, nil
}

// InitRelativeContracts wires the dispatcher, it can be done only once.
func (d *Dispatcher) InitRelativeContracts(headerStore HeaderStore, locker Locker, registry Registry) error {
	if headerStore == nil || locker == nil || registry == nil {
		return fmt.Errorf("relative contract is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.headerStore != nil || d.locker != nil || d.registry != nil {
		return ErrAlreadyWired
	}
	d.headerStore = headerStore
	d.locker = locker
	d.registry = registry
	return nil
}

func (d *Dispatcher) Address() types.Address {
	return d.address
}

func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Consumed returns true when the receipt is in the replay ledger.
func (d *Dispatcher) Consumed(id types.ReceiptID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replay.consumed(id)
}

// LastRelayedHeight returns the height of the last accepted light client block.
func (d *Dispatcher) LastRelayedHeight() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relayedHeight
}

/*
RelayLightClientBlock forwards block of an eligible relayer to the header
store and credits the relayer with the score of the block. Returns the
score.
*/
func (d *Dispatcher) RelayLightClientBlock(ctx context.Context, relayer types.Address, block *types.LightClientBlock) (uint64, error) {
	headerStore, _, registry, err := d.wiring()
	if err != nil {
		return 0, err
	}
	if err := block.IsValid(); err != nil {
		return 0, fmt.Errorf("invalid block: %w", err)
	}
	if !registry.Eligible(relayer) {
		return 0, fmt.Errorf("%w: %s", ErrNotEligible, relayer)
	}
	accepted, err := headerStore.Submit(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("submitting block to header store: %w", err)
	}
	if !accepted {
		return 0, fmt.Errorf("%w: height %d", ErrBlockRejected, block.Height)
	}

	d.mu.Lock()
	score := d.cfg.Score.score(d.relayedHeight, block.Height)
	if block.Height > d.relayedHeight {
		if err := d.db.Write(keyRelayedHeight, block.Height); err != nil {
			d.mu.Unlock()
			return 0, fmt.Errorf("writing last relayed height: %w", err)
		}
		d.relayedHeight = block.Height
	}
	d.mu.Unlock()

	if err := registry.RecordRelay(ctx, d.address, relayer, score); err != nil {
		return 0, fmt.Errorf("recording relay: %w", err)
	}
	d.log.Info("light client block relayed", logger.Address(relayer), logger.Height(block.Height), slog.Uint64("score", score))
	d.events.Emit(event.RelayLog, &RelayLogEvent{Height: block.Height, Relayer: relayer, Score: score})
	return score, nil
}

// RelayCommandFromDao executes the DAO command carried by the proof.
func (d *Dispatcher) RelayCommandFromDao(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) error {
	_, lck, registry, err := d.wiring()
	if err != nil {
		return err
	}
	var cmd command.Command
	err = d.consume(ctx, proof, d.cfg.DAOAccount, blockHeight,
		func(payload []byte) (err error) {
			cmd, err = command.Decode(payload)
			return err
		},
		func() error {
			return d.execute(ctx, lck, registry, cmd)
		},
	)
	if err != nil {
		return err
	}
	d.log.Info("DAO command executed", logger.Receipt(proof.ReceiptID), slog.String("command", cmd.Code().String()))
	d.events.Emit(event.CommandRelayed, &CommandRelayedEvent{ReceiptID: proof.ReceiptID, Command: cmd})
	return nil
}

// UnlockEth releases locked value as instructed by the factory outcome.
func (d *Dispatcher) UnlockEth(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) (*locker.UnlockResult, error) {
	_, lck, _, err := d.wiring()
	if err != nil {
		return nil, err
	}
	var unlock *command.Unlock
	var res *locker.UnlockResult
	err = d.consume(ctx, proof, d.cfg.FactoryAccount, blockHeight,
		func(payload []byte) (err error) {
			unlock, err = command.DecodeUnlock(payload)
			return err
		},
		func() (err error) {
			res, err = lck.Unlock(ctx, d.address, unlock.Amount, unlock.Recipient)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	d.log.Info("unlock executed", logger.Receipt(proof.ReceiptID), logger.Address(unlock.Recipient), logger.Amount(res.Paid))
	return res, nil
}

/*
consume runs the proof through verification, replay and freshness checks,
decodes the payload and marks the receipt consumed. Then the dispatcher
lock is released and exec is called, when exec fails the receipt is
released.
*/
func (d *Dispatcher) consume(ctx context.Context, proof *types.OutcomeProof, executor string, blockHeight uint64, decode func([]byte) error, exec func() error) error {
	if err := proof.IsValid(); err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	ok, err := d.prover.Verify(ctx, proof, executor, blockHeight)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: receipt %s", ErrVerificationFailed, proof.ReceiptID)
	}
	if proof.ExecutorID != executor {
		return fmt.Errorf("%w: executor %q, expected %q", ErrVerificationFailed, proof.ExecutorID, executor)
	}

	if err := d.markConsumed(proof, blockHeight, decode); err != nil {
		return err
	}
	if err := exec(); err != nil {
		if errors.Is(err, locker.ErrStateDiverged) {
			d.log.Error("receipt kept consumed, state of the failed call diverged", logger.Receipt(proof.ReceiptID), logger.Error(err))
			return err
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if rerr := d.replay.release(proof.ReceiptID); rerr != nil {
			d.log.Error("releasing receipt of failed call", logger.Receipt(proof.ReceiptID), logger.Error(rerr))
		}
		return err
	}
	return nil
}

func (d *Dispatcher) markConsumed(proof *types.OutcomeProof, blockHeight uint64, decode func([]byte) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.CurrentHeight()
	if n, err := d.replay.prune(now, d.cfg.ReceiptRetention); err != nil {
		d.log.Warn("pruning replay ledger", logger.Error(err))
	} else if n > 0 {
		d.log.Debug(fmt.Sprintf("pruned %d receipts", n), logger.Height(now))
	}
	if d.replay.consumed(proof.ReceiptID) {
		return fmt.Errorf("%w: %s", ErrReplayDetected, proof.ReceiptID)
	}
	if blockHeight > now {
		return fmt.Errorf("%w: anchor height %d is ahead of current height %d", ErrStaleProof, blockHeight, now)
	}
	if now-blockHeight > d.cfg.ClaimPeriod {
		return fmt.Errorf("%w: anchor height %d, current height %d", ErrStaleProof, blockHeight, now)
	}
	if err := decode(proof.SuccessValue); err != nil {
		return err
	}
	return d.replay.consume(proof.ReceiptID, blockHeight, now)
}

func (d *Dispatcher) execute(ctx context.Context, lck Locker, registry Registry, cmd command.Command) error {
	caller := d.address
	switch c := cmd.(type) {
	case command.SetReserveRatio:
		return lck.SetReserveRatio(ctx, caller, c.Ratio)
	case command.SetMinHarvest:
		return lck.SetMinHarvest(ctx, caller, c.Amount)
	case command.DepositToStrategy:
		return lck.DepositToStrategy(ctx, caller, c.Strategy, c.Amount)
	case command.DepositAllToStrategy:
		return lck.DepositAllToStrategy(ctx, caller, c.Strategy)
	case command.WithdrawFromStrategy:
		return lck.WithdrawFromStrategy(ctx, caller, c.Strategy, c.Amount)
	case command.WithdrawAllFromStrategy:
		return lck.WithdrawAllFromStrategy(ctx, caller, c.Strategy)
	case command.SetLockerRewardsRatio:
		return lck.SetRewardsRatio(ctx, caller, c.Ratio)
	case command.Harvest:
		return lck.Harvest(ctx, caller, c.Strategy)
	case command.HarvestAll:
		return lck.HarvestAll(ctx, caller)
	case command.SetRegistryRewardsRatio:
		return registry.SetRewardsRatio(ctx, caller, c.Ratio)
	case command.SetFreezingPeriod:
		return registry.SetFreezingPeriod(ctx, caller, c.Period)
	default:
		return fmt.Errorf("%w: %T", command.ErrUnknownCommand, cmd)
	}
}

func (d *Dispatcher) wiring() (HeaderStore, Locker, Registry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.headerStore == nil {
		return nil, nil, nil, ErrNotWired
	}
	return d.headerStore, d.locker, d.registry, nil
}
