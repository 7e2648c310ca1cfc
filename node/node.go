/*
Package node hosts the bridge components on the local ledger: it wires the
dispatcher, the relay registry and the asset locker, serializes all state
changing calls and advances the block height.
*/
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/bridge/dispatcher"
	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/bridge/registry"
	"github.com/rainbow-dao/drn/bridge/strategy"
	"github.com/rainbow-dao/drn/internal/metrics"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/keyvaluedb/boltdb"
	"github.com/rainbow-dao/drn/keyvaluedb/memorydb"
	"github.com/rainbow-dao/drn/ledger"
	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

var (
	DispatcherAddress = types.ContractAddress("dispatcher")
	LockerAddress     = types.ContractAddress("locker")
	RegistryAddress   = types.ContractAddress("registry")
	VaultAddress      = types.ContractAddress("vault")
)

type (
	// RemoteChain is the outcome prover and the light client of the remote chain.
	RemoteChain interface {
		dispatcher.Prover
		dispatcher.HeaderStore
	}

	Node struct {
		// mu serializes state changing calls
		mu         sync.Mutex
		cfg        *Config
		ledger     *ledger.Ledger
		locker     *locker.Locker
		registry   *registry.Registry
		dispatcher *dispatcher.Dispatcher
		vault      *strategy.Vault
		closers    []io.Closer
		log        *slog.Logger

		heightGauge   *metrics.Gauge
		relayersGauge *metrics.Gauge
		debtorsGauge  *metrics.Gauge
		callCounter   *metrics.Counter
	}
)

func New(cfg *Config, remote RemoteChain, log *slog.Logger) (n *Node, err error) {
	if cfg == nil {
		return nil, errors.New("node configuration is nil")
	}
	if remote == nil {
		return nil, errors.New("remote chain is nil")
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid node configuration: %w", err)
	}
	n = &Node{
		cfg:           cfg,
		log:           log,
		heightGauge:   metrics.GetOrRegisterGauge("drn/height"),
		relayersGauge: metrics.GetOrRegisterGauge("drn/relayers"),
		debtorsGauge:  metrics.GetOrRegisterGauge("drn/debtors"),
		callCounter:   metrics.GetOrRegisterCounter("drn/calls"),
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, n.Close())
		}
	}()

	ledgerDB, err := n.openDB("ledger")
	if err != nil {
		return nil, err
	}
	fresh := ledgerDB.Empty()
	if n.ledger, err = ledger.New(ledgerDB, log.With(logger.Module("ledger"))); err != nil {
		return nil, err
	}
	if fresh && cfg.Genesis != nil {
		if err := n.applyGenesis(cfg.Genesis); err != nil {
			return nil, fmt.Errorf("applying genesis: %w", err)
		}
	}

	events := cfg.EventHandler
	if metrics.Enabled() {
		events = metrics.EventCounter(events)
	}

	vaultDB, err := n.openDB("vault")
	if err != nil {
		return nil, err
	}
	if n.vault, err = strategy.NewVault(VaultAddress, n.ledger, vaultDB, log); err != nil {
		return nil, err
	}

	lockerDB, err := n.openDB("locker")
	if err != nil {
		return nil, err
	}
	n.locker, err = locker.New(LockerAddress, n.ledger, cfg.Locker, log,
		locker.WithStore(lockerDB),
		locker.WithStrategy(n.vault),
		locker.WithEventHandler(events))
	if err != nil {
		return nil, err
	}

	registryDB, err := n.openDB("registry")
	if err != nil {
		return nil, err
	}
	n.registry, err = registry.New(RegistryAddress, n.ledger, n.ledger, cfg.Registry, log,
		registry.WithStore(registryDB),
		registry.WithEventHandler(events))
	if err != nil {
		return nil, err
	}

	dispatcherDB, err := n.openDB("dispatcher")
	if err != nil {
		return nil, err
	}
	n.dispatcher, err = dispatcher.New(DispatcherAddress, remote, n.ledger, cfg.Dispatcher, log,
		dispatcher.WithStore(dispatcherDB),
		dispatcher.WithEventHandler(events))
	if err != nil {
		return nil, err
	}

	if err := n.locker.InitDispatcher(DispatcherAddress); err != nil {
		return nil, fmt.Errorf("wiring locker: %w", err)
	}
	if err := n.registry.InitDispatcher(DispatcherAddress); err != nil {
		return nil, fmt.Errorf("wiring registry: %w", err)
	}
	if err := n.dispatcher.InitRelativeContracts(remote, n.locker, n.registry); err != nil {
		return nil, fmt.Errorf("wiring dispatcher: %w", err)
	}
	n.updateGauges()
	return n, nil
}

func (n *Node) openDB(name string) (keyvaluedb.KeyValueDB, error) {
	if n.cfg.DataDir == "" {
		return memorydb.New(), nil
	}
	if err := os.MkdirAll(n.cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := boltdb.New(filepath.Join(n.cfg.DataDir, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", name, err)
	}
	n.closers = append(n.closers, db)
	return db, nil
}

func (n *Node) applyGenesis(g *Genesis) error {
	alloc, err := g.Allocations()
	if err != nil {
		return err
	}
	for addr, amount := range alloc {
		if err := n.ledger.Mint(addr, amount); err != nil {
			return err
		}
	}
	if _, err := n.ledger.SetHeight(g.Height); err != nil {
		return err
	}
	n.log.Info(fmt.Sprintf("genesis applied, %d accounts allocated", len(alloc)), logger.Height(g.Height))
	return nil
}

// Run advances block height every BlockInterval until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()
	n.log.Info("node started", logger.Height(n.ledger.CurrentHeight()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := n.AdvanceHeight(); err != nil {
				return fmt.Errorf("advancing block height: %w", err)
			}
		}
	}
}

func (n *Node) AdvanceHeight() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, err := n.ledger.AdvanceHeight()
	if err != nil {
		return 0, err
	}
	n.heightGauge.Update(int64(h))
	return h, nil
}

// Execute runs the signed call. The nonce of the signer is used even when the
// called operation fails.
func (n *Node) Execute(ctx context.Context, call *SignedCall) (*CallResult, error) {
	signer, err := call.Signer()
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.updateGauges()

	if err := n.ledger.UseNonce(signer, call.Nonce); err != nil {
		return nil, err
	}
	n.callCounter.Inc(1)
	start := time.Now()
	res := &CallResult{Signer: signer, Nonce: call.Nonce}
	if err := n.execute(ctx, signer, call, res); err != nil {
		n.log.Debug("call failed", logger.Address(signer), slog.String("method", call.Method), logger.Error(err))
		return nil, fmt.Errorf("%s: %w", call.Method, err)
	}
	n.log.Debug("call executed", logger.Address(signer), slog.String("method", call.Method), logger.Elapsed(start))
	return res, nil
}

func (n *Node) execute(ctx context.Context, signer types.Address, call *SignedCall, res *CallResult) error {
	tc := types.Call{From: signer, Value: call.value()}
	switch call.Method {
	case MethodRegister:
		return n.registry.Register(ctx, tc)
	case MethodLockEth:
		args := &LockEthArgs{}
		if err := call.decodeArgs(args); err != nil {
			return err
		}
		return n.locker.LockEth(ctx, tc, args.AccountID)
	case MethodAddProfit:
		return n.vault.AddProfit(signer, LockerAddress, tc.Value)
	}

	if !tc.Value.IsZero() {
		return ErrUnexpectedValue
	}
	switch call.Method {
	case MethodWithdraw:
		return n.registry.Withdraw(ctx, tc)
	case MethodRelayLightClientBlock:
		block := &types.LightClientBlock{}
		if err := call.decodeArgs(block); err != nil {
			return err
		}
		score, err := n.dispatcher.RelayLightClientBlock(ctx, signer, block)
		res.Score = score
		return err
	case MethodRepayDebt:
		args := &RepayDebtArgs{}
		if err := call.decodeArgs(args); err != nil {
			return err
		}
		paid, err := n.locker.RepayDebt(ctx, args.Creditor)
		res.Paid = paid
		return err
	default:
		return fmt.Errorf("%w %q", ErrUnknownMethod, call.Method)
	}
}

// RelayCommandFromDao submits DAO command proof, anybody may submit proofs.
func (n *Node) RelayCommandFromDao(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dispatcher.RelayCommandFromDao(ctx, proof, blockHeight)
}

// UnlockEth submits unlock proof, anybody may submit proofs.
func (n *Node) UnlockEth(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) (*locker.UnlockResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.updateGauges()
	return n.dispatcher.UnlockEth(ctx, proof, blockHeight)
}

func (n *Node) updateGauges() {
	if !metrics.Enabled() {
		return
	}
	n.heightGauge.Update(int64(n.ledger.CurrentHeight()))
	n.relayersGauge.Update(int64(n.registry.ActiveCount()))
	n.debtorsGauge.Update(int64(len(n.locker.Debts())))
}

func (n *Node) Ledger() *ledger.Ledger                 { return n.ledger }
func (n *Node) Locker() *locker.Locker                 { return n.locker }
func (n *Node) Registry() *registry.Registry           { return n.registry }
func (n *Node) Dispatcher() *dispatcher.Dispatcher     { return n.dispatcher }
func (n *Node) Vault() *strategy.Vault                 { return n.vault }
func (n *Node) Balance(addr types.Address) *uint256.Int { return n.ledger.BalanceOf(addr) }

// Close closes the component stores.
func (n *Node) Close() error {
	var errs []error
	for _, c := range n.closers {
		errs = append(errs, c.Close())
	}
	n.closers = nil
	return errors.Join(errs...)
}
