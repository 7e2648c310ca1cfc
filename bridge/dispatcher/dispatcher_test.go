package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rainbow-dao/drn/bridge/command"
	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/bridge/registry"
	"github.com/rainbow-dao/drn/bridge/strategy"
	"github.com/rainbow-dao/drn/event"
	test "github.com/rainbow-dao/drn/internal/testutils"
	"github.com/rainbow-dao/drn/internal/testutils/clock"
	testevent "github.com/rainbow-dao/drn/internal/testutils/event"
	testlogger "github.com/rainbow-dao/drn/internal/testutils/logger"
	testremote "github.com/rainbow-dao/drn/internal/testutils/remote"
	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/keyvaluedb/memorydb"
	"github.com/rainbow-dao/drn/ledger"
	"github.com/rainbow-dao/drn/types"
)

const startHeight = 100000

var (
	dispatcherID = types.ContractAddress("dispatcher")
	lockerID     = types.ContractAddress("locker")
	registryID   = types.ContractAddress("registry")
	vaultID      = types.ContractAddress("vault")
	relayer1     = types.HexToAddress("0x01")
	relayer2     = types.HexToAddress("0x02")
	user         = types.HexToAddress("0x03")
)

type testEnv struct {
	dispatcher  *Dispatcher
	locker      *locker.Locker
	registry    *registry.Registry
	vault       *strategy.Vault
	bank        *ledger.Ledger
	lockerDB    *memorydb.MemoryDB
	clock       *clock.Manual
	prover      *testremote.MockProver
	headerStore *testremote.MockHeaderStore
	events      *testevent.TestEventHandler
}

func newTestEnv(t *testing.T, cfg Config, db keyvaluedb.KeyValueDB) *testEnv {
	t.Helper()
	log := testlogger.New(t)
	clk := clock.New(startHeight)
	bank, err := ledger.New(nil, log)
	require.NoError(t, err)
	for _, addr := range []types.Address{relayer1, relayer2, user} {
		require.NoError(t, bank.Mint(addr, types.Ether(100)))
	}
	eh := &testevent.TestEventHandler{}

	vault, err := strategy.NewVault(vaultID, bank, nil, log)
	require.NoError(t, err)
	lockerDB := memorydb.New()
	lck, err := locker.New(lockerID, bank, locker.DefaultConfig(), log, locker.WithStrategy(vault), locker.WithEventHandler(eh.HandleEvent), locker.WithStore(lockerDB))
	require.NoError(t, err)
	reg, err := registry.New(registryID, bank, clk, registry.DefaultConfig(), log, registry.WithEventHandler(eh.HandleEvent))
	require.NoError(t, err)
	require.NoError(t, lck.InitDispatcher(dispatcherID))
	require.NoError(t, reg.InitDispatcher(dispatcherID))

	prover := &testremote.MockProver{}
	hs := &testremote.MockHeaderStore{}
	opts := []Option{WithEventHandler(eh.HandleEvent)}
	if db != nil {
		opts = append(opts, WithStore(db))
	}
	d, err := New(dispatcherID, prover, clk, cfg, log, opts...)
	require.NoError(t, err)
	require.NoError(t, d.InitRelativeContracts(hs, lck, reg))

	return &testEnv{
		dispatcher:  d,
		locker:      lck,
		registry:    reg,
		vault:       vault,
		bank:        bank,
		lockerDB:    lockerDB,
		clock:       clk,
		prover:      prover,
		headerStore: hs,
		events:      eh,
	}
}

func daoProof(cmd command.Command) *types.OutcomeProof {
	return test.RandomProof("rainbowdao", command.Encode(cmd))
}

func unlockProof(amount *uint256.Int, recipient types.Address) *types.OutcomeProof {
	return test.RandomProof("neareth", (&command.Unlock{Amount: amount, Recipient: recipient}).Encode())
}

func TestNew(t *testing.T) {
	log := testlogger.New(t)
	clk := clock.New(1)

	_, err := New(dispatcherID, nil, clk, DefaultConfig(), log)
	require.EqualError(t, err, "prover is nil")
	_, err = New(dispatcherID, &testremote.MockProver{}, nil, DefaultConfig(), log)
	require.EqualError(t, err, "clock is nil")

	_, err = New(dispatcherID, &testremote.MockProver{}, clk, Config{Score: ScorePolicy{MediumMinAdvance: 2, HighMinAdvance: 1}}, log)
	require.ErrorContains(t, err, "DAO account is empty")
	require.ErrorContains(t, err, "factory account is empty")
	require.ErrorContains(t, err, "claim period must be positive")
	require.ErrorContains(t, err, "medium score advance exceeds high score advance")
}

func TestInitRelativeContracts(t *testing.T) {
	ctx := context.Background()
	d, err := New(dispatcherID, &testremote.MockProver{}, clock.New(1), DefaultConfig(), testlogger.New(t))
	require.NoError(t, err)

	_, err = d.RelayLightClientBlock(ctx, relayer1, &types.LightClientBlock{Height: 1})
	require.ErrorIs(t, err, ErrNotWired)
	require.ErrorIs(t, d.RelayCommandFromDao(ctx, daoProof(command.HarvestAll{}), 1), ErrNotWired)
	_, err = d.UnlockEth(ctx, unlockProof(uint256.NewInt(1), user), 1)
	require.ErrorIs(t, err, ErrNotWired)

	env := newTestEnv(t, DefaultConfig(), nil)
	require.EqualError(t, d.InitRelativeContracts(nil, env.locker, env.registry), "relative contract is nil")
	require.NoError(t, d.InitRelativeContracts(env.headerStore, env.locker, env.registry))
	require.ErrorIs(t, d.InitRelativeContracts(env.headerStore, env.locker, env.registry), ErrAlreadyWired)
}

func TestRelayCommandFromDao(t *testing.T) {
	ctx := context.Background()

	t.Run("command is executed once", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		proof := daoProof(command.SetReserveRatio{Ratio: 5000})
		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight))
		require.EqualValues(t, 5000, env.locker.ReserveRatio())
		require.True(t, env.dispatcher.Consumed(proof.ReceiptID))
		require.Equal(t, []any{&CommandRelayedEvent{ReceiptID: proof.ReceiptID, Command: command.SetReserveRatio{Ratio: 5000}}}, env.events.Of(event.CommandRelayed))

		calls := env.prover.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, "rainbowdao", calls[0].ExpectedExecutor)
		require.EqualValues(t, startHeight, calls[0].BlockHeight)

		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(command.SetReserveRatio{Ratio: 3000}), startHeight))
		require.EqualValues(t, 3000, env.locker.ReserveRatio())

		err := env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight)
		require.ErrorIs(t, err, ErrReplayDetected)
		require.EqualValues(t, 3000, env.locker.ReserveRatio())
		require.Len(t, env.events.Of(event.CommandRelayed), 2)
	})

	t.Run("verification", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		cmd := command.SetReserveRatio{Ratio: 5000}

		err := env.dispatcher.RelayCommandFromDao(ctx, test.RandomProof("neareth", command.Encode(cmd)), startHeight)
		require.ErrorIs(t, err, ErrVerificationFailed)
		require.ErrorContains(t, err, `executor "neareth", expected "rainbowdao"`)

		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, nil, startHeight), types.ErrProofIsNil)

		env.prover.Reject = true
		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(cmd), startHeight), ErrVerificationFailed)

		env.prover.Reject = false
		env.prover.Err = errors.New("prover unavailable")
		err = env.dispatcher.RelayCommandFromDao(ctx, daoProof(cmd), startHeight)
		require.ErrorIs(t, err, ErrVerificationFailed)
		require.ErrorIs(t, err, env.prover.Err)

		require.EqualValues(t, 4000, env.locker.ReserveRatio())
		testevent.NotContainsEvent(t, env.events, event.CommandRelayed)
	})

	t.Run("claim period", func(t *testing.T) {
		cfg := DefaultConfig()
		env := newTestEnv(t, cfg, nil)

		proof := daoProof(command.SetReserveRatio{Ratio: 1})
		err := env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight-cfg.ClaimPeriod-1)
		require.ErrorIs(t, err, ErrStaleProof)
		require.False(t, env.dispatcher.Consumed(proof.ReceiptID))

		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight-cfg.ClaimPeriod))
		require.EqualValues(t, 1, env.locker.ReserveRatio())

		ahead := daoProof(command.SetReserveRatio{Ratio: 2})
		err = env.dispatcher.RelayCommandFromDao(ctx, ahead, startHeight+1)
		require.ErrorIs(t, err, ErrStaleProof)
		require.ErrorContains(t, err, "anchor height 100001 is ahead of current height 100000")
		require.False(t, env.dispatcher.Consumed(ahead.ReceiptID))
		require.EqualValues(t, 1, env.locker.ReserveRatio())

		env.clock.Set(startHeight + 1)
		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, ahead, startHeight+1))
		require.EqualValues(t, 2, env.locker.ReserveRatio())
	})

	t.Run("malformed payload consumes nothing", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		proof := test.RandomProof("rainbowdao", []byte{12, 1, 2})
		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight), command.ErrUnknownCommand)
		require.False(t, env.dispatcher.Consumed(proof.ReceiptID))

		proof = test.RandomProof("rainbowdao", []byte{byte(command.CodeSetReserveRatio), 1})
		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight), command.ErrMalformedPayload)
		require.False(t, env.dispatcher.Consumed(proof.ReceiptID))
	})

	t.Run("failing target releases the receipt", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		proof := daoProof(command.SetReserveRatio{Ratio: 10001})
		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight), locker.ErrInvalidRatio)
		require.False(t, env.dispatcher.Consumed(proof.ReceiptID))
		// and can be retried
		require.ErrorIs(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight), locker.ErrInvalidRatio)
		testevent.NotContainsEvent(t, env.events, event.CommandRelayed)
	})

	t.Run("registry commands", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(command.SetFreezingPeriod{Period: 42}), startHeight))
		require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(command.SetRegistryRewardsRatio{Ratio: 7}), startHeight))
		cfg := env.registry.Config()
		require.EqualValues(t, 42, cfg.FreezingPeriod)
		require.EqualValues(t, 7, cfg.RewardsRatio)
	})

	t.Run("locker commands", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil)
		require.NoError(t, env.locker.LockEth(ctx, types.Call{From: user, Value: types.Ether(10)}, "user.near"))
		for _, cmd := range []command.Command{
			command.SetMinHarvest{Amount: uint256.NewInt(5)},
			command.SetLockerRewardsRatio{Ratio: 100},
			command.DepositToStrategy{Strategy: vaultID, Amount: types.Ether(2)},
			command.WithdrawFromStrategy{Strategy: vaultID, Amount: types.Ether(1)},
			command.DepositAllToStrategy{Strategy: vaultID},
			command.Harvest{Strategy: vaultID},
			command.HarvestAll{},
			command.WithdrawAllFromStrategy{Strategy: vaultID},
		} {
			require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(cmd), startHeight), "command %s", cmd.Code())
		}
		require.Equal(t, uint256.NewInt(5), env.locker.MinHarvest())
		require.EqualValues(t, 100, env.locker.RewardsRatio())
		require.True(t, env.locker.Invested(vaultID).IsZero())
		require.Equal(t, types.Ether(10), env.locker.Balance())
		require.Len(t, env.events.Of(event.StrategyDeposit), 2)
		require.Len(t, env.events.Of(event.StrategyWithdrawal), 2)
		require.Len(t, env.events.Of(event.CommandRelayed), 8)
	})
}

func TestRelayCommandFromDao_reentrantReplay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)

	d, err := New(types.ContractAddress("dispatcher2"), env.prover, env.clock, DefaultConfig(), testlogger.New(t))
	require.NoError(t, err)
	proof := daoProof(command.SetReserveRatio{Ratio: 1})
	rl := &reentrantLocker{}
	rl.reenter = func() error {
		return d.RelayCommandFromDao(ctx, proof, startHeight)
	}
	require.NoError(t, d.InitRelativeContracts(env.headerStore, rl, env.registry))

	require.NoError(t, d.RelayCommandFromDao(ctx, proof, startHeight))
	require.Equal(t, 1, rl.calls)
	require.ErrorIs(t, rl.innerErr, ErrReplayDetected)
}

// reentrantLocker calls back into the dispatcher from the routed operation.
type reentrantLocker struct {
	Locker
	reenter  func() error
	innerErr error
	calls    int
}

func (l *reentrantLocker) SetReserveRatio(context.Context, types.Address, uint64) error {
	l.calls++
	l.innerErr = l.reenter()
	return nil
}

func TestUnlockEth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)
	require.NoError(t, env.locker.LockEth(ctx, types.Call{From: user, Value: types.Ether(10)}, "user.near"))

	recipient := types.HexToAddress("0x0c")
	proof := unlockProof(types.Ether(3), recipient)
	res, err := env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.NoError(t, err)
	require.Equal(t, types.Ether(3), res.Paid)
	require.True(t, res.Debt.IsZero())
	require.Equal(t, types.Ether(3), env.bank.BalanceOf(recipient))
	require.Equal(t, "neareth", env.prover.Calls()[0].ExpectedExecutor)

	_, err = env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.ErrorIs(t, err, ErrReplayDetected)
	require.Equal(t, types.Ether(3), env.bank.BalanceOf(recipient))

	// DAO outcome is not an unlock
	_, err = env.dispatcher.UnlockEth(ctx, test.RandomProof("rainbowdao", (&command.Unlock{Amount: types.Ether(1), Recipient: recipient}).Encode()), startHeight)
	require.ErrorIs(t, err, ErrVerificationFailed)

	_, err = env.dispatcher.UnlockEth(ctx, test.RandomProof("neareth", []byte{1, 2, 3}), startHeight)
	require.ErrorIs(t, err, command.ErrMalformedPayload)

	proof = unlockProof(uint256.NewInt(0), recipient)
	_, err = env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.ErrorIs(t, err, locker.ErrZeroAmount)
	require.False(t, env.dispatcher.Consumed(proof.ReceiptID))

	_, err = env.dispatcher.UnlockEth(ctx, unlockProof(types.Ether(1), recipient), startHeight-DefaultConfig().ClaimPeriod-1)
	require.ErrorIs(t, err, ErrStaleProof)
	require.Equal(t, types.Ether(7), env.locker.LockedEth())
}

func TestUnlockEth_failedCommit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)
	require.NoError(t, env.locker.LockEth(ctx, types.Call{From: user, Value: types.Ether(10)}, "user.near"))

	recipient := types.HexToAddress("0x0c")
	proof := unlockProof(types.Ether(3), recipient)
	env.lockerDB.MockWriteError(errors.New("disk full"))
	_, err := env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.ErrorContains(t, err, "disk full")
	require.False(t, env.dispatcher.Consumed(proof.ReceiptID))
	require.True(t, env.bank.BalanceOf(recipient).IsZero())
	require.Equal(t, types.Ether(10), env.locker.LockedEth())

	// retry after the store recovers pays out once
	env.lockerDB.MockWriteError(nil)
	res, err := env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.NoError(t, err)
	require.Equal(t, types.Ether(3), res.Paid)
	_, err = env.dispatcher.UnlockEth(ctx, proof, startHeight)
	require.ErrorIs(t, err, ErrReplayDetected)
	require.Equal(t, types.Ether(3), env.bank.BalanceOf(recipient))
	require.Equal(t, types.Ether(7), env.locker.LockedEth())
}

func TestUnlockEth_divergedStateKeepsReceipt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)
	d, err := New(types.ContractAddress("dispatcher2"), env.prover, env.clock, DefaultConfig(), testlogger.New(t))
	require.NoError(t, err)
	require.NoError(t, d.InitRelativeContracts(env.headerStore, divergingLocker{}, env.registry))

	proof := unlockProof(types.Ether(1), user)
	_, err = d.UnlockEth(ctx, proof, startHeight)
	require.ErrorIs(t, err, locker.ErrStateDiverged)
	require.True(t, d.Consumed(proof.ReceiptID))
	_, err = d.UnlockEth(ctx, proof, startHeight)
	require.ErrorIs(t, err, ErrReplayDetected)
}

type divergingLocker struct {
	Locker
}

func (divergingLocker) Unlock(context.Context, types.Address, *uint256.Int, types.Address) (*locker.UnlockResult, error) {
	return nil, fmt.Errorf("%w: paying out unlock: ledger unavailable", locker.ErrStateDiverged)
}

func TestRelayCommandFromDao_replayEveryCommand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)
	require.NoError(t, env.locker.LockEth(ctx, types.Call{From: user, Value: types.Ether(20)}, "user.near"))

	for _, cmd := range []command.Command{
		command.SetReserveRatio{Ratio: 4000},
		command.SetMinHarvest{Amount: uint256.NewInt(0)},
		command.DepositToStrategy{Strategy: vaultID, Amount: types.Ether(2)},
		command.DepositAllToStrategy{Strategy: vaultID},
		command.WithdrawFromStrategy{Strategy: vaultID, Amount: types.Ether(1)},
		command.WithdrawAllFromStrategy{Strategy: vaultID},
		command.SetLockerRewardsRatio{Ratio: 100},
		command.Harvest{Strategy: vaultID},
		command.HarvestAll{},
		command.SetRegistryRewardsRatio{Ratio: 7},
		command.SetFreezingPeriod{Period: 42},
	} {
		t.Run(cmd.Code().String(), func(t *testing.T) {
			proof := daoProof(cmd)
			require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight))
			relayed := len(env.events.Of(event.CommandRelayed))
			balance := env.locker.Balance()

			err := env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight)
			require.ErrorIs(t, err, ErrReplayDetected)
			require.Len(t, env.events.Of(event.CommandRelayed), relayed)
			require.Equal(t, balance, env.locker.Balance())
		})
	}
	require.Len(t, env.events.Of(event.CommandRelayed), 11)
}

func TestRelayLightClientBlock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig(), nil)
	block := func(h uint64) *types.LightClientBlock {
		return &types.LightClientBlock{Height: h, Data: []byte{1}}
	}

	_, err := env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(9605))
	require.ErrorIs(t, err, ErrNotEligible)
	require.Empty(t, env.headerStore.Blocks())

	require.NoError(t, env.registry.Register(ctx, types.Call{From: relayer1, Value: types.Ether(5)}))
	_, err = env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(0))
	require.ErrorContains(t, err, "invalid block: block height is zero")

	env.headerStore.Reject = true
	_, err = env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(9605))
	require.ErrorIs(t, err, ErrBlockRejected)
	env.headerStore.Reject = false
	env.headerStore.Err = errors.New("light client down")
	_, err = env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(9605))
	require.ErrorIs(t, err, env.headerStore.Err)
	env.headerStore.Err = nil
	testevent.NotContainsEvent(t, env.events, event.RelayLog)

	policy := DefaultScorePolicy()
	for _, tc := range []struct {
		height uint64
		score  uint64
	}{
		{9605, policy.High},
		{9610, policy.Low},
		{9620, policy.Medium},
		{9670, policy.High},
		{9600, policy.Low},
	} {
		score, err := env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(tc.height))
		require.NoError(t, err)
		require.Equal(t, tc.score, score, "height %d", tc.height)
	}
	require.EqualValues(t, 9670, env.dispatcher.LastRelayedHeight())
	require.Len(t, env.headerStore.Blocks(), 5)
	rl, ok := env.registry.Relayer(relayer1)
	require.True(t, ok)
	require.Equal(t, 2*policy.High+policy.Medium+2*policy.Low, rl.Score)
	require.Equal(t, &RelayLogEvent{Height: 9605, Relayer: relayer1, Score: policy.High}, env.events.Of(event.RelayLog)[0])

	t.Run("withdrawing relayer is not eligible", func(t *testing.T) {
		require.NoError(t, env.registry.Withdraw(ctx, types.Call{From: relayer1}))
		_, err := env.dispatcher.RelayLightClientBlock(ctx, relayer1, block(9700))
		require.ErrorIs(t, err, ErrNotEligible)
	})
}

func TestReplayLedger_prune(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ReceiptRetention = 10
	env := newTestEnv(t, cfg, nil)

	first := daoProof(command.SetReserveRatio{Ratio: 1})
	require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, first, startHeight))

	env.clock.Set(startHeight + 10)
	second := daoProof(command.SetReserveRatio{Ratio: 2})
	require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, second, startHeight))
	require.True(t, env.dispatcher.Consumed(first.ReceiptID))

	env.clock.Set(startHeight + 11)
	require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, daoProof(command.SetReserveRatio{Ratio: 3}), startHeight))
	require.False(t, env.dispatcher.Consumed(first.ReceiptID))
	require.True(t, env.dispatcher.Consumed(second.ReceiptID))
}

func TestDispatcher_persistence(t *testing.T) {
	ctx := context.Background()
	db := memorydb.New()
	env := newTestEnv(t, DefaultConfig(), db)
	require.NoError(t, env.registry.Register(ctx, types.Call{From: relayer2, Value: types.Ether(5)}))

	proof := daoProof(command.SetReserveRatio{Ratio: 1})
	require.NoError(t, env.dispatcher.RelayCommandFromDao(ctx, proof, startHeight))
	_, err := env.dispatcher.RelayLightClientBlock(ctx, relayer2, &types.LightClientBlock{Height: 77})
	require.NoError(t, err)

	d, err := New(dispatcherID, env.prover, env.clock, DefaultConfig(), testlogger.New(t), WithStore(db))
	require.NoError(t, err)
	require.True(t, d.Consumed(proof.ReceiptID))
	require.EqualValues(t, 77, d.LastRelayedHeight())
	require.NoError(t, d.InitRelativeContracts(env.headerStore, env.locker, env.registry))
	require.ErrorIs(t, d.RelayCommandFromDao(ctx, proof, startHeight), ErrReplayDetected)
}
