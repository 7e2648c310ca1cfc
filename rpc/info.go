package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/bridge/dispatcher"
	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/bridge/registry"
	"github.com/rainbow-dao/drn/ledger"
	"github.com/rainbow-dao/drn/node"
	"github.com/rainbow-dao/drn/types"
)

type (
	// bridgeNode is implemented by *node.Node.
	bridgeNode interface {
		Execute(ctx context.Context, call *node.SignedCall) (*node.CallResult, error)
		RelayCommandFromDao(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) error
		UnlockEth(ctx context.Context, proof *types.OutcomeProof, blockHeight uint64) (*locker.UnlockResult, error)
		Ledger() *ledger.Ledger
		Locker() *locker.Locker
		Registry() *registry.Registry
		Dispatcher() *dispatcher.Dispatcher
	}

	AccountInfo struct {
		Address types.Address  `json:"address"`
		Balance *hexutil.Big   `json:"balance"`
		Nonce   hexutil.Uint64 `json:"nonce"`
	}

	RelayerInfo struct {
		Address      types.Address  `json:"address"`
		Stake        *hexutil.Big   `json:"stake"`
		Score        hexutil.Uint64 `json:"score"`
		Role         string         `json:"role"`
		RegisteredAt hexutil.Uint64 `json:"registeredAt"`
		UnlockAt     hexutil.Uint64 `json:"unlockAt,omitempty"`
	}

	LockerInfo struct {
		Address         types.Address           `json:"address"`
		Balance         *hexutil.Big            `json:"balance"`
		LockedEth       *hexutil.Big            `json:"lockedEth"`
		Reserve         *hexutil.Big            `json:"reserve"`
		ReserveRatio    hexutil.Uint64          `json:"reserveRatio"`
		MinReserveRatio hexutil.Uint64          `json:"minReserveRatio"`
		RewardsRatio    hexutil.Uint64          `json:"rewardsRatio"`
		MinHarvest      *hexutil.Big            `json:"minHarvest"`
		Strategies      []StrategyInfo          `json:"strategies"`
		Debts           map[string]*hexutil.Big `json:"debts"`
	}

	StrategyInfo struct {
		Address  types.Address `json:"address"`
		Invested *hexutil.Big  `json:"invested"`
	}

	StatusInfo struct {
		Height            hexutil.Uint64 `json:"height"`
		LastRelayedHeight hexutil.Uint64 `json:"lastRelayedHeight"`
		ActiveRelayers    int            `json:"activeRelayers"`
		DAOAccount        string         `json:"daoAccount"`
		FactoryAccount    string         `json:"factoryAccount"`
	}

	CallResultInfo struct {
		Signer types.Address  `json:"signer"`
		Nonce  hexutil.Uint64 `json:"nonce"`
		Score  hexutil.Uint64 `json:"score,omitempty"`
		Paid   *hexutil.Big   `json:"paid,omitempty"`
	}

	UnlockInfo struct {
		Paid      *hexutil.Big `json:"paid"`
		Debt      *hexutil.Big `json:"debt"`
		TotalDebt *hexutil.Big `json:"totalDebt"`
	}
)

func hexAmount(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(v.ToBig())
}

func accountInfo(n bridgeNode, addr types.Address) *AccountInfo {
	return &AccountInfo{
		Address: addr,
		Balance: hexAmount(n.Ledger().BalanceOf(addr)),
		Nonce:   hexutil.Uint64(n.Ledger().Nonce(addr)),
	}
}

func relayerInfo(r *registry.Relayer) *RelayerInfo {
	return &RelayerInfo{
		Address:      r.Address,
		Stake:        hexAmount(r.Stake),
		Score:        hexutil.Uint64(r.Score),
		Role:         r.Role.String(),
		RegisteredAt: hexutil.Uint64(r.RegisteredAt),
		UnlockAt:     hexutil.Uint64(r.UnlockAt),
	}
}

func relayersInfo(n bridgeNode) []*RelayerInfo {
	relayers := n.Registry().Relayers()
	res := make([]*RelayerInfo, len(relayers))
	for i, r := range relayers {
		res[i] = relayerInfo(r)
	}
	return res
}

func lockerInfo(n bridgeNode) *LockerInfo {
	l := n.Locker()
	info := &LockerInfo{
		Address:         l.Address(),
		Balance:         hexAmount(l.Balance()),
		LockedEth:       hexAmount(l.LockedEth()),
		Reserve:         hexAmount(l.Reserve()),
		ReserveRatio:    hexutil.Uint64(l.ReserveRatio()),
		MinReserveRatio: hexutil.Uint64(l.MinReserveRatio()),
		RewardsRatio:    hexutil.Uint64(l.RewardsRatio()),
		MinHarvest:      hexAmount(l.MinHarvest()),
		Strategies:      []StrategyInfo{},
		Debts:           map[string]*hexutil.Big{},
	}
	for _, s := range l.Strategies() {
		info.Strategies = append(info.Strategies, StrategyInfo{Address: s, Invested: hexAmount(l.Invested(s))})
	}
	for creditor, debt := range l.Debts() {
		info.Debts[creditor.Hex()] = hexAmount(debt)
	}
	return info
}

func statusInfo(n bridgeNode) *StatusInfo {
	cfg := n.Dispatcher().Config()
	return &StatusInfo{
		Height:            hexutil.Uint64(n.Ledger().CurrentHeight()),
		LastRelayedHeight: hexutil.Uint64(n.Dispatcher().LastRelayedHeight()),
		ActiveRelayers:    n.Registry().ActiveCount(),
		DAOAccount:        cfg.DAOAccount,
		FactoryAccount:    cfg.FactoryAccount,
	}
}

func unlockInfo(res *locker.UnlockResult) *UnlockInfo {
	return &UnlockInfo{Paid: hexAmount(res.Paid), Debt: hexAmount(res.Debt), TotalDebt: hexAmount(res.TotalDebt)}
}
