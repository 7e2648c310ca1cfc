package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rainbow-dao/drn/node"
	"github.com/rainbow-dao/drn/types"
)

// BridgeAPI is the JSON-RPC API of the bridge node, registered in the "drn" namespace.
type BridgeAPI struct {
	node bridgeNode
}

func NewBridgeAPI(n bridgeNode) *BridgeAPI {
	return &BridgeAPI{node: n}
}

// Status returns the current block height and relay state.
func (a *BridgeAPI) Status() *StatusInfo {
	return statusInfo(a.node)
}

func (a *BridgeAPI) GetAccount(addr types.Address) *AccountInfo {
	return accountInfo(a.node, addr)
}

// GetRelayer returns nil when addr is not listed.
func (a *BridgeAPI) GetRelayer(addr types.Address) *RelayerInfo {
	r, ok := a.node.Registry().Relayer(addr)
	if !ok {
		return nil
	}
	return relayerInfo(r)
}

func (a *BridgeAPI) GetRelayers() []*RelayerInfo {
	return relayersInfo(a.node)
}

func (a *BridgeAPI) GetLocker() *LockerInfo {
	return lockerInfo(a.node)
}

func (a *BridgeAPI) GetDebt(creditor types.Address) *hexutil.Big {
	return hexAmount(a.node.Locker().Debt(creditor))
}

// IsConsumed returns true when the receipt has been used by a proof.
func (a *BridgeAPI) IsConsumed(receiptID string) (bool, error) {
	id, err := types.ParseReceiptID(receiptID)
	if err != nil {
		return false, err
	}
	return a.node.Dispatcher().Consumed(id), nil
}

// SendCall executes CBOR encoded signed call.
func (a *BridgeAPI) SendCall(ctx context.Context, callBytes hexutil.Bytes) (*CallResultInfo, error) {
	call := &node.SignedCall{}
	if err := types.CborDecode(callBytes, call); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}
	res, err := a.node.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	return &CallResultInfo{
		Signer: res.Signer,
		Nonce:  hexutil.Uint64(res.Nonce),
		Score:  hexutil.Uint64(res.Score),
		Paid:   hexAmount(res.Paid),
	}, nil
}

// RelayCommandFromDao executes the DAO command of the CBOR encoded outcome proof.
func (a *BridgeAPI) RelayCommandFromDao(ctx context.Context, proofBytes hexutil.Bytes, blockHeight hexutil.Uint64) error {
	proof, err := types.DecodeOutcomeProof(proofBytes)
	if err != nil {
		return err
	}
	return a.node.RelayCommandFromDao(ctx, proof, uint64(blockHeight))
}

// UnlockEth executes the unlock of the CBOR encoded outcome proof.
func (a *BridgeAPI) UnlockEth(ctx context.Context, proofBytes hexutil.Bytes, blockHeight hexutil.Uint64) (*UnlockInfo, error) {
	proof, err := types.DecodeOutcomeProof(proofBytes)
	if err != nil {
		return nil, err
	}
	res, err := a.node.UnlockEth(ctx, proof, uint64(blockHeight))
	if err != nil {
		return nil, err
	}
	return unlockInfo(res), nil
}
