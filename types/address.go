package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies an account of the local chain (relayer, creditor,
// bridge component).
type Address = common.Address

// ContractAddress derives deterministic account address of a bridge
// component from its name.
func ContractAddress(name string) Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("drn/contract/" + name))[12:])
}

// HexToAddress returns Address with byte values of s, see common.HexToAddress.
func HexToAddress(s string) Address {
	return common.HexToAddress(s)
}

// IsHexAddress verifies whether a string can represent a valid hex-encoded address.
func IsHexAddress(s string) bool {
	return common.IsHexAddress(s)
}
