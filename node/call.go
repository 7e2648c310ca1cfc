package node

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

const (
	MethodRegister              = "register"
	MethodWithdraw              = "withdraw"
	MethodLockEth               = "lockEth"
	MethodRelayLightClientBlock = "relayLightClientBlock"
	MethodRepayDebt             = "repayDebt"
	MethodAddProfit             = "addProfit"
)

var (
	ErrUnknownMethod   = errors.New("unknown method")
	ErrInvalidSig      = errors.New("invalid signature")
	ErrUnexpectedValue = errors.New("method does not accept value")
)

type (
	/*
		SignedCall is a state changing call of a host ledger account. The
		signer is recovered from the secp256k1 signature over the keccak256
		hash of the CBOR encoded call without the signature.
	*/
	SignedCall struct {
		_         struct{} `cbor:",toarray"`
		Method    string
		Args      []byte // CBOR encoded method arguments
		Value     *uint256.Int
		Nonce     uint64
		Signature []byte
	}

	LockEthArgs struct {
		_         struct{} `cbor:",toarray"`
		AccountID string
	}

	RepayDebtArgs struct {
		_        struct{} `cbor:",toarray"`
		Creditor types.Address
	}

	CallResult struct {
		Signer types.Address
		Nonce  uint64
		// Score of the relayed block.
		Score uint64
		// Paid is the amount of debt repaid.
		Paid *uint256.Int
	}
)

// NewCall creates unsigned call with CBOR encoded args, args may be nil.
func NewCall(method string, args any, value *uint256.Int, nonce uint64) (*SignedCall, error) {
	c := &SignedCall{Method: method, Value: value, Nonce: nonce}
	if args != nil {
		b, err := types.Cbor(args)
		if err != nil {
			return nil, fmt.Errorf("encoding %s arguments: %w", method, err)
		}
		c.Args = b
	}
	return c, nil
}

func (c *SignedCall) SigBytes() ([]byte, error) {
	cp := *c
	cp.Signature = nil
	return types.Cbor(&cp)
}

func (c *SignedCall) Hash() ([]byte, error) {
	b, err := c.SigBytes()
	if err != nil {
		return nil, fmt.Errorf("encoding call: %w", err)
	}
	return crypto.Keccak256(b), nil
}

func (c *SignedCall) Sign(key *ecdsa.PrivateKey) error {
	h, err := c.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(h, key)
	if err != nil {
		return fmt.Errorf("signing call: %w", err)
	}
	c.Signature = sig
	return nil
}

// Signer recovers the address of the account which signed the call.
func (c *SignedCall) Signer() (types.Address, error) {
	if len(c.Signature) != crypto.SignatureLength {
		return types.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSig, len(c.Signature))
	}
	h, err := c.Hash()
	if err != nil {
		return types.Address{}, err
	}
	pub, err := crypto.SigToPub(h, c.Signature)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %w", ErrInvalidSig, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (c *SignedCall) value() *uint256.Int {
	return types.AmountOrZero(c.Value)
}

func (c *SignedCall) decodeArgs(v any) error {
	if err := types.CborDecode(c.Args, v); err != nil {
		return fmt.Errorf("decoding %s arguments: %w", c.Method, err)
	}
	return nil
}
