package types

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrProofIsNil = errors.New("proof is nil")

type (
	// ReceiptID is the remote chain receipt identifier of an outcome, it is
	// unique per remote execution result.
	ReceiptID [32]byte

	// OutcomeProof is an opaque remote chain execution outcome together with
	// the inclusion proof data which only the Prover interprets.
	OutcomeProof struct {
		_            struct{} `cbor:",toarray"`
		ReceiptID    ReceiptID
		ExecutorID   string   // remote account which produced the outcome
		SuccessValue []byte   // payload of the successful execution
		BlockHash    [32]byte // remote block the outcome is included in
		Proof        []byte
	}

	// LightClientBlock is a remote chain header relayed to the header store.
	LightClientBlock struct {
		_             struct{} `cbor:",toarray"`
		PrevBlockHash [32]byte
		Hash          [32]byte
		Height        uint64
		Data          []byte // opaque to the bridge core, interpreted by the header store
	}
)

func (id ReceiptID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseReceiptID decodes hex encoded receipt id.
func ParseReceiptID(s string) (ReceiptID, error) {
	var id ReceiptID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decoding receipt id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid receipt id length %d, expected %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

func (p *OutcomeProof) IsValid() error {
	if p == nil {
		return ErrProofIsNil
	}
	if p.ExecutorID == "" {
		return errors.New("executor id is empty")
	}
	if p.ReceiptID == (ReceiptID{}) {
		return errors.New("receipt id is empty")
	}
	return nil
}

// DecodeOutcomeProof decodes CBOR encoded proof.
func DecodeOutcomeProof(data []byte) (*OutcomeProof, error) {
	p := &OutcomeProof{}
	if err := CborDecode(data, p); err != nil {
		return nil, fmt.Errorf("decoding outcome proof: %w", err)
	}
	return p, nil
}

func (b *LightClientBlock) IsValid() error {
	if b == nil {
		return errors.New("block is nil")
	}
	if b.Height == 0 {
		return errors.New("block height is zero")
	}
	return nil
}
