package test

import (
	"crypto/rand"

	"github.com/rainbow-dao/drn/types"
)

func RandomBytes(len int) []byte {
	bytes := make([]byte, len)
	_, err := rand.Read(bytes)
	if err != nil {
		panic(err)
	}
	return bytes
}

func RandomReceiptID() types.ReceiptID {
	var id types.ReceiptID
	copy(id[:], RandomBytes(len(id)))
	return id
}

// RandomProof returns outcome proof of the executor with random receipt id.
func RandomProof(executor string, payload []byte) *types.OutcomeProof {
	proof := &types.OutcomeProof{
		ReceiptID:    RandomReceiptID(),
		ExecutorID:   executor,
		SuccessValue: payload,
		Proof:        RandomBytes(16),
	}
	copy(proof.BlockHash[:], RandomBytes(32))
	return proof
}
