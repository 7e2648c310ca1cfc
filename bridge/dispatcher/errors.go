package dispatcher

import "errors"

var (
	ErrVerificationFailed = errors.New("outcome proof verification failed")
	ErrReplayDetected     = errors.New("receipt already consumed")
	ErrStaleProof         = errors.New("proof is older than the claim period")
	ErrAlreadyWired       = errors.New("relative contracts already initialized")
	ErrNotWired           = errors.New("relative contracts not initialized")
	ErrBlockRejected      = errors.New("block rejected by the header store")
	ErrNotEligible        = errors.New("relayer is not eligible to relay")
)
