package testremote

import (
	"context"
	"sync"

	"github.com/rainbow-dao/drn/types"
)

// MockProver accepts every proof unless Reject or Err is set.
type MockProver struct {
	mu     sync.Mutex
	Reject bool
	Err    error
	calls  []VerifyCall
}

type VerifyCall struct {
	Proof            *types.OutcomeProof
	ExpectedExecutor string
	BlockHeight      uint64
}

func (p *MockProver) Verify(_ context.Context, proof *types.OutcomeProof, expectedExecutor string, blockHeight uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, VerifyCall{Proof: proof, ExpectedExecutor: expectedExecutor, BlockHeight: blockHeight})
	if p.Err != nil {
		return false, p.Err
	}
	return !p.Reject, nil
}

func (p *MockProver) Calls() []VerifyCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VerifyCall{}, p.calls...)
}

// MockHeaderStore accepts every block unless Reject or Err is set.
type MockHeaderStore struct {
	mu     sync.Mutex
	Reject bool
	Err    error
	blocks []*types.LightClientBlock
}

func (s *MockHeaderStore) Submit(_ context.Context, block *types.LightClientBlock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if s.Reject {
		return false, nil
	}
	s.blocks = append(s.blocks, block)
	return true, nil
}

func (s *MockHeaderStore) Blocks() []*types.LightClientBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.LightClientBlock{}, s.blocks...)
}
