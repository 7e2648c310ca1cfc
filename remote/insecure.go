package remote

import (
	"context"
	"log/slog"

	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

/*
Insecure accepts every proof whose executor matches and every block. Only
for local development networks where no remote chain is available.
*/
type Insecure struct {
	Log *slog.Logger
}

func (i Insecure) Verify(_ context.Context, proof *types.OutcomeProof, expectedExecutor string, blockHeight uint64) (bool, error) {
	i.Log.Warn("accepting unverified outcome proof", logger.Receipt(proof.ReceiptID), logger.Height(blockHeight))
	return proof.ExecutorID == expectedExecutor, nil
}

func (i Insecure) Submit(_ context.Context, block *types.LightClientBlock) (bool, error) {
	i.Log.Warn("accepting unverified light client block", logger.Height(block.Height))
	return true, nil
}
