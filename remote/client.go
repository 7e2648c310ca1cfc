/*
Package remote connects the bridge to the remote chain services over
JSON-RPC: the outcome proof verifier and the light client header store.
CBOR encoded proofs and blocks are sent as hex strings.
*/
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

const (
	methodVerifyOutcome = "prover_verifyOutcome"
	methodAddBlock      = "lightclient_addBlock"

	DefaultTimeout = 10 * time.Second
)

// Client implements dispatcher.Prover and dispatcher.HeaderStore.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
	log     *slog.Logger
}

// Dial connects to the remote service, url may be http(s), ws(s) or IPC path.
func Dial(ctx context.Context, url string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing remote chain service %s: %w", url, err)
	}
	return NewClient(c, timeout, log), nil
}

func NewClient(c *rpc.Client, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{rpc: c, timeout: timeout, log: log.With(logger.Module("remote"))}
}

func (c *Client) Verify(ctx context.Context, proof *types.OutcomeProof, expectedExecutor string, blockHeight uint64) (bool, error) {
	data, err := types.Cbor(proof)
	if err != nil {
		return false, fmt.Errorf("encoding proof: %w", err)
	}
	var ok bool
	if err := c.call(ctx, &ok, methodVerifyOutcome, hexutil.Bytes(data), expectedExecutor, hexutil.Uint64(blockHeight)); err != nil {
		return false, err
	}
	c.log.Debug("outcome verified", logger.Receipt(proof.ReceiptID), logger.Height(blockHeight), slog.Bool("valid", ok))
	return ok, nil
}

func (c *Client) Submit(ctx context.Context, block *types.LightClientBlock) (bool, error) {
	data, err := types.Cbor(block)
	if err != nil {
		return false, fmt.Errorf("encoding block: %w", err)
	}
	var ok bool
	if err := c.call(ctx, &ok, methodAddBlock, hexutil.Bytes(data)); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	return nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
