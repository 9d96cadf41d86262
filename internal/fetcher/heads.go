package fetcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// FinalizedL2BlockNumber returns the L2 finalized head's block number.
// This is the Ethereum-DA implementation of the scheduler's
// finalized-block source; alternative DA schemes supply their own (the
// highest block whose batch data has been committed on L1).
func (f *Fetcher) FinalizedL2BlockNumber(ctx context.Context) (int64, error) {
	h, err := f.l2.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return 0, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("L2 finalized header: %w", err))
	}
	return h.Number.Int64(), nil
}

// UnsafeL2HeadBlockNumber returns the L2 unsafe (latest) head's block
// number, logged by the scheduler's per-iteration metrics.
func (f *Fetcher) UnsafeL2HeadBlockNumber(ctx context.Context) (int64, error) {
	h, err := f.l2.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("L2 unsafe head: %w", err))
	}
	return h.Number.Int64(), nil
}

// LatestL1Header returns the current L1 head header, used when
// checkpointing a block hash ahead of aggregation proving.
func (f *Fetcher) LatestL1Header(ctx context.Context) (*types.Header, error) {
	return f.GetL1Header(ctx, nil)
}

// FinalizedL1Header returns the finalized L1 header; its timestamp bounds
// the safe-head fallback heuristic.
func (f *Fetcher) FinalizedL1Header(ctx context.Context) (*types.Header, error) {
	h, err := f.l1.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("L1 finalized header: %w", err))
	}
	return h, nil
}
