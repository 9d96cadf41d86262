package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// GetHeaderPreimages returns the ordered chain of L1 headers from the
// earliest boot info's L1 head up to checkpointL1Hash inclusive (spec
// §4.1). The aggregation witness generator needs this chain to prove the
// checkpointed L1 head is an ancestor of (or equal to) every range proof's
// own L1 head.
func (f *Fetcher) GetHeaderPreimages(ctx context.Context, bootInfoL1Heads []common.Hash, checkpointL1Hash common.Hash) ([]*types.Header, error) {
	if len(bootInfoL1Heads) == 0 {
		return nil, errutil.Newf(errutil.KindWitnessGenFailure, "get_header_preimages: no boot infos supplied")
	}

	earliest, err := f.headerByHash(ctx, bootInfoL1Heads[0])
	if err != nil {
		return nil, err
	}
	for _, h := range bootInfoL1Heads[1:] {
		header, err := f.headerByHash(ctx, h)
		if err != nil {
			return nil, err
		}
		if header.Number.Cmp(earliest.Number) < 0 {
			earliest = header
		}
	}

	checkpoint, err := f.headerByHash(ctx, checkpointL1Hash)
	if err != nil {
		return nil, err
	}
	if checkpoint.Number.Cmp(earliest.Number) < 0 {
		return nil, errutil.Newf(errutil.KindWitnessGenFailure,
			"checkpoint L1 block %d is below the earliest boot info's L1 head %d", checkpoint.Number, earliest.Number)
	}

	chain := make([]*types.Header, 0, checkpoint.Number.Int64()-earliest.Number.Int64()+1)
	cur := checkpoint
	for {
		chain = append(chain, cur)
		if cur.Hash() == earliest.Hash() {
			break
		}
		parent, err := f.headerByHash(ctx, cur.ParentHash)
		if err != nil {
			return nil, err
		}
		cur = parent
	}
	// Reverse into ascending (earliest -> checkpoint) order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (f *Fetcher) headerByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	header, err := f.l1.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("header by hash %s: %w", hash, err))
	}
	return header, nil
}
