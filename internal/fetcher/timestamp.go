package fetcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// Chain selects which layer's headers FindBlockByTimestamp binary-searches.
type Chain int

const (
	ChainL1 Chain = iota
	ChainL2
)

// FindBlockByTimestamp binary-searches for the lowest block on chain whose
// timestamp is >= targetTs, per spec §4.1. Assumes monotonically
// increasing block timestamps, which both L1 and L2 guarantee.
func (f *Fetcher) FindBlockByTimestamp(ctx context.Context, chain Chain, targetTs uint64) (*types.Header, error) {
	head, err := f.headOf(ctx, chain)
	if err != nil {
		return nil, err
	}
	if head.Time < targetTs {
		return nil, errutil.Newf(errutil.KindRPCUnavailable, "target timestamp %d is after chain head %d (ts %d)", targetTs, head.Number, head.Time)
	}

	lo, hi := int64(0), head.Number.Int64()
	var best *types.Header
	for lo <= hi {
		mid := lo + (hi-lo)/2
		h, err := f.headerOf(ctx, chain, big.NewInt(mid))
		if err != nil {
			return nil, err
		}
		if h.Time >= targetTs {
			best = h
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if best == nil {
		return nil, errutil.Newf(errutil.KindRPCUnavailable, "no block on chain %d with timestamp >= %d", chain, targetTs)
	}
	return best, nil
}

func (f *Fetcher) headOf(ctx context.Context, chain Chain) (*types.Header, error) {
	return f.headerOf(ctx, chain, nil)
}

func (f *Fetcher) headerOf(ctx context.Context, chain Chain, number *big.Int) (*types.Header, error) {
	switch chain {
	case ChainL1:
		return f.GetL1Header(ctx, number)
	case ChainL2:
		return f.GetL2Header(ctx, number)
	default:
		return nil, fmt.Errorf("fetcher: unknown chain %d", chain)
	}
}
