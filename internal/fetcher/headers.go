package fetcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

const (
	layerL1 int64 = -1
	layerL2 int64 = -2
)

// GetL1Header returns the full L1 header at blockNumber, or the latest
// head if blockNumber is nil.
func (f *Fetcher) GetL1Header(ctx context.Context, blockNumber *big.Int) (*types.Header, error) {
	return f.getHeader(ctx, f.l1, layerL1, blockNumber)
}

// GetL2Header returns the full L2 header at blockNumber, or the latest
// head if blockNumber is nil.
func (f *Fetcher) GetL2Header(ctx context.Context, blockNumber *big.Int) (*types.Header, error) {
	return f.getHeader(ctx, f.l2, layerL2, blockNumber)
}

func (f *Fetcher) getHeader(ctx context.Context, client headerByNumberer, layer int64, blockNumber *big.Int) (*types.Header, error) {
	if blockNumber != nil {
		key := headerCacheKey{chain: layer, block: blockNumber.Int64()}
		if h, ok := f.headerCache.Get(key); ok {
			return h, nil
		}
	}
	header, err := client.HeaderByNumber(ctx, blockNumber)
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("header by number %v: %w", blockNumber, err))
	}
	f.headerCache.Add(headerCacheKey{chain: layer, block: header.Number.Int64()}, header)
	return header, nil
}

type headerByNumberer interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// GetL2Block returns the full L2 block, including transactions, at
// blockNumber.
func (f *Fetcher) GetL2Block(ctx context.Context, blockNumber int64) (*types.Block, error) {
	block, err := f.l2.BlockByNumber(ctx, big.NewInt(blockNumber))
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("block by number %d: %w", blockNumber, err))
	}
	return block, nil
}

// GetL2Receipts returns every transaction receipt in blockNumber as
// go-ethereum Receipts. GetBlockDataRange does not use it: it reads the
// OP-stack fee fields off the raw receipt JSON instead.
func (f *Fetcher) GetL2Receipts(ctx context.Context, blockNumber int64, block *types.Block) ([]*types.Receipt, error) {
	receipts := make([]*types.Receipt, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		r, err := f.l2.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("receipt for tx %s: %w", tx.Hash(), err))
		}
		receipts[i] = r
	}
	return receipts, nil
}
