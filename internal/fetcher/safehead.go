package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// l1Origin matches the block_ref.l1_origin shape of optimism_outputAtBlock.
type l1Origin struct {
	Number uint64      `json:"number"`
	Hash   common.Hash `json:"hash"`
}

// OutputResponse is the decoded optimism_outputAtBlock result (spec §6).
type OutputResponse struct {
	OutputRoot common.Hash
	L2BlockHash common.Hash
	L1Origin   l1Origin
}

type outputAtBlockRPC struct {
	OutputRoot common.Hash `json:"outputRoot"`
	BlockRef   struct {
		Hash     common.Hash `json:"hash"`
		L1Origin l1Origin    `json:"l1origin"`
	} `json:"blockRef"`
}

// GetOutputAtBlock returns the canonical output root commitment for an L2
// block, from the L2 node's RPC surface, caching by block number (spec §4.1).
func (f *Fetcher) GetOutputAtBlock(ctx context.Context, l2Block int64) (*OutputResponse, error) {
	if out, ok := f.outputRootCache.Get(l2Block); ok {
		return out, nil
	}
	var raw outputAtBlockRPC
	if err := f.l2Node.CallContext(ctx, &raw, "optimism_outputAtBlock", hexutil.EncodeUint64(uint64(l2Block))); err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("optimism_outputAtBlock(%d): %w", l2Block, err))
	}
	out := &OutputResponse{
		OutputRoot:  raw.OutputRoot,
		L2BlockHash: raw.BlockRef.Hash,
		L1Origin:    raw.BlockRef.L1Origin,
	}
	f.outputRootCache.Add(l2Block, out)
	return out, nil
}

// ComputeOutputRootLocally recomputes the output root without relying on
// the L2 node's own view, for when the node has pruned historical state
// (spec §4.1): keccak256(bytes32(0) || stateRoot || l2ToL1BridgeStorageHash || blockHash).
func ComputeOutputRootLocally(stateRoot, l2ToL1BridgeStorageHash, blockHash common.Hash) common.Hash {
	payload := make([]byte, 0, 128)
	payload = append(payload, make([]byte, 32)...) // version 0
	payload = append(payload, stateRoot.Bytes()...)
	payload = append(payload, l2ToL1BridgeStorageHash.Bytes()...)
	payload = append(payload, blockHash.Bytes()...)
	return crypto.Keccak256Hash(payload)
}

type safeHeadAtL1BlockRPC struct {
	L1Block  l1Origin `json:"l1Block"`
	SafeHead l1Origin `json:"safeHead"`
}

// fallbackLookaheadWindow is the operator-warned timestamp heuristic's
// lookahead window when the safeDB endpoint is unavailable (spec §4.1).
const fallbackLookaheadWindow = 40 * time.Minute

// GetSafeL1BlockForL2Block binary-searches the lowest L1 block whose
// safe-head view includes l2Block, via optimism_safeHeadAtL1Block. If
// safeDBFallback is enabled and the L2 node doesn't expose that endpoint,
// falls back to a timestamp heuristic that spec §9 explicitly flags as
// potentially selecting an L1 head that does not actually cover the batch.
func (f *Fetcher) GetSafeL1BlockForL2Block(ctx context.Context, l2Block int64, safeDBFallback bool, finalizedL1Ts uint64) (*big.Int, error) {
	l1Head, err := f.GetL1Header(ctx, nil)
	if err != nil {
		return nil, err
	}

	lo, hi := int64(0), l1Head.Number.Int64()
	var best *big.Int
	for lo <= hi {
		mid := lo + (hi-lo)/2
		var resp safeHeadAtL1BlockRPC
		err := f.l2Node.CallContext(ctx, &resp, "optimism_safeHeadAtL1Block", hexutil.EncodeUint64(uint64(mid)))
		if err != nil {
			if safeDBFallback {
				return f.fallbackSafeL1Block(ctx, l2Block, finalizedL1Ts)
			}
			return nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("optimism_safeHeadAtL1Block(%d): %w", mid, err))
		}
		if int64(resp.SafeHead.Number) >= l2Block {
			best = big.NewInt(mid)
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if best == nil {
		return nil, errutil.Newf(errutil.KindRPCUnavailable, "no L1 block's safe head covers L2 block %d", l2Block)
	}
	return best, nil
}

// fallbackSafeL1Block implements the "L1 block at min(l2_timestamp + 40
// min, finalized_ts)" heuristic named in spec §4.1/§9.
func (f *Fetcher) fallbackSafeL1Block(ctx context.Context, l2Block int64, finalizedL1Ts uint64) (*big.Int, error) {
	l2Header, err := f.GetL2Header(ctx, big.NewInt(l2Block))
	if err != nil {
		return nil, err
	}
	targetTs := l2Header.Time + uint64(fallbackLookaheadWindow.Seconds())
	if targetTs > finalizedL1Ts {
		targetTs = finalizedL1Ts
	}
	log.Warn("falling back to timestamp heuristic for safe L1 block; result may not actually cover this L2 batch",
		"l2_block", l2Block, "target_l1_timestamp", targetTs)
	header, err := f.FindBlockByTimestamp(ctx, ChainL1, targetTs)
	if err != nil {
		return nil, err
	}
	return header.Number, nil
}
