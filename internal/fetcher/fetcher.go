// Package fetcher implements the read-only gateway to L1/L2 RPC state
// named in spec §4.1: headers, receipts, rollup config, safe-head
// resolution. Nothing here mutates chain state; every method either reads
// through a cache or issues a single round-trip RPC call.
package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/VictoriaMetrics/fastcache"
)

// headerCacheSize bounds the LRU of recently-seen L1/L2 headers; chosen
// generously since a types.Header is a few hundred bytes.
const headerCacheSize = 4096

// outputRootCacheSize bounds the LRU of locally-recomputed output roots.
const outputRootCacheSize = 1024

// blockDataCacheBytes sizes the fastcache used for get_block_data_range
// results, which the scheduler re-requests across loop iterations for
// blocks near the tip.
const blockDataCacheBytes = 32 * 1024 * 1024

// batchConcurrency bounds per-call concurrency inside GetBlockDataRange,
// reflecting spec §5's "per-call concurrency limited to ~100 in batch
// endpoints".
const batchConcurrency = 100

// Fetcher is a read-only, cached gateway over an L1 client, an L2
// execution client, and an L2 consensus (rollup node) client.
type Fetcher struct {
	l1          *ethclient.Client
	l2          *ethclient.Client
	l2Node      *rpc.Client
	l1ChainID   int64
	l2ChainID   int64

	limiter *rate.Limiter

	headerCache     *lru.Cache[headerCacheKey, *types.Header]
	outputRootCache *lru.Cache[int64, *OutputResponse]
	blockDataCache  *fastcache.Cache
}

type headerCacheKey struct {
	chain int64
	block int64
}

// Config configures the RPC endpoints a Fetcher dials.
type Config struct {
	L1RPC       string
	L2RPC       string
	L2NodeRPC   string
	L1ChainID   int64
	L2ChainID   int64
}

// Dial connects to every configured endpoint and returns a ready Fetcher.
func Dial(ctx context.Context, cfg Config) (*Fetcher, error) {
	l1, err := ethclient.DialContext(ctx, cfg.L1RPC)
	if err != nil {
		return nil, fmt.Errorf("dial L1 RPC: %w", err)
	}
	l2, err := ethclient.DialContext(ctx, cfg.L2RPC)
	if err != nil {
		return nil, fmt.Errorf("dial L2 RPC: %w", err)
	}
	l2Node, err := rpc.DialContext(ctx, cfg.L2NodeRPC)
	if err != nil {
		return nil, fmt.Errorf("dial L2 consensus RPC: %w", err)
	}

	headerCache, _ := lru.New[headerCacheKey, *types.Header](headerCacheSize)
	outputCache, _ := lru.New[int64, *OutputResponse](outputRootCacheSize)

	return &Fetcher{
		l1:              l1,
		l2:              l2,
		l2Node:          l2Node,
		l1ChainID:       cfg.L1ChainID,
		l2ChainID:       cfg.L2ChainID,
		limiter:         rate.NewLimiter(rate.Limit(batchConcurrency), batchConcurrency),
		headerCache:     headerCache,
		outputRootCache: outputCache,
		blockDataCache:  fastcache.New(blockDataCacheBytes),
	}, nil
}

func (f *Fetcher) Close() {
	f.l1.Close()
	f.l2.Close()
	f.l2Node.Close()
}

// L2ChainID is the chain identifier this fetcher's L2 endpoints serve.
func (f *Fetcher) L2ChainID() int64 { return f.l2ChainID }

// L1ChainID is the chain identifier this fetcher's L1 endpoint serves.
func (f *Fetcher) L1ChainID() int64 { return f.l1ChainID }
