package fetcher

import (
	"context"
	"encoding/binary"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// BlockData is one block's contribution to an aggregation request's
// total_nb_transactions/total_eth_gas_used/total_l1_fees/total_tx_fees
// fields (spec §3).
type BlockData struct {
	BlockNumber      int64
	NbTransactions   uint64
	GasUsed          uint64
	L1Fees           *uint256.Int
	TotalTxFees      *uint256.Int
}

// GetBlockDataRange returns per-block metrics for every block in
// [start, end], fetching uncached blocks with up to batchConcurrency
// requests in flight at once (spec §4.1, §5).
func (f *Fetcher) GetBlockDataRange(ctx context.Context, start, end int64) ([]BlockData, error) {
	out := make([]BlockData, end-start+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i := start; i <= end; i++ {
		blockNumber := i
		idx := i - start
		g.Go(func() error {
			if err := f.limiter.Wait(gctx); err != nil {
				return err
			}
			data, err := f.blockData(gctx, blockNumber)
			if err != nil {
				return err
			}
			out[idx] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func cacheKeyFor(block int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(block))
	return buf[:]
}

// opReceiptFields mirrors the OP-stack extension fields an L2 execution
// client adds to eth_getTransactionReceipt's JSON response (l1Fee,
// effectiveGasPrice); vanilla go-ethereum's core/types.Receipt has no Go
// struct field for these, so they're read off the raw JSON-RPC response.
type opReceiptFields struct {
	GasUsed           string `json:"gasUsed"`
	L1Fee             string `json:"l1Fee"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
}

// blockData answers one block, consulting the fastcache before hitting RPC.
func (f *Fetcher) blockData(ctx context.Context, blockNumber int64) (BlockData, error) {
	key := cacheKeyFor(blockNumber)
	if raw, ok := f.blockDataCache.HasGet(nil, key); ok {
		return decodeBlockData(blockNumber, raw)
	}

	block, err := f.GetL2Block(ctx, blockNumber)
	if err != nil {
		return BlockData{}, err
	}

	data := BlockData{
		BlockNumber:    blockNumber,
		NbTransactions: uint64(len(block.Transactions())),
		GasUsed:        block.GasUsed(),
		L1Fees:         uint256.NewInt(0),
		TotalTxFees:    uint256.NewInt(0),
	}
	for _, tx := range block.Transactions() {
		var r opReceiptFields
		if err := f.l2.Client().CallContext(ctx, &r, "eth_getTransactionReceipt", tx.Hash()); err != nil {
			return BlockData{}, errutil.New(errutil.KindRPCUnavailable, err)
		}
		if fee, ok := parseHexU256(r.L1Fee); ok {
			data.L1Fees.Add(data.L1Fees, fee)
		}
		if gasPrice, ok := parseHexU256(r.EffectiveGasPrice); ok {
			gasUsed, ok := parseHexU256(r.GasUsed)
			if ok {
				txFee := new(uint256.Int).Mul(gasPrice, gasUsed)
				data.TotalTxFees.Add(data.TotalTxFees, txFee)
			}
		}
	}

	f.blockDataCache.Set(key, encodeBlockData(data))
	return data, nil
}

func parseHexU256(hex string) (*uint256.Int, bool) {
	if hex == "" {
		return nil, false
	}
	v, err := uint256.FromHex(hex)
	if err != nil {
		return nil, false
	}
	return v, true
}

// encodeBlockData/decodeBlockData give BlockData a tiny fixed-layout wire
// form for the fastcache byte-slice store (nb_tx || gas_used || l1_fees ||
// tx_fees, each a big-endian uint64/32-byte word).
func encodeBlockData(d BlockData) []byte {
	buf := make([]byte, 8+8+32+32)
	binary.BigEndian.PutUint64(buf[0:8], d.NbTransactions)
	binary.BigEndian.PutUint64(buf[8:16], d.GasUsed)
	l1Fees := d.L1Fees.Bytes32()
	totalTxFees := d.TotalTxFees.Bytes32()
	copy(buf[16:48], l1Fees[:])
	copy(buf[48:80], totalTxFees[:])
	return buf
}

func decodeBlockData(blockNumber int64, raw []byte) (BlockData, error) {
	if len(raw) != 80 {
		return BlockData{}, errutil.Newf(errutil.KindRPCUnavailable, "corrupt cached block data for block %d", blockNumber)
	}
	var l1Fees, txFees [32]byte
	copy(l1Fees[:], raw[16:48])
	copy(txFees[:], raw[48:80])
	return BlockData{
		BlockNumber:    blockNumber,
		NbTransactions: binary.BigEndian.Uint64(raw[0:8]),
		GasUsed:        binary.BigEndian.Uint64(raw[8:16]),
		L1Fees:         new(uint256.Int).SetBytes32(l1Fees[:]),
		TotalTxFees:    new(uint256.Int).SetBytes32(txFees[:]),
	}, nil
}

// SumBlockData aggregates a slice of BlockData into the totals an
// aggregation request records at creation time.
func SumBlockData(blocks []BlockData) (nbTx, gasUsed uint64, l1Fees, txFees *uint256.Int) {
	l1Fees, txFees = uint256.NewInt(0), uint256.NewInt(0)
	for _, b := range blocks {
		nbTx += b.NbTransactions
		gasUsed += b.GasUsed
		l1Fees.Add(l1Fees, b.L1Fees)
		txFees.Add(txFees, b.TotalTxFees)
	}
	return
}
