package scheduler

import (
	"fmt"
	"sort"
)

// blockRange is a half-open [Start, End) interval of L2 block numbers.
type blockRange struct {
	Start int64
	End   int64
}

func (r blockRange) Empty() bool { return r.Start >= r.End }

// BlockInfo carries the per-block metrics the gas-based splitter needs.
// Populated by the Fetcher's get_block_data_range.
type BlockInfo struct {
	BlockNumber int64
	GasUsed     uint64
}

// findGaps identifies the gaps not covered by the given sorted-by-start
// ranges within the overall [overallStart, overallEnd) interval, merging
// any overlapping/contiguous gaps defensively. It is robust to overlapping
// and out-of-order input ranges, per spec §4.5.1's algorithm:
//
//	sort active ranges by start
//	cursor := anchor
//	for each (s, e):
//	  if cursor < s: emit gap (cursor, s)
//	  cursor := max(cursor, e)
//	if cursor < finalized: emit gap (cursor, finalized)
//	merge touching/overlapping gaps
func findGaps(overallStart, overallEnd int64, ranges []blockRange) []blockRange {
	sorted := make([]blockRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var gaps []blockRange
	cursor := overallStart
	for _, r := range sorted {
		if cursor < r.Start {
			gaps = append(gaps, blockRange{cursor, r.Start})
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < overallEnd {
		gaps = append(gaps, blockRange{cursor, overallEnd})
	}

	return mergeRanges(gaps)
}

// mergeRanges merges overlapping or contiguous ranges into a sorted,
// non-overlapping vector.
func mergeRanges(ranges []blockRange) []blockRange {
	if len(ranges) == 0 {
		return ranges
	}
	sorted := make([]blockRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := make([]blockRange, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start <= cur.End {
			if r.End > cur.End {
				cur.End = r.End
			}
		} else {
			merged = append(merged, cur)
			cur = r
		}
	}
	merged = append(merged, cur)
	return merged
}

// rangesToProveByBlocks splits each disjoint range into fixed-size
// sub-ranges of rangeProofInterval blocks, dropping a trailing remainder
// smaller than the interval so the scheduler waits for the chain to
// advance before proving a short tail range.
func rangesToProveByBlocks(disjoint []blockRange, rangeProofInterval int64) []blockRange {
	var out []blockRange
	for _, r := range disjoint {
		cur := r.Start
		for cur < r.End {
			end := cur + rangeProofInterval
			if end > r.End {
				end = r.End
			}
			out = append(out, blockRange{cur, end})
			cur = end
		}
	}
	if n := len(out); n > 0 && out[n-1].End-out[n-1].Start < rangeProofInterval {
		out = out[:n-1]
	}
	return out
}

// rangesToProveByGas splits each disjoint range by accumulated gas usage,
// never exceeding evmGasLimit nor rangeProofInterval blocks per sub-range.
// The start block of each disjoint range is itself not proven, only used
// as the starting point; blocks (start+1..=end) are what's summed.
func rangesToProveByGas(disjoint []blockRange, evmGasLimit uint64, rangeProofInterval int64, blockInfos map[int64]BlockInfo) ([]blockRange, error) {
	var out []blockRange
	for _, r := range disjoint {
		curStart := r.Start
		var accumulated uint64
		for blockNum := r.Start + 1; blockNum <= r.End; blockNum++ {
			info, ok := blockInfos[blockNum]
			if !ok {
				return nil, fmt.Errorf("missing block info for block %d in range (%d, %d)", blockNum, r.Start, r.End)
			}
			if info.BlockNumber != blockNum {
				return nil, fmt.Errorf("block info has inconsistent block number: expected %d, got %d", blockNum, info.BlockNumber)
			}

			exceedsGas := accumulated > 0 && accumulated+info.GasUsed > evmGasLimit
			exceedsInterval := rangeProofInterval > 0 && blockNum-curStart > rangeProofInterval
			if exceedsGas || exceedsInterval {
				out = append(out, blockRange{curStart, blockNum - 1})
				curStart = blockNum - 1
				accumulated = info.GasUsed
			} else {
				accumulated += info.GasUsed
			}
		}
		if curStart < r.End {
			out = append(out, blockRange{curStart, r.End})
		}
	}
	if n := len(out); n > 0 && out[n-1].Empty() {
		out = out[:n-1]
	}
	return out, nil
}
