package scheduler

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestFindGaps(t *testing.T) {
	cases := []struct {
		name     string
		start    int64
		end      int64
		ranges   []blockRange
		expected []blockRange
	}{
		{"no_gaps", 1, 4, []blockRange{{1, 2}, {2, 3}, {3, 4}}, nil},
		{"doc_example", 1, 10, []blockRange{{2, 5}, {7, 9}}, []blockRange{{1, 2}, {5, 7}, {9, 10}}},
		{"empty_ranges", 5, 20, nil, []blockRange{{5, 20}}},
		{"overlapping", 0, 10, []blockRange{{1, 5}, {3, 7}}, []blockRange{{0, 1}, {7, 10}}},
		{"out_of_order", 0, 10, []blockRange{{7, 9}, {1, 3}}, []blockRange{{0, 1}, {3, 7}, {9, 10}}},
		{"fully_covered", 0, 10, []blockRange{{0, 10}}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := findGaps(c.start, c.end, c.ranges)
			require.Equal(t, c.expected, got)
		})
	}
}

func TestRangesToProveByBlocks(t *testing.T) {
	disjoint := []blockRange{{0, 50}, {100, 200}, {200, 210}}
	got := rangesToProveByBlocks(disjoint, 25)
	expected := []blockRange{
		{0, 25}, {25, 50},
		{100, 125}, {125, 150}, {150, 175}, {175, 200},
	}
	require.Equal(t, expected, got)
}

func TestRangesToProveByBlocksDropsShortTail(t *testing.T) {
	got := rangesToProveByBlocks([]blockRange{{1000, 1050}}, 10)
	expected := []blockRange{{1000, 1010}, {1010, 1020}, {1020, 1030}, {1030, 1040}, {1040, 1050}}
	require.Equal(t, expected, got)

	got = rangesToProveByBlocks([]blockRange{{1000, 1045}}, 10)
	expected = []blockRange{{1000, 1010}, {1010, 1020}, {1020, 1030}, {1030, 1040}}
	require.Equal(t, expected, got)
}

func TestRangesToProveByGas(t *testing.T) {
	disjoint := []blockRange{{0, 4}}
	infos := map[int64]BlockInfo{
		1: {BlockNumber: 1, GasUsed: 30_000_000},
		2: {BlockNumber: 2, GasUsed: 30_000_000},
		3: {BlockNumber: 3, GasUsed: 30_000_000},
		4: {BlockNumber: 4, GasUsed: 30_000_000},
	}
	got, err := rangesToProveByGas(disjoint, 100_000_000, 0, infos)
	require.NoError(t, err)
	require.Equal(t, []blockRange{{0, 3}, {3, 4}}, got)
}

func TestRangesToProveByGasMissingBlockInfo(t *testing.T) {
	_, err := rangesToProveByGas([]blockRange{{0, 2}}, 1, 0, nil)
	require.Error(t, err)
}

func TestMergeRanges(t *testing.T) {
	require.Empty(t, mergeRanges(nil))
	require.Equal(t,
		[]blockRange{{1, 5}},
		mergeRanges([]blockRange{{1, 3}, {2, 5}}),
	)
	require.Equal(t,
		[]blockRange{{1, 3}, {5, 7}},
		mergeRanges([]blockRange{{5, 7}, {1, 3}}),
	)
}

// Randomized gap-finding invariants: gaps are sorted, non-overlapping,
// stay inside the overall window, never intersect an input range, and
// together with the inputs cover the whole window.
func TestFindGapsRandomized(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 20)
	for i := 0; i < 200; i++ {
		var raw []struct{ A, B uint16 }
		f.Fuzz(&raw)
		ranges := make([]blockRange, 0, len(raw))
		for _, r := range raw {
			lo, hi := int64(r.A%1000), int64(r.B%1000)
			if lo > hi {
				lo, hi = hi, lo
			}
			if lo == hi {
				continue
			}
			ranges = append(ranges, blockRange{lo, hi})
		}

		gaps := findGaps(0, 1000, ranges)

		prevEnd := int64(-1)
		for _, g := range gaps {
			if g.Start >= g.End || g.Start < 0 || g.End > 1000 || g.Start < prevEnd {
				t.Fatalf("malformed gap %+v\ninput: %soutput: %s", g, spew.Sdump(ranges), spew.Sdump(gaps))
			}
			prevEnd = g.End
			for _, r := range ranges {
				if g.Start < r.End && r.Start < g.End {
					t.Fatalf("gap %+v intersects input range %+v\n%s", g, r, spew.Sdump(gaps))
				}
			}
		}

		covered := make([]bool, 1000)
		for _, r := range ranges {
			for b := r.Start; b < r.End && b < 1000; b++ {
				covered[b] = true
			}
		}
		for _, g := range gaps {
			for b := g.Start; b < g.End; b++ {
				covered[b] = true
			}
		}
		for b, c := range covered {
			if !c {
				t.Fatalf("block %d covered by neither input nor gap\ninput: %soutput: %s", b, spew.Sdump(ranges), spew.Sdump(gaps))
			}
		}
	}
}

// Splitting a failed range always reassembles to the original interval.
func TestSplitHalvesCoverOriginal(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 100; i++ {
		var a, b uint16
		f.Fuzz(&a)
		f.Fuzz(&b)
		start, end := int64(a), int64(a)+int64(b%1000)+2
		mid := (start + end) / 2
		require.Greater(t, mid, start)
		require.Greater(t, end, mid)
		require.Equal(t, end-start, (mid-start)+(end-mid))
	}
}
