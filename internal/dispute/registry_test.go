package dispute

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/contracts"
)

func testGame(index int64) Game {
	return Game{
		Index:         big.NewInt(index),
		Address:       common.BigToAddress(big.NewInt(index + 1000)),
		L2BlockNumber: big.NewInt(index * 100),
		Status:        contracts.GameStatusInProgress,
	}
}

func TestRegistryUpsertAndGet(t *testing.T) {
	r := NewGameRegistry()
	g := testGame(7)
	r.Upsert(g)

	got, ok := r.Get(g.Address)
	require.True(t, ok)
	require.Equal(t, g.Index, got.Index)

	// Upsert replaces in place.
	g.Status = contracts.GameStatusDefenderWins
	r.Upsert(g)
	got, _ = r.Get(g.Address)
	require.Equal(t, contracts.GameStatusDefenderWins, got.Status)
	require.Equal(t, 1, r.Len())
}

func TestRegistryByIndexRangeSorted(t *testing.T) {
	r := NewGameRegistry()
	for _, i := range []int64{5, 1, 9, 3, 7} {
		r.Upsert(testGame(i))
	}

	window := r.ByIndexRange(big.NewInt(3), big.NewInt(8))
	require.Len(t, window, 3)
	require.Equal(t, int64(3), window[0].Index.Int64())
	require.Equal(t, int64(5), window[1].Index.Int64())
	require.Equal(t, int64(7), window[2].Index.Int64())
}

func TestRegistryRemove(t *testing.T) {
	r := NewGameRegistry()
	g := testGame(1)
	r.Upsert(g)
	r.Remove(g.Address)

	_, ok := r.Get(g.Address)
	require.False(t, ok)
	require.Zero(t, r.Len())
}

// A mutation of a returned Game must not leak into the registry: records
// are copied on the way in and out.
func TestRegistryCopiesRecords(t *testing.T) {
	r := NewGameRegistry()
	g := testGame(2)
	r.Upsert(g)

	got, _ := r.Get(g.Address)
	got.Status = contracts.GameStatusChallengerWins

	again, _ := r.Get(g.Address)
	require.Equal(t, contracts.GameStatusInProgress, again.Status)
}
