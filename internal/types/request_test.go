package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	terminal := []RequestStatus{StatusRelayed, StatusFailed, StatusCancelled}
	for _, status := range terminal {
		require.True(t, (&Request{Status: status}).IsTerminal(), "status %s", status)
	}
	live := []RequestStatus{StatusUnrequested, StatusWitnessGeneration, StatusExecution, StatusProve, StatusComplete}
	for _, status := range live {
		require.False(t, (&Request{Status: status}).IsTerminal(), "status %s", status)
	}
}

// ActiveStatuses is everything the gap-finder must treat as covering
// blocks: the non-terminal set plus Relayed, never Failed or Cancelled.
func TestActiveStatuses(t *testing.T) {
	require.Contains(t, ActiveStatuses, StatusRelayed)
	require.NotContains(t, ActiveStatuses, StatusFailed)
	require.NotContains(t, ActiveStatuses, StatusCancelled)
	require.Len(t, ActiveStatuses, len(NonTerminalStatuses)+1)
}

func TestChainLockFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lock := ChainLock{
		ChainPair: ChainPair{L1ChainID: 1, L2ChainID: 10},
		UpdatedAt: now.Add(-30 * time.Second),
	}
	require.True(t, lock.IsFresh(time.Minute, now))
	require.False(t, lock.IsFresh(10*time.Second, now))
}

func TestCommitmentEqual(t *testing.T) {
	a := CommitmentConfig{}
	b := CommitmentConfig{}
	require.True(t, a.Equal(b))
	b.RollupConfigHash[0] = 0xff
	require.False(t, a.Equal(b))
}
