package errutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsNesting(t *testing.T) {
	inner := New(KindProvingTimeout, errors.New("too slow"))
	wrapped := fmt.Errorf("poll request 7: %w", inner)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindProvingTimeout, kind)

	_, ok = KindOf(errors.New("untagged"))
	require.False(t, ok)
}

// Only config mismatches and chain-lock conflicts abort the process;
// everything else is retried by the loop.
func TestFatalKinds(t *testing.T) {
	require.True(t, IsFatal(Newf(KindConfigMismatch, "contract mismatch")))
	require.True(t, IsFatal(Newf(KindChainLockConflict, "lock held")))
	for _, kind := range []Kind{
		KindRPCUnavailable, KindWitnessGenFailure, KindProofRequestSubmit,
		KindProofUnfulfillable, KindProvingTimeout, KindAuctionTimeout,
		KindDeadlineExceeded, KindWitnessMissingBlock, KindRelayReverted,
		KindSignerFailure,
	} {
		require.False(t, IsFatal(Newf(kind, "transient")), "kind %s", kind)
	}
}
