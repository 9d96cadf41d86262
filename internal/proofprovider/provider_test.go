package proofprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// Timeout-axis classification, spec §4.3's table.
func TestCheckStatus(t *testing.T) {
	require.Equal(t, Ready, checkStatus(true, false))
	require.Equal(t, Failed, checkStatus(false, true))
	require.Equal(t, Pending, checkStatus(false, false))
}

func TestCheckDeadline(t *testing.T) {
	require.True(t, checkDeadline(2000, time.Unix(2001, 0)))
	require.False(t, checkDeadline(2000, time.Unix(2000, 0)))
	require.False(t, checkDeadline(2000, time.Unix(1999, 0)))
}

func TestCheckAuction(t *testing.T) {
	// Not mainnet: the auction axis never fires.
	require.False(t, checkAuction(false, true, 2*time.Hour, time.Hour))

	// Mainnet, still in the auction past the timeout: exceeded.
	require.True(t, checkAuction(true, true, time.Hour+time.Second, time.Hour))

	// Mainnet but already assigned to a prover: the axis no longer applies.
	require.False(t, checkAuction(true, false, 2*time.Hour, time.Hour))

	// Mainnet, within the window.
	require.False(t, checkAuction(true, true, time.Hour-time.Second, time.Hour))
}

func TestTimeoutErrorKinds(t *testing.T) {
	cases := []struct {
		axis string
		kind errutil.Kind
	}{
		{"proving", errutil.KindProvingTimeout},
		{"auction", errutil.KindAuctionTimeout},
		{"deadline", errutil.KindDeadlineExceeded},
	}
	for _, c := range cases {
		kind, ok := errutil.KindOf(timeoutError(c.axis))
		require.True(t, ok)
		require.Equal(t, c.kind, kind)
	}
}

type stubExecutor struct {
	publicValues []byte
	stats        types.ExecutionStatistics
}

func (s stubExecutor) Execute(_ context.Context, _, _ []byte) ([]byte, types.ExecutionStatistics, error) {
	return s.publicValues, s.stats, nil
}

// The mock provider executes synchronously at submit time, reports Ready
// on the first poll, and wraps real public values in a placeholder
// envelope.
func TestMockProviderLifecycle(t *testing.T) {
	exec := stubExecutor{publicValues: []byte("pv"), stats: types.ExecutionStatistics{Cycles: 42, Gas: 7}}
	m := NewMock(exec, []byte("range-elf"), []byte("agg-elf"), [32]byte{1}, [32]byte{2})

	id, err := m.SubmitRangeProof(context.Background(), []byte("stdin"))
	require.NoError(t, err)

	status, err := m.PollStatus(context.Background(), id, 0)
	require.NoError(t, err)
	require.Equal(t, Ready, status.Result)
	require.Equal(t, uint64(42), status.Cycles)
	require.Equal(t, uint64(7), status.SP1Gas)
	require.Contains(t, string(status.Proof), "pv")

	require.NoError(t, m.Cancel(context.Background(), id))
	_, err = m.PollStatus(context.Background(), id, 0)
	require.Error(t, err)
}
