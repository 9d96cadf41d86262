package proofrequester

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/store"
	"github.com/tos-network/op-succinct-go/internal/types"
)

var testCommitment = types.CommitmentConfig{
	RangeVkeyCommitment: common.HexToHash("0x11"),
	AggVkeyHash:         common.HexToHash("0x22"),
	RollupConfigHash:    common.HexToHash("0x33"),
}

func aggReq(start, end int64) *types.Request {
	return &types.Request{
		ID:         99,
		Type:       types.RequestTypeAggregation,
		StartBlock: start,
		EndBlock:   end,
		Commitment: testCommitment,
	}
}

func completeRange(start, end int64) *types.Request {
	return &types.Request{
		Type:       types.RequestTypeRange,
		Status:     types.StatusComplete,
		StartBlock: start,
		EndBlock:   end,
		Commitment: testCommitment,
	}
}

func TestValidateAggregationConstituents(t *testing.T) {
	cases := []struct {
		name    string
		agg     *types.Request
		ranges  []*types.Request
		wantErr string
	}{
		{
			name:   "valid_chain",
			agg:    aggReq(100, 130),
			ranges: []*types.Request{completeRange(100, 110), completeRange(110, 120), completeRange(120, 130)},
		},
		{
			name:    "empty",
			agg:     aggReq(100, 130),
			wantErr: "no complete constituent",
		},
		{
			name:    "wrong_first_start",
			agg:     aggReq(100, 130),
			ranges:  []*types.Request{completeRange(110, 120), completeRange(120, 130)},
			wantErr: "starts at",
		},
		{
			name:    "gap_between_adjacent",
			agg:     aggReq(100, 130),
			ranges:  []*types.Request{completeRange(100, 110), completeRange(120, 130)},
			wantErr: "gap/overlap",
		},
		{
			name:    "overlap_between_adjacent",
			agg:     aggReq(100, 130),
			ranges:  []*types.Request{completeRange(100, 115), completeRange(110, 130)},
			wantErr: "gap/overlap",
		},
		{
			name:    "wrong_last_end",
			agg:     aggReq(100, 130),
			ranges:  []*types.Request{completeRange(100, 110), completeRange(110, 120)},
			wantErr: "ends at",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateAggregationConstituents(c.agg, c.ranges, testCommitment)
			if c.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, c.wantErr)
			}
		})
	}
}

// Every constituent's fingerprint is re-verified, not just adjacency.
func TestValidateAggregationConstituentsFingerprint(t *testing.T) {
	agg := aggReq(100, 120)
	mismatched := completeRange(110, 120)
	mismatched.Commitment.RollupConfigHash = common.HexToHash("0xff")

	err := ValidateAggregationConstituents(agg, []*types.Request{completeRange(100, 110), mismatched}, testCommitment)
	require.ErrorContains(t, err, "mismatched fingerprint")
}

type stubHost struct{}

func (stubHost) Fetch(_ context.Context, _, _ int64, _ bool) (HostArgs, error) {
	return HostArgs{L1HeadHash: common.HexToHash("0xaa"), L1HeadBlockNumber: 500}, nil
}

func (stubHost) Run(_ context.Context, _ HostArgs) ([]byte, error) {
	return []byte("stdin"), nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, _, _ []byte) ([]byte, types.ExecutionStatistics, error) {
	return []byte("public-values"), types.ExecutionStatistics{Cycles: 1234, Gas: 56}, nil
}

// A mock-mode range request runs witness generation, executes locally,
// records cycle statistics and completes without ever entering Prove.
func TestFulfillRangeMockMode(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenLevelStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer st.Close()

	chain := types.ChainPair{L1ChainID: 1, L2ChainID: 10}
	req := &types.Request{
		Type:       types.RequestTypeRange,
		Mode:       types.RequestModeMock,
		Status:     types.StatusUnrequested,
		StartBlock: 100,
		EndBlock:   110,
		ChainPair:  chain,
		Commitment: testCommitment,
	}
	require.NoError(t, st.InsertRequest(ctx, req))

	r := &Requester{
		Store:      st,
		Provider:   proofprovider.NewMock(stubExecutor{}, []byte("range"), []byte("agg"), [32]byte{1}, [32]byte{2}),
		Host:       stubHost{},
		Commitment: testCommitment,
		Chain:      chain,
	}
	require.NoError(t, r.Fulfill(ctx, req))

	got, err := st.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusComplete, got.Status)
	require.Nil(t, got.ProofRequestID)
	require.NotNil(t, got.ExecutionStatistics)
	require.Equal(t, uint64(1234), got.ExecutionStatistics.Cycles)
	require.NotNil(t, got.L1HeadBlockNumber)
	require.Equal(t, int64(500), *got.L1HeadBlockNumber)
	require.Contains(t, string(got.Proof), "public-values")
}
