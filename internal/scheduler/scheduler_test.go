package scheduler

import (
	"context"
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/store"
	"github.com/tos-network/op-succinct-go/internal/types"
)

type fakeContract struct {
	cfg      contracts.OpSuccinctConfig
	interval int64
	latest   int64
}

func (f *fakeContract) OpSuccinctConfigs(_ context.Context, _ common.Hash) (*contracts.OpSuccinctConfig, error) {
	c := f.cfg
	return &c, nil
}

func (f *fakeContract) SubmissionInterval(_ context.Context) (*big.Int, error) {
	return big.NewInt(f.interval), nil
}

func (f *fakeContract) LatestBlockNumber(_ context.Context) (*big.Int, error) {
	return big.NewInt(f.latest), nil
}

type fakeCheckpointer struct {
	calls  int
	hash   common.Hash
	number int64
}

func (f *fakeCheckpointer) CheckpointBlockHash(_ context.Context) (common.Hash, int64, error) {
	f.calls++
	return f.hash, f.number, nil
}

type fakeRelay struct {
	calls  int
	err    error
	txHash common.Hash
	addr   common.Address
}

func (f *fakeRelay) Submit(_ context.Context, _ *types.Request) (common.Hash, common.Address, error) {
	f.calls++
	if f.err != nil {
		return common.Hash{}, common.Address{}, f.err
	}
	return f.txHash, f.addr, nil
}

type fakeBlocks struct {
	finalized  int64
	unsafeHead int64
}

func (f *fakeBlocks) FinalizedL2BlockNumber(_ context.Context) (int64, error) {
	return f.finalized, nil
}

func (f *fakeBlocks) UnsafeL2HeadBlockNumber(_ context.Context) (int64, error) {
	return f.unsafeHead, nil
}

func (f *fakeBlocks) GetBlockDataRange(_ context.Context, start, end int64) ([]fetcher.BlockData, error) {
	out := make([]fetcher.BlockData, 0, end-start+1)
	for b := start; b <= end; b++ {
		out = append(out, fetcher.BlockData{
			BlockNumber:    b,
			NbTransactions: 2,
			GasUsed:        1_000_000,
			L1Fees:         uint256.NewInt(5),
			TotalTxFees:    uint256.NewInt(7),
		})
	}
	return out, nil
}

type fakeProvider struct {
	statuses map[proofprovider.ProofID]proofprovider.ProofStatus
	errs     map[proofprovider.ProofID]error
	cancels  int
}

func (f *fakeProvider) SubmitRangeProof(_ context.Context, _ []byte) (proofprovider.ProofID, error) {
	return proofprovider.ProofID{}, nil
}

func (f *fakeProvider) SubmitAggProof(_ context.Context, _ []byte) (proofprovider.ProofID, error) {
	return proofprovider.ProofID{}, nil
}

func (f *fakeProvider) PollStatus(_ context.Context, id proofprovider.ProofID, _ time.Duration) (proofprovider.ProofStatus, error) {
	if err, ok := f.errs[id]; ok {
		return proofprovider.ProofStatus{}, err
	}
	return f.statuses[id], nil
}

func (f *fakeProvider) Cancel(_ context.Context, _ proofprovider.ProofID) error {
	f.cancels++
	return nil
}

func (f *fakeProvider) Keys() ([32]byte, [32]byte) { return [32]byte{}, [32]byte{} }

func (f *fakeProvider) Config() proofprovider.ProviderConfig {
	return proofprovider.ProviderConfig{Kind: "fake"}
}

type noopFulfiller struct{}

func (noopFulfiller) Fulfill(_ context.Context, _ *types.Request) error { return nil }

type testEnv struct {
	s          *Scheduler
	store      store.Store
	contract   *fakeContract
	checkpoint *fakeCheckpointer
	relay      *fakeRelay
	blocks     *fakeBlocks
	provider   *fakeProvider
	commitment types.CommitmentConfig
	chain      types.ChainPair
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.OpenLevelStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	commitment := types.CommitmentConfig{
		RangeVkeyCommitment: common.HexToHash("0x01"),
		AggVkeyHash:         common.HexToHash("0x02"),
		RollupConfigHash:    common.HexToHash("0x03"),
	}
	chain := types.ChainPair{L1ChainID: 1, L2ChainID: 10}

	env := &testEnv{
		store: st,
		contract: &fakeContract{
			cfg: contracts.OpSuccinctConfig{
				AggregationVkey:     commitment.AggVkeyHash,
				RangeVkeyCommitment: commitment.RangeVkeyCommitment,
				RollupConfigHash:    commitment.RollupConfigHash,
			},
			interval: 50,
			latest:   1000,
		},
		checkpoint: &fakeCheckpointer{hash: common.HexToHash("0xc1"), number: 777},
		relay:      &fakeRelay{txHash: common.HexToHash("0xbeef"), addr: common.HexToAddress("0xdead")},
		blocks:     &fakeBlocks{finalized: 1050, unsafeHead: 1060},
		provider:   &fakeProvider{statuses: make(map[proofprovider.ProofID]proofprovider.ProofStatus), errs: make(map[proofprovider.ProofID]error)},
		commitment: commitment,
		chain:      chain,
	}
	env.s = New(Config{
		RangeProofInterval:         10,
		SubmissionInterval:         50,
		MaxConcurrentWitnessGen:    5,
		MaxConcurrentProofRequests: 10,
		LoopInterval:               time.Minute,
		MetricsWriter:              io.Discard,
	}, Deps{
		Store:      st,
		Provider:   env.provider,
		Fulfiller:  noopFulfiller{},
		Contract:   env.contract,
		Checkpoint: env.checkpoint,
		Relay:      env.relay,
		Blocks:     env.blocks,
	}, commitment, chain)
	return env
}

// Cold start: latest proposed = 1000, finalized = 1050, interval 10.
// One tick yields five Unrequested range requests and no aggregation.
func TestColdStartAddsRangeRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.s.Tick(ctx))

	ranges, err := env.store.RangesAfterBlock(ctx, []types.RequestStatus{types.StatusUnrequested}, 0, env.commitment, env.chain)
	require.NoError(t, err)
	require.Equal(t, [][2]int64{{1000, 1010}, {1010, 1020}, {1020, 1030}, {1030, 1040}, {1040, 1050}}, ranges)

	agg, err := env.store.UnrequestedAggProofAfter(ctx, 0, env.commitment, env.chain)
	require.NoError(t, err)
	require.Nil(t, agg)
}

// Running the gap pass again with no external change adds zero rows.
func TestAddNewRangesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.s.Tick(ctx))
	require.NoError(t, env.s.Tick(ctx))

	count, err := env.store.RequestCount(ctx, types.StatusUnrequested, env.commitment, env.chain)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

// Once the whole span is Complete, the next tick creates exactly one
// aggregation request over it with a freshly checkpointed L1 block.
func TestAggregationCreatedAfterRangesComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.s.Tick(ctx))
	completeAllRanges(t, env)

	require.NoError(t, env.s.Tick(ctx))

	agg, err := env.store.UnrequestedAggProofAfter(ctx, 1000, env.commitment, env.chain)
	require.NoError(t, err)
	require.NotNil(t, agg)
	require.Equal(t, int64(1000), agg.StartBlock)
	require.Equal(t, int64(1050), agg.EndBlock)
	require.NotNil(t, agg.CheckpointedL1BlockHash)
	require.Equal(t, env.checkpoint.hash, *agg.CheckpointedL1BlockHash)
	require.NotNil(t, agg.CheckpointedL1BlockNumber)
	require.Equal(t, env.checkpoint.number, *agg.CheckpointedL1BlockNumber)
	require.Equal(t, 1, env.checkpoint.calls)
}

// A failed aggregation's checkpoint is inherited by its replacement: no
// second checkpoint transaction.
func TestCheckpointReusedAfterAggFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.s.Tick(ctx))
	completeAllRanges(t, env)
	require.NoError(t, env.s.Tick(ctx))

	agg, err := env.store.UnrequestedAggProofAfter(ctx, 1000, env.commitment, env.chain)
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateStatus(ctx, agg.ID, types.StatusFailed))

	require.NoError(t, env.s.Tick(ctx))

	retry, err := env.store.UnrequestedAggProofAfter(ctx, 1000, env.commitment, env.chain)
	require.NoError(t, err)
	require.NotNil(t, retry)
	require.NotEqual(t, agg.ID, retry.ID)
	require.Equal(t, env.checkpoint.hash, *retry.CheckpointedL1BlockHash)
	require.Equal(t, 1, env.checkpoint.calls)
}

// An Unfulfillable{Unexecutable} range in Prove fails and splits into
// its two halves.
func TestUnexecutableRangeSplits(t *testing.T) {
	env := newTestEnv(t)
	env.contract.latest = 2000
	env.blocks.finalized = 2000
	ctx := context.Background()

	req := &types.Request{
		Type:       types.RequestTypeRange,
		Mode:       types.RequestModeReal,
		Status:     types.StatusUnrequested,
		StartBlock: 2000,
		EndBlock:   2064,
		ChainPair:  env.chain,
		Commitment: env.commitment,
	}
	require.NoError(t, env.store.InsertRequest(ctx, req))
	proofID := [32]byte{0xaa}
	require.NoError(t, env.store.UpdateToProve(ctx, req.ID, proofID))
	env.provider.statuses[proofID] = proofprovider.ProofStatus{
		Result:      proofprovider.Failed,
		Fulfillment: proofprovider.ExecutionUnexecutable,
	}

	require.NoError(t, env.s.Tick(ctx))

	failed, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, failed.Status)

	ranges, err := env.store.RangesAfterBlock(ctx, []types.RequestStatus{types.StatusUnrequested}, 0, env.commitment, env.chain)
	require.NoError(t, err)
	require.Equal(t, [][2]int64{{2000, 2032}, {2032, 2064}}, ranges)
}

// A proof request that hits a timeout axis is marked Failed.
func TestProvingTimeoutFailsRequest(t *testing.T) {
	env := newTestEnv(t)
	env.contract.latest = 2000
	env.blocks.finalized = 2000
	ctx := context.Background()

	req := &types.Request{
		Type:       types.RequestTypeRange,
		Mode:       types.RequestModeReal,
		Status:     types.StatusUnrequested,
		StartBlock: 2000,
		EndBlock:   2010,
		ChainPair:  env.chain,
		Commitment: env.commitment,
	}
	require.NoError(t, env.store.InsertRequest(ctx, req))
	proofID := [32]byte{0xbb}
	require.NoError(t, env.store.UpdateToProve(ctx, req.ID, proofID))
	env.provider.errs[proofID] = errutil.Newf(errutil.KindAuctionTimeout, "auction timeout exceeded")

	require.NoError(t, env.s.Tick(ctx))

	failed, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, failed.Status)
}

// A Complete aggregation is relayed: one submission, row moves to
// Relayed with the tx hash and target contract recorded.
func TestRelaySubmitsCompletedAggregation(t *testing.T) {
	env := newTestEnv(t)
	env.blocks.finalized = 1000
	ctx := context.Background()

	agg := insertCompleteAgg(t, env)
	require.NoError(t, env.s.Tick(ctx))

	relayed, err := env.store.GetRequest(ctx, agg.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusRelayed, relayed.Status)
	require.Equal(t, 1, env.relay.calls)
	require.NotNil(t, relayed.RelayTxHash)
	require.Equal(t, env.relay.txHash, *relayed.RelayTxHash)
	require.NotNil(t, relayed.ContractAddress)
	require.Equal(t, env.relay.addr, *relayed.ContractAddress)
}

// A reverted relay fails the aggregation; the next pass recreates it.
func TestRelayRevertMarksAggregationFailed(t *testing.T) {
	env := newTestEnv(t)
	env.blocks.finalized = 1000
	env.relay.err = errutil.Newf(errutil.KindRelayReverted, "relay tx reverted")
	ctx := context.Background()

	agg := insertCompleteAgg(t, env)
	require.NoError(t, env.s.Tick(ctx))

	failed, err := env.store.GetRequest(ctx, agg.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, failed.Status)
}

// A request stuck in WitnessGeneration with no live worker task belongs
// to a crashed process and is failed.
func TestOrphanSweep(t *testing.T) {
	env := newTestEnv(t)
	env.blocks.finalized = 1000
	ctx := context.Background()

	req := &types.Request{
		Type:       types.RequestTypeRange,
		Mode:       types.RequestModeReal,
		Status:     types.StatusWitnessGeneration,
		StartBlock: 1000,
		EndBlock:   1010,
		ChainPair:  env.chain,
		Commitment: env.commitment,
	}
	require.NoError(t, env.store.InsertRequest(ctx, req))

	require.NoError(t, env.s.Tick(ctx))

	swept, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, swept.Status)
}

// A fresh lock held by another scheduler aborts startup (I6).
func TestChainLockConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.AddChainLock(ctx, env.chain))

	err := env.s.Run(ctx)
	require.Error(t, err)
	kind, ok := errutil.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errutil.KindChainLockConflict, kind)
}

// A contract fingerprint mismatch is fatal: the operator must rebuild.
func TestConfigMismatchIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.contract.cfg.RollupConfigHash = common.HexToHash("0xff")

	err := env.s.Tick(context.Background())
	require.Error(t, err)
	require.True(t, errutil.IsFatal(err))
}

func completeAllRanges(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	reqs, err := env.store.RequestsByStatus(ctx, types.StatusUnrequested, env.commitment, env.chain)
	require.NoError(t, err)
	require.NotEmpty(t, reqs)
	for _, r := range reqs {
		require.NoError(t, env.store.UpdateToComplete(ctx, r.ID, []byte("range-proof")))
	}
}

func insertCompleteAgg(t *testing.T, env *testEnv) *types.Request {
	t.Helper()
	ctx := context.Background()
	cpHash := common.HexToHash("0xc1")
	cpNumber := int64(777)
	prover := common.HexToAddress("0x01")
	agg := &types.Request{
		Type:                      types.RequestTypeAggregation,
		Mode:                      types.RequestModeReal,
		Status:                    types.StatusComplete,
		StartBlock:                1000,
		EndBlock:                  1050,
		ChainPair:                 env.chain,
		Commitment:                env.commitment,
		CheckpointedL1BlockHash:   &cpHash,
		CheckpointedL1BlockNumber: &cpNumber,
		ProverAddress:             &prover,
		Proof:                     []byte("agg-proof"),
	}
	require.NoError(t, env.store.InsertRequest(ctx, agg))
	return agg
}
