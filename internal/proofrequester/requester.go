// Package proofrequester implements the per-request worker of spec §4.6:
// witness generation followed by proof submission. One Requester serves
// both range and aggregation requests, selected by the request's Type
// field. Submission is fire-and-forget (spec §4.5 step 5's "request_async"
// semantics) — this package never blocks waiting for a proof to complete;
// that polling lives in the scheduler, which owns the Store as ground
// truth and has no parent/child reference threaded back to a Requester.
package proofrequester

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/store"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// HostProgram is the witness-generator host program, referenced only
// through this interface per spec §1's out-of-scope boundary.
type HostProgram interface {
	// Fetch runs the host program's RPC-fetching phase for a range
	// (startBlock, endBlock], returning opaque host args that embed the
	// frozen L1 head the range commits to.
	Fetch(ctx context.Context, startBlock, endBlock int64, safeDBFallback bool) (hostArgs HostArgs, err error)

	// Run executes the host program against hostArgs, producing proof stdin.
	Run(ctx context.Context, hostArgs HostArgs) (stdin []byte, err error)
}

// HostArgs is the opaque bundle the host program's Fetch phase returns.
type HostArgs struct {
	L1HeadHash        common.Hash
	L1HeadBlockNumber int64
}

// AggWitnessBuilder builds aggregation proof stdin from a chain of
// constituent range proofs plus the checkpointed L1 header chain (spec
// §4.6's "aggregation worker differs..." paragraph).
type AggWitnessBuilder interface {
	// DecodeBootInfo extracts the per-range public-values struct (spec's
	// "boot info") from a completed range proof's envelope, in particular
	// the L1 head hash it consumed — needed to bound the header preimage
	// chain the aggregation program proves against (spec §4.1's
	// get_header_preimages).
	DecodeBootInfo(proof []byte) (BootInfo, error)

	BuildAggStdin(ctx context.Context, rangeProofs []*types.Request, headerPreimages [][]byte, l1ChainID, l2ChainID int64, proverAddress common.Address) ([]byte, error)
}

// BootInfo is the decoded public-values envelope of a completed range
// proof (spec glossary: "per-range public-values struct containing the
// L2 pre/post roots and the L1 head hash consumed"). Only the L1 head is
// needed here; the rest is opaque to the scheduler/requester.
type BootInfo struct {
	L1Head common.Hash
}

// Requester is the per-request worker. It has no mutable state of its own;
// the Store is the ground truth (spec §9's "do not attempt to thread a
// parent/child reference through").
type Requester struct {
	Store          store.Store
	Fetcher        *fetcher.Fetcher
	Provider       proofprovider.Provider
	Host           HostProgram
	AggBuilder     AggWitnessBuilder
	SafeDBFallback bool
	Commitment     types.CommitmentConfig
	Chain          types.ChainPair
}

// Fulfill drives one request through witness generation and submission
// (spec §4.6's numbered steps 1-5). Called from a detached goroutine the
// scheduler tracks by request id; any returned error is picked up by the
// scheduler's task reaper (§4.5 step 3), which applies the retry-split
// policy. On success a Real-mode request is left in StatusProve with its
// ProofRequestID populated; the scheduler's own loop progresses it to
// Complete or Failed by polling the Provider (§4.5 step 5). A Mock-mode
// request is executed locally and left in StatusComplete with its
// fabricated proof and no ProofRequestID.
func (r *Requester) Fulfill(ctx context.Context, req *types.Request) error {
	switch req.Type {
	case types.RequestTypeRange:
		return r.fulfillRange(ctx, req)
	case types.RequestTypeAggregation:
		return r.fulfillAgg(ctx, req)
	default:
		return errutil.Newf(errutil.KindWitnessGenFailure, "unknown request type %q", req.Type)
	}
}

func (r *Requester) fulfillRange(ctx context.Context, req *types.Request) error {
	if err := r.Store.UpdateStatus(ctx, req.ID, types.StatusWitnessGeneration); err != nil {
		return err
	}
	log.Info("starting witness generation", "request_id", req.ID, "start_block", req.StartBlock, "end_block", req.EndBlock)

	hostArgs, err := r.Host.Fetch(ctx, req.StartBlock, req.EndBlock, r.SafeDBFallback)
	if err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, fmt.Errorf("host fetch: %w", err))
	}
	if err := r.Store.UpdateL1HeadBlockNumber(ctx, req.ID, hostArgs.L1HeadBlockNumber); err != nil {
		return err
	}

	witnessgenStart := time.Now()
	stdin, err := r.Host.Run(ctx, hostArgs)
	if err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, fmt.Errorf("host run: %w", err))
	}
	if err := r.Store.UpdateWitnessgenDuration(ctx, req.ID, time.Since(witnessgenStart)); err != nil {
		return err
	}
	log.Info("completed witness generation", "request_id", req.ID, "duration", time.Since(witnessgenStart))

	if req.Mode == types.RequestModeMock {
		return r.executeMock(ctx, req, stdin)
	}

	id, err := r.Provider.SubmitRangeProof(ctx, stdin)
	if err != nil {
		return errutil.New(errutil.KindProofRequestSubmit, err)
	}
	log.Info("submitted range proof", "request_id", req.ID, "proof_request_id", fmt.Sprintf("%x", id))
	return r.Store.UpdateToProve(ctx, req.ID, [32]byte(id))
}

// executeMock is spec §4.6 step 5: transition to Execution, run the
// program locally through the mock provider, persist cycle statistics,
// and record the fabricated proof envelope atomically with Complete.
// Mock requests never enter Prove (I4: proof_request_id is Real-only).
func (r *Requester) executeMock(ctx context.Context, req *types.Request, stdin []byte) error {
	if err := r.Store.UpdateStatus(ctx, req.ID, types.StatusExecution); err != nil {
		return err
	}

	executionStart := time.Now()
	var (
		id  proofprovider.ProofID
		err error
	)
	if req.Type == types.RequestTypeAggregation {
		id, err = r.Provider.SubmitAggProof(ctx, stdin)
	} else {
		id, err = r.Provider.SubmitRangeProof(ctx, stdin)
	}
	if err != nil {
		return err
	}
	status, err := r.Provider.PollStatus(ctx, id, time.Since(executionStart))
	if err != nil {
		return err
	}

	stats := types.ExecutionStatistics{Cycles: status.Cycles, Gas: status.SP1Gas}
	if err := r.Store.UpdateExecutionStats(ctx, req.ID, stats, time.Since(executionStart)); err != nil {
		return err
	}
	log.Info("completed mock execution", "request_id", req.ID, "cycles", stats.Cycles, "duration", time.Since(executionStart))
	return r.Store.UpdateToComplete(ctx, req.ID, status.Proof)
}

func (r *Requester) fulfillAgg(ctx context.Context, req *types.Request) error {
	if req.CheckpointedL1BlockHash == nil {
		return errutil.Newf(errutil.KindWitnessGenFailure, "aggregation request %d has no checkpointed L1 block hash", req.ID)
	}

	rangeProofs, err := r.Store.ConsecutiveCompleteRangeProofs(ctx, req.StartBlock, req.EndBlock, r.Commitment, r.Chain)
	if err != nil {
		return err
	}
	if err := ValidateAggregationConstituents(req, rangeProofs, r.Commitment); err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, err)
	}

	if err := r.Store.UpdateStatus(ctx, req.ID, types.StatusWitnessGeneration); err != nil {
		return err
	}

	headerPreimages, err := r.fetchHeaderPreimages(ctx, rangeProofs, *req.CheckpointedL1BlockHash)
	if err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, err)
	}

	witnessgenStart := time.Now()
	var proverAddr common.Address
	if req.ProverAddress != nil {
		proverAddr = *req.ProverAddress
	}
	stdin, err := r.AggBuilder.BuildAggStdin(ctx, rangeProofs, headerPreimages, req.L1ChainID, req.L2ChainID, proverAddr)
	if err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, fmt.Errorf("build agg stdin: %w", err))
	}
	if err := r.Store.UpdateWitnessgenDuration(ctx, req.ID, time.Since(witnessgenStart)); err != nil {
		return err
	}

	if req.Mode == types.RequestModeMock {
		return r.executeMock(ctx, req, stdin)
	}

	id, err := r.Provider.SubmitAggProof(ctx, stdin)
	if err != nil {
		return errutil.New(errutil.KindProofRequestSubmit, err)
	}
	log.Info("submitted aggregation proof", "request_id", req.ID, "proof_request_id", fmt.Sprintf("%x", id))
	return r.Store.UpdateToProve(ctx, req.ID, [32]byte(id))
}

// ValidateAggregationConstituents implements spec §4.5.4's pre-dispatch
// check: non-empty, the chain covers exactly [req.StartBlock,
// req.EndBlock], no gaps or overlaps between adjacent range proofs. It
// also re-verifies every constituent's fingerprint against commitment,
// the gap spec §9 explicitly flags ("validate_aggregation_request checks
// adjacency but does not re-verify the fingerprint on each constituent;
// implementations should add that check").
func ValidateAggregationConstituents(req *types.Request, rangeProofs []*types.Request, commitment types.CommitmentConfig) error {
	if len(rangeProofs) == 0 {
		return fmt.Errorf("aggregation request %d has no complete constituent range proofs", req.ID)
	}
	first := rangeProofs[0]
	if first.StartBlock != req.StartBlock {
		return fmt.Errorf("aggregation request %d: first range proof %d starts at %d, want %d", req.ID, first.ID, first.StartBlock, req.StartBlock)
	}
	if !first.Commitment.Equal(commitment) {
		return fmt.Errorf("aggregation request %d: range proof %d has mismatched fingerprint", req.ID, first.ID)
	}
	for i := 1; i < len(rangeProofs); i++ {
		prev, next := rangeProofs[i-1], rangeProofs[i]
		if prev.EndBlock != next.StartBlock {
			return fmt.Errorf("aggregation request %d: gap/overlap between range proof %d (end %d) and %d (start %d)",
				req.ID, prev.ID, prev.EndBlock, next.ID, next.StartBlock)
		}
		if !next.Commitment.Equal(commitment) {
			return fmt.Errorf("aggregation request %d: range proof %d has mismatched fingerprint", req.ID, next.ID)
		}
	}
	last := rangeProofs[len(rangeProofs)-1]
	if last.EndBlock != req.EndBlock {
		return fmt.Errorf("aggregation request %d: last range proof %d ends at %d, want %d", req.ID, last.ID, last.EndBlock, req.EndBlock)
	}
	return nil
}

// fetchHeaderPreimages decodes each constituent range proof's boot info to
// recover the L1 head it consumed, then fetches the ordered L1 header
// chain from the earliest of those heads up to checkpointHash (spec §4.1's
// get_header_preimages). Headers are RLP-encoded since AggWitnessBuilder's
// stdin-building interface only deals in opaque byte blobs.
func (r *Requester) fetchHeaderPreimages(ctx context.Context, rangeProofs []*types.Request, checkpointHash common.Hash) ([][]byte, error) {
	l1Heads := make([]common.Hash, len(rangeProofs))
	for i, rp := range rangeProofs {
		bootInfo, err := r.AggBuilder.DecodeBootInfo(rp.Proof)
		if err != nil {
			return nil, fmt.Errorf("decode boot info for range proof %d: %w", rp.ID, err)
		}
		l1Heads[i] = bootInfo.L1Head
	}

	headers, err := r.Fetcher.GetHeaderPreimages(ctx, l1Heads, checkpointHash)
	if err != nil {
		return nil, err
	}

	encoded := make([][]byte, len(headers))
	for i, h := range headers {
		b, err := rlp.EncodeToBytes(h)
		if err != nil {
			return nil, fmt.Errorf("rlp-encode L1 header preimage %d: %w", h.Number, err)
		}
		encoded[i] = b
	}
	return encoded, nil
}
