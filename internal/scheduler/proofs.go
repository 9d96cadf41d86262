package scheduler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/proofrequester"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// addNewRanges is step 6 (spec §4.5.1): compute the gaps in
// (anchor, finalized] not covered by any active request, split them into
// provable sub-ranges, and insert them as Unrequested range requests
// populated with block metrics. Idempotent (P6): with no external change,
// a second pass finds no gaps.
func (s *Scheduler) addNewRanges(ctx context.Context, anchor int64) error {
	finalized, err := s.deps.Blocks.FinalizedL2BlockNumber(ctx)
	if err != nil {
		return err
	}
	if finalized <= anchor {
		return nil
	}

	active, err := s.deps.Store.RangesAfterBlock(ctx, types.ActiveStatuses, anchor, s.commitment, s.chain)
	if err != nil {
		return err
	}
	covered := make([]blockRange, len(active))
	for i, r := range active {
		covered[i] = blockRange{Start: r[0], End: r[1]}
	}

	gaps := findGaps(anchor, finalized, covered)
	if len(gaps) == 0 {
		return nil
	}

	var subranges []blockRange
	blockData := make(map[int64]fetcher.BlockData)
	if s.cfg.EVMGasLimit > 0 {
		infos := make(map[int64]BlockInfo)
		for _, g := range gaps {
			data, err := s.deps.Blocks.GetBlockDataRange(ctx, g.Start+1, g.End)
			if err != nil {
				return err
			}
			for _, d := range data {
				blockData[d.BlockNumber] = d
				infos[d.BlockNumber] = BlockInfo{BlockNumber: d.BlockNumber, GasUsed: d.GasUsed}
			}
		}
		subranges, err = rangesToProveByGas(gaps, s.cfg.EVMGasLimit, s.cfg.RangeProofInterval, infos)
		if err != nil {
			return errutil.New(errutil.KindWitnessMissingBlock, err)
		}
	} else {
		subranges = rangesToProveByBlocks(gaps, s.cfg.RangeProofInterval)
		for _, sr := range subranges {
			data, err := s.deps.Blocks.GetBlockDataRange(ctx, sr.Start+1, sr.End)
			if err != nil {
				return err
			}
			for _, d := range data {
				blockData[d.BlockNumber] = d
			}
		}
	}
	if len(subranges) == 0 {
		return nil
	}

	reqs := make([]*types.Request, 0, len(subranges))
	for _, sr := range subranges {
		reqs = append(reqs, s.newRangeRequest(sr, blockData))
	}
	if err := s.deps.Store.InsertRequests(ctx, reqs); err != nil {
		return err
	}
	log.Info("added range requests", "count", len(reqs), "first_start", reqs[0].StartBlock, "last_end", reqs[len(reqs)-1].EndBlock)
	return nil
}

func (s *Scheduler) newRangeRequest(sr blockRange, blockData map[int64]fetcher.BlockData) *types.Request {
	blocks := make([]fetcher.BlockData, 0, sr.End-sr.Start)
	for b := sr.Start + 1; b <= sr.End; b++ {
		if d, ok := blockData[b]; ok {
			blocks = append(blocks, d)
		}
	}
	nbTx, gasUsed, l1Fees, txFees := fetcher.SumBlockData(blocks)

	return &types.Request{
		Type:                types.RequestTypeRange,
		Mode:                s.requestMode(),
		Status:              types.StatusUnrequested,
		StartBlock:          sr.Start,
		EndBlock:            sr.End,
		ChainPair:           s.chain,
		Commitment:          s.commitment,
		TotalNbTransactions: nbTx,
		TotalEthGasUsed:     gasUsed,
		TotalL1Fees:         l1Fees,
		TotalTxFees:         txFees,
	}
}

func (s *Scheduler) requestMode() types.RequestMode {
	if s.cfg.Mock {
		return types.RequestModeMock
	}
	return types.RequestModeReal
}

// createAggregationProofs is step 7 (spec §4.5.2): when a contiguous
// chain of Complete range proofs starting at the anchor spans at least
// the submission interval, create one aggregation request over it —
// reusing a previously checkpointed L1 block hash when a failed attempt
// at the same (start, end) left one behind (P7), otherwise submitting a
// fresh checkpoint transaction.
func (s *Scheduler) createAggregationProofs(ctx context.Context, anchor int64) error {
	activeAggs, err := s.deps.Store.ActiveAggProofsCount(ctx, anchor, s.commitment, s.chain)
	if err != nil {
		return err
	}
	if activeAggs > 0 {
		// I2: at most one non-terminal aggregation per start block.
		return nil
	}

	highest, err := s.highestContiguousProvenBlock(ctx, anchor)
	if err != nil {
		return err
	}

	contractInterval, err := s.deps.Contract.SubmissionInterval(ctx)
	if err != nil {
		return errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("read submissionInterval: %w", err))
	}
	required := contractInterval.Int64()
	if s.cfg.SubmissionInterval > required {
		required = s.cfg.SubmissionInterval
	}
	if highest-anchor < required {
		return nil
	}

	cpHash, cpNumber, err := s.checkpointedL1Block(ctx, anchor, highest)
	if err != nil {
		return err
	}

	constituents, err := s.deps.Store.ConsecutiveCompleteRangeProofs(ctx, anchor, highest, s.commitment, s.chain)
	if err != nil {
		return err
	}
	var nbTx, gasUsed uint64
	for _, c := range constituents {
		nbTx += c.TotalNbTransactions
		gasUsed += c.TotalEthGasUsed
	}

	prover := s.cfg.ProverAddress
	req := &types.Request{
		Type:                      types.RequestTypeAggregation,
		Mode:                      s.requestMode(),
		Status:                    types.StatusUnrequested,
		StartBlock:                anchor,
		EndBlock:                  highest,
		ChainPair:                 s.chain,
		Commitment:                s.commitment,
		CheckpointedL1BlockHash:   &cpHash,
		CheckpointedL1BlockNumber: &cpNumber,
		ProverAddress:             &prover,
		TotalNbTransactions:       nbTx,
		TotalEthGasUsed:           gasUsed,
	}
	if err := s.deps.Store.InsertRequest(ctx, req); err != nil {
		return err
	}
	log.Info("created aggregation request", "request_id", req.ID, "start_block", anchor, "end_block", highest,
		"checkpointed_l1_block", cpNumber)
	return nil
}

// checkpointedL1Block reuses the checkpoint of a prior failed aggregation
// at the exact same (start, end, fingerprint) when one exists — no second
// on-chain checkpoint transaction (P7) — and otherwise submits one.
func (s *Scheduler) checkpointedL1Block(ctx context.Context, start, end int64) (common.Hash, int64, error) {
	prior, err := s.deps.Store.FailedAggRequestWithCheckpointedBlockHash(ctx, start, end, s.commitment, s.chain)
	if err != nil {
		return common.Hash{}, 0, err
	}
	if prior != nil && prior.CheckpointedL1BlockHash != nil && prior.CheckpointedL1BlockNumber != nil {
		log.Info("reusing checkpointed L1 block hash from failed aggregation", "prior_request_id", prior.ID,
			"l1_block", *prior.CheckpointedL1BlockNumber)
		return *prior.CheckpointedL1BlockHash, *prior.CheckpointedL1BlockNumber, nil
	}
	return s.deps.Checkpoint.CheckpointBlockHash(ctx)
}

// requestQueuedProofs is step 8 (spec §4.5.3): under the two concurrency
// caps, dispatch the pending aggregation for the anchor if its
// constituents validate (spec §4.5.4), else the oldest unrequested range.
func (s *Scheduler) requestQueuedProofs(ctx context.Context, anchor int64) error {
	wgCount, err := s.deps.Store.RequestCount(ctx, types.StatusWitnessGeneration, s.commitment, s.chain)
	if err != nil {
		return err
	}
	execCount, err := s.deps.Store.RequestCount(ctx, types.StatusExecution, s.commitment, s.chain)
	if err != nil {
		return err
	}
	if wgCount+execCount >= s.cfg.MaxConcurrentWitnessGen {
		return nil
	}
	proveCount, err := s.deps.Store.RequestCount(ctx, types.StatusProve, s.commitment, s.chain)
	if err != nil {
		return err
	}
	if wgCount+execCount+proveCount >= s.cfg.MaxConcurrentProofRequests {
		return nil
	}

	if agg, err := s.deps.Store.UnrequestedAggProofAfter(ctx, anchor, s.commitment, s.chain); err != nil {
		return err
	} else if agg != nil {
		constituents, err := s.deps.Store.ConsecutiveCompleteRangeProofs(ctx, agg.StartBlock, agg.EndBlock, s.commitment, s.chain)
		if err != nil {
			return err
		}
		if err := proofrequester.ValidateAggregationConstituents(agg, constituents, s.commitment); err == nil {
			s.dispatch(ctx, agg)
			return nil
		} else {
			// Leaves the aggregation Unrequested and falls through to
			// range dispatch (spec §4.5.4).
			log.Warn("aggregation constituents not yet valid", "request_id", agg.ID, "err", err)
		}
	}

	rangeReq, err := s.deps.Store.FirstUnrequestedRangeProofAfter(ctx, anchor, s.commitment, s.chain)
	if err != nil {
		return err
	}
	if rangeReq != nil {
		s.dispatch(ctx, rangeReq)
	}
	return nil
}

// submitAggregationProofs is step 9 (spec §4.5's relay step): at most one
// Relayed transition per iteration, keeping the on-chain submission
// strictly serialized (spec §5, P8).
func (s *Scheduler) submitAggregationProofs(ctx context.Context, anchor int64) error {
	agg, err := s.deps.Store.CompletedAggProofAfter(ctx, anchor, s.commitment, s.chain)
	if err != nil {
		return err
	}
	if agg == nil {
		return nil
	}

	txHash, contractAddr, err := s.deps.Relay.Submit(ctx, agg)
	if err != nil {
		kind, _ := errutil.KindOf(err)
		switch kind {
		case errutil.KindRelayReverted, errutil.KindSignerFailure:
			// Fail the aggregation; the next aggregation pass recreates
			// it with a fresh checkpoint (spec §7's RelayReverted row).
			log.Error("aggregation relay failed", "request_id", agg.ID, "kind", kind, "err", err)
			return s.deps.Store.UpdateStatus(ctx, agg.ID, types.StatusFailed)
		default:
			return err
		}
	}
	return s.deps.Store.UpdateToRelayed(ctx, agg.ID, txHash, contractAddr)
}

// handleFailedRequest applies the retry policy of spec §4.5.5: fail the
// request, and for a splittable range that was Unexecutable or has now
// failed more than twice, insert the two halves as fresh Unrequested
// requests (P5: the halves exactly cover the original range).
func (s *Scheduler) handleFailedRequest(ctx context.Context, req *types.Request, unexecutable bool) error {
	if err := s.deps.Store.UpdateStatus(ctx, req.ID, types.StatusFailed); err != nil {
		return err
	}
	if req.Type != types.RequestTypeRange || req.EndBlock-req.StartBlock <= 1 {
		return nil
	}

	if !unexecutable {
		failedCount, err := s.deps.Store.FailedRequestCountByBlockRange(ctx, req.StartBlock, req.EndBlock, s.commitment, s.chain)
		if err != nil {
			return err
		}
		if failedCount <= 2 {
			return nil
		}
	}

	mid := (req.StartBlock + req.EndBlock) / 2
	blockData := make(map[int64]fetcher.BlockData)
	data, err := s.deps.Blocks.GetBlockDataRange(ctx, req.StartBlock+1, req.EndBlock)
	if err != nil {
		// Metrics are best-effort on a split; the halves still cover the
		// range without them.
		log.Warn("block metrics unavailable for split ranges", "request_id", req.ID, "err", err)
	} else {
		for _, d := range data {
			blockData[d.BlockNumber] = d
		}
	}

	halves := []*types.Request{
		s.newRangeRequest(blockRange{Start: req.StartBlock, End: mid}, blockData),
		s.newRangeRequest(blockRange{Start: mid, End: req.EndBlock}, blockData),
	}
	if err := s.deps.Store.InsertRequests(ctx, halves); err != nil {
		return err
	}
	log.Warn("split failed range request", "request_id", req.ID, "start_block", req.StartBlock,
		"mid_block", mid, "end_block", req.EndBlock, "unexecutable", unexecutable)
	return nil
}
