package scheduler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/olekukonko/tablewriter"

	"github.com/tos-network/op-succinct-go/internal/types"
)

// metricsStatuses is the order the per-iteration summary lists statuses in.
var metricsStatuses = []types.RequestStatus{
	types.StatusUnrequested,
	types.StatusWitnessGeneration,
	types.StatusExecution,
	types.StatusProve,
	types.StatusComplete,
	types.StatusRelayed,
	types.StatusFailed,
	types.StatusCancelled,
}

// logMetrics is step 2 of the loop: a structured log line summarising the
// iteration plus a rendered table of request counts by status (spec §7's
// "per-iteration structured logs summarising counts").
func (s *Scheduler) logMetrics(ctx context.Context, anchor int64) error {
	finalized, err := s.deps.Blocks.FinalizedL2BlockNumber(ctx)
	if err != nil {
		return err
	}
	unsafeHead, err := s.deps.Blocks.UnsafeL2HeadBlockNumber(ctx)
	if err != nil {
		return err
	}
	provenUpTo, err := s.highestContiguousProvenBlock(ctx, anchor)
	if err != nil {
		return err
	}

	log.Info("scheduler iteration",
		"anchor", anchor,
		"highest_proven_contiguous", provenUpTo,
		"l2_finalized", finalized,
		"l2_unsafe", unsafeHead,
		"live_workers", s.taskCount(),
		"total_error_count", s.totalErrorCount,
	)

	table := tablewriter.NewWriter(s.cfg.MetricsWriter)
	table.SetHeader([]string{"Status", "Count"})
	table.SetBorder(false)
	for _, status := range metricsStatuses {
		count, err := s.deps.Store.RequestCount(ctx, status, s.commitment, s.chain)
		if err != nil {
			return err
		}
		table.Append([]string{string(status), fmt.Sprintf("%d", count)})
	}
	table.Render()
	return nil
}

// highestContiguousProvenBlock walks the Complete range requests above
// anchor and returns the end of the maximal contiguous chain, the same
// walk the aggregation pass performs.
func (s *Scheduler) highestContiguousProvenBlock(ctx context.Context, anchor int64) (int64, error) {
	completed, err := s.deps.Store.CompletedRangesAfterBlock(ctx, anchor, s.commitment, s.chain)
	if err != nil {
		return 0, err
	}
	highest := anchor
	for _, r := range completed {
		if r[0] == highest {
			highest = r[1]
		} else if r[0] > highest {
			break
		}
	}
	return highest, nil
}
