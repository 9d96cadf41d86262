// Package scheduler implements the core reconciliation loop of spec §4.5:
// one instance per chain pair, diffing contract state, the request store
// and the in-memory task map once per loop interval, emitting new range
// requests, advancing proof lifecycles and triggering the on-chain relay.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/store"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// errorBackoff is how long the loop sleeps before restarting after a
// failed iteration (spec §4.5: "a 10-second sleep and a loop restart").
const errorBackoff = 10 * time.Second

// ContractView is the read-only contract surface the scheduler consults
// each iteration: the configured fingerprint, the submission interval and
// the latest proposed L2 block. contracts.L2OutputOracle implements it.
type ContractView interface {
	OpSuccinctConfigs(ctx context.Context, configName common.Hash) (*contracts.OpSuccinctConfig, error)
	SubmissionInterval(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (*big.Int, error)
}

// Checkpointer freezes an L1 block hash in contract storage ahead of
// aggregation proving (spec §4.5.2). relay.Relay implements it.
type Checkpointer interface {
	CheckpointBlockHash(ctx context.Context) (common.Hash, int64, error)
}

// RelaySubmitter posts a Complete aggregation request on-chain (spec
// §4.7). relay.Relay implements it.
type RelaySubmitter interface {
	Submit(ctx context.Context, req *types.Request) (txHash common.Hash, contractAddr common.Address, err error)
}

// BlockSource supplies L2 chain observations: the block eligible for
// proving (DA-dependent, spec §9's DA-availability abstraction — the
// Fetcher's implementation is the Ethereum-DA one), the unsafe head for
// metrics, and per-block metrics for new requests. fetcher.Fetcher
// implements it.
type BlockSource interface {
	FinalizedL2BlockNumber(ctx context.Context) (int64, error)
	UnsafeL2HeadBlockNumber(ctx context.Context) (int64, error)
	GetBlockDataRange(ctx context.Context, start, end int64) ([]fetcher.BlockData, error)
}

// Fulfiller is the per-request worker entry point (spec §4.6).
// proofrequester.Requester implements it.
type Fulfiller interface {
	Fulfill(ctx context.Context, req *types.Request) error
}

// Config tunes one scheduler instance (spec §6's scheduler options).
type Config struct {
	RangeProofInterval         int64
	SubmissionInterval         int64
	MaxConcurrentWitnessGen    int64
	MaxConcurrentProofRequests int64
	EVMGasLimit                uint64
	Mock                       bool
	LoopInterval               time.Duration
	ConfigNameHash             common.Hash
	ProverAddress              common.Address

	// MetricsWriter receives the per-iteration summary table. Defaults
	// to os.Stdout.
	MetricsWriter io.Writer
}

// Deps are the scheduler's collaborators, all behind narrow interfaces so
// tests can fake each one independently.
type Deps struct {
	Store      store.Store
	Provider   proofprovider.Provider
	Fulfiller  Fulfiller
	Contract   ContractView
	Checkpoint Checkpointer
	Relay      RelaySubmitter
	Blocks     BlockSource
}

// Scheduler reconciles contract state, the request store and the running
// worker tasks, one bounded iteration per loop interval. It is the single
// writer to fingerprint-bound requests (spec §5); safety relies on the
// chain lock (I6), not on per-row CAS.
type Scheduler struct {
	cfg        Config
	deps       Deps
	commitment types.CommitmentConfig
	chain      types.ChainPair

	mu    sync.Mutex
	tasks map[int64]*workerTask

	totalErrorCount uint64
}

// New builds a Scheduler for one chain pair under one fingerprint.
func New(cfg Config, deps Deps, commitment types.CommitmentConfig, chain types.ChainPair) *Scheduler {
	if cfg.MetricsWriter == nil {
		cfg.MetricsWriter = os.Stdout
	}
	return &Scheduler{
		cfg:        cfg,
		deps:       deps,
		commitment: commitment,
		chain:      chain,
		tasks:      make(map[int64]*workerTask),
	}
}

// Run acquires the chain lock, recovers leftover state from a previous
// process, then loops until ctx is cancelled or a fatal error occurs.
func (s *Scheduler) Run(ctx context.Context) error {
	locked, err := s.deps.Store.IsChainLocked(ctx, s.chain, s.cfg.LoopInterval)
	if err != nil {
		return err
	}
	if locked {
		return errutil.Newf(errutil.KindChainLockConflict,
			"another scheduler holds a fresh lock for chain pair (%d, %d)", s.chain.L1ChainID, s.chain.L2ChainID)
	}
	if err := s.deps.Store.AddChainLock(ctx, s.chain); err != nil {
		return err
	}
	if err := s.recoverState(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.LoopInterval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			if errutil.IsFatal(err) {
				return err
			}
			s.totalErrorCount++
			log.Error("scheduler iteration failed", "err", err, "total_error_count", s.totalErrorCount)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recoverState is the startup pass of spec §4.4's bulk operations:
// requests stuck in states that cannot safely be resumed after a crash
// are deleted (the next gap pass re-covers them, idempotent via I1), and
// Prove requests submitted under a stale fingerprint are cancelled.
func (s *Scheduler) recoverState(ctx context.Context) error {
	unresumable := []types.RequestStatus{types.StatusUnrequested, types.StatusWitnessGeneration, types.StatusExecution}
	if err := s.deps.Store.DeleteRequestsIn(ctx, unresumable, s.commitment, s.chain); err != nil {
		return err
	}
	return s.deps.Store.CancelProveRequestsWithDifferentFingerprint(ctx, s.commitment, s.chain)
}

// Tick runs the ten reconciliation steps of spec §4.5 strictly in order;
// step k sees the effect of steps 1..k-1.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.validateContractConfig(ctx); err != nil {
		return err
	}

	anchor, err := s.anchor(ctx)
	if err != nil {
		return err
	}

	if err := s.logMetrics(ctx, anchor); err != nil {
		log.Warn("metrics collection failed", "err", err)
	}
	if err := s.reapFinishedTasks(ctx); err != nil {
		return err
	}
	if err := s.sweepOrphans(ctx); err != nil {
		return err
	}
	if err := s.pollProveRequests(ctx); err != nil {
		return err
	}
	if err := s.addNewRanges(ctx, anchor); err != nil {
		return err
	}
	if err := s.createAggregationProofs(ctx, anchor); err != nil {
		return err
	}
	if err := s.requestQueuedProofs(ctx, anchor); err != nil {
		return err
	}
	if err := s.submitAggregationProofs(ctx, anchor); err != nil {
		return err
	}
	return s.deps.Store.UpdateChainLock(ctx, s.chain)
}

// validateContractConfig is step 1: the contract's configured fingerprint
// must match the in-memory one, or the operator must rebuild (spec §7's
// ConfigMismatch is fatal).
func (s *Scheduler) validateContractConfig(ctx context.Context) error {
	onchain, err := s.deps.Contract.OpSuccinctConfigs(ctx, s.cfg.ConfigNameHash)
	if err != nil {
		return errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("read opSuccinctConfigs: %w", err))
	}
	want := s.commitment
	if onchain.AggregationVkey != want.AggVkeyHash ||
		onchain.RangeVkeyCommitment != want.RangeVkeyCommitment ||
		onchain.RollupConfigHash != want.RollupConfigHash {
		return errutil.Newf(errutil.KindConfigMismatch,
			"contract config mismatch: contract has (agg_vkey=%s, range_vkey=%s, rollup_hash=%s), proposer built with (agg_vkey=%s, range_vkey=%s, rollup_hash=%s)",
			onchain.AggregationVkey, onchain.RangeVkeyCommitment, onchain.RollupConfigHash,
			want.AggVkeyHash, want.RangeVkeyCommitment, want.RollupConfigHash)
	}
	return nil
}

// anchor is the L2 block up to which valid proofs have settled on-chain:
// max(contract latest proposed block, highest relayed end block) per
// spec §4.5.1. The store half covers the window where a relay transaction
// has confirmed but the contract read still lags behind it.
func (s *Scheduler) anchor(ctx context.Context) (int64, error) {
	latest, err := s.deps.Contract.LatestBlockNumber(ctx)
	if err != nil {
		return 0, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("read latestBlockNumber: %w", err))
	}
	anchor := latest.Int64()

	relayed, err := s.deps.Store.RequestsByStatus(ctx, types.StatusRelayed, s.commitment, s.chain)
	if err != nil {
		return 0, err
	}
	for _, r := range relayed {
		if r.EndBlock > anchor {
			anchor = r.EndBlock
		}
	}
	return anchor, nil
}

// pollProveRequests is step 5: one status round-trip per in-flight proof,
// serialized (spec §5). Ready proofs complete, failed or timed-out ones
// go through the retry policy, everything else stays in Prove.
func (s *Scheduler) pollProveRequests(ctx context.Context) error {
	reqs, err := s.deps.Store.RequestsByStatus(ctx, types.StatusProve, s.commitment, s.chain)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if req.ProofRequestID == nil {
			// Violates I4; recover by failing the row so the gap pass
			// re-covers it.
			log.Error("prove-state request has no proof request id", "request_id", req.ID)
			if err := s.handleFailedRequest(ctx, req, false); err != nil {
				return err
			}
			continue
		}

		submitted := req.UpdatedAt
		if req.ProofRequestTime != nil {
			submitted = *req.ProofRequestTime
		}
		status, err := s.deps.Provider.PollStatus(ctx, proofprovider.ProofID(*req.ProofRequestID), time.Since(submitted))
		if err != nil {
			kind, _ := errutil.KindOf(err)
			switch kind {
			case errutil.KindProvingTimeout, errutil.KindAuctionTimeout, errutil.KindDeadlineExceeded:
				log.Warn("proof timed out", "request_id", req.ID, "kind", kind)
				if err := s.handleFailedRequest(ctx, req, false); err != nil {
					return err
				}
			default:
				log.Warn("proof status poll failed", "request_id", req.ID, "err", err)
			}
			continue
		}

		switch status.Result {
		case proofprovider.Ready:
			if err := s.deps.Store.UpdateProveDuration(ctx, req.ID); err != nil {
				return err
			}
			if err := s.deps.Store.UpdateToComplete(ctx, req.ID, status.Proof); err != nil {
				return err
			}
			log.Info("proof complete", "request_id", req.ID, "type", req.Type, "start_block", req.StartBlock, "end_block", req.EndBlock)
		case proofprovider.Failed:
			unexecutable := status.Fulfillment == proofprovider.ExecutionUnexecutable
			log.Warn("proof unfulfillable", "request_id", req.ID, "unexecutable", unexecutable)
			if err := s.handleFailedRequest(ctx, req, unexecutable); err != nil {
				return err
			}
		case proofprovider.Pending:
		}
	}
	return nil
}
