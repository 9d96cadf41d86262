// Package store implements the durable, multi-writer-safe RequestStore of
// spec §4.4: a persistent log of proof requests with status, commitments,
// proof bytes and timings, queryable by fingerprint + chain pair.
package store

import (
	"context"
	"time"

	"github.com/tos-network/op-succinct-go/internal/types"
)

// Store is the durable proof-request log. All queries below are
// parameterized by (commitment, chain pair); mixing fingerprints or
// chains is forbidden by the caller's contract, not by the store itself.
type Store interface {
	// InsertRequest inserts a single new request and assigns its ID.
	InsertRequest(ctx context.Context, req *types.Request) error

	// InsertRequests inserts many requests in one batch, falling back to
	// inserting them one at a time (skipping unique-key conflicts) if the
	// batch insert itself fails.
	InsertRequests(ctx context.Context, reqs []*types.Request) error

	// UpdateStatus transitions req to status, bumping UpdatedAt.
	UpdateStatus(ctx context.Context, id int64, status types.RequestStatus) error

	// UpdateToProve atomically sets ProofRequestID and transitions to Prove.
	UpdateToProve(ctx context.Context, id int64, proofRequestID [32]byte) error

	// UpdateToComplete atomically records proof bytes and transitions to Complete.
	UpdateToComplete(ctx context.Context, id int64, proof []byte) error

	// UpdateToRelayed atomically records the relay tx hash + contract
	// address and transitions to Relayed.
	UpdateToRelayed(ctx context.Context, id int64, txHash [32]byte, contract [20]byte) error

	// UpdateWitnessgenDuration records the witness-generation wall time.
	UpdateWitnessgenDuration(ctx context.Context, id int64, d time.Duration) error

	// UpdateProveDuration records elapsed time since ProofRequestTime.
	UpdateProveDuration(ctx context.Context, id int64) error

	// UpdateL1HeadBlockNumber records the L1 block that bounds derivation input.
	UpdateL1HeadBlockNumber(ctx context.Context, id int64, l1BlockNumber int64) error

	// UpdateExecutionStats records mock-mode cycle statistics and the
	// local execution wall time.
	UpdateExecutionStats(ctx context.Context, id int64, stats types.ExecutionStatistics, d time.Duration) error

	// GetRequest fetches a single request by ID.
	GetRequest(ctx context.Context, id int64) (*types.Request, error)

	// RangesAfterBlock returns (start, end) tuples of requests with one of
	// the given statuses, start block >= latestContractL2Block, sorted by start.
	RangesAfterBlock(ctx context.Context, statuses []types.RequestStatus, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error)

	// CompletedRangesAfterBlock is RangesAfterBlock filtered to Complete range requests.
	CompletedRangesAfterBlock(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error)

	// HighestEndBlockForRangeRequest returns the highest end block among
	// range requests with one of the given statuses.
	HighestEndBlockForRangeRequest(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (*int64, error)

	// FirstUnrequestedRangeProofAfter returns the oldest Unrequested range
	// request with start block >= latestContractL2Block.
	FirstUnrequestedRangeProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error)

	// UnrequestedAggProofAfter returns the (at most one, by I2) Unrequested
	// aggregation request with start block >= latestContractL2Block.
	UnrequestedAggProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error)

	// CompletedAggProofAfter returns a Complete aggregation request with
	// start block >= latestContractL2Block, if any.
	CompletedAggProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error)

	// ConsecutiveCompleteRangeProofs returns the Complete range requests
	// between start and end, sorted by start, for aggregation pre-validation.
	ConsecutiveCompleteRangeProofs(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error)

	// FailedRequestCountByBlockRange counts Failed requests for the exact
	// (start, end, fingerprint, chain), used for retry-split thresholds.
	FailedRequestCountByBlockRange(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error)

	// ActiveAggProofsCount counts non-terminal aggregation requests at
	// startBlock, for I2 enforcement.
	ActiveAggProofsCount(ctx context.Context, startBlock int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error)

	// FailedAggRequestWithCheckpointedBlockHash finds a prior Failed
	// aggregation request for the exact (start, end) with a recorded
	// checkpoint, so a retry can reuse it instead of re-checkpointing on L1.
	FailedAggRequestWithCheckpointedBlockHash(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error)

	// RequestCount counts all requests with the given status, for
	// concurrency-limit enforcement.
	RequestCount(ctx context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error)

	// RequestsByStatus returns every request with the given status.
	RequestsByStatus(ctx context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error)

	// CancelRequestsIn bulk-transitions requests in any of statuses to Cancelled.
	CancelRequestsIn(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error

	// DeleteRequestsIn bulk-deletes requests in any of statuses. Used at
	// startup for statuses that cannot safely be resumed (Unrequested,
	// WitnessGeneration, Execution) after a crash.
	DeleteRequestsIn(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error

	// CancelProveRequestsWithDifferentFingerprint cancels every Prove
	// request whose commitment != current, used when rebuilding with a
	// new program binary.
	CancelProveRequestsWithDifferentFingerprint(ctx context.Context, current types.CommitmentConfig, chain types.ChainPair) error

	// AddChainLock inserts (or refreshes) the advisory chain lock.
	AddChainLock(ctx context.Context, chain types.ChainPair) error

	// IsChainLocked reports whether another live scheduler already holds
	// a fresh lock on chain (I6).
	IsChainLocked(ctx context.Context, chain types.ChainPair, interval time.Duration) (bool, error)

	// UpdateChainLock refreshes the lock's timestamp.
	UpdateChainLock(ctx context.Context, chain types.ChainPair) error

	Close() error
}
