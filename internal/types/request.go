// Package types holds the persistent data model shared by the scheduler,
// the request store and the dispute coordinator.
package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RequestType distinguishes a range proof (covers one contiguous L2 block
// interval) from an aggregation proof (recursively verifies a chain of
// range proofs).
type RequestType string

const (
	RequestTypeRange       RequestType = "range"
	RequestTypeAggregation RequestType = "aggregation"
)

// RequestMode selects whether a request is backed by a real network proof
// or a locally executed mock (no real proof, used for CI / cost estimation).
type RequestMode string

const (
	RequestModeReal RequestMode = "real"
	RequestModeMock RequestMode = "mock"
)

// RequestStatus is the request lifecycle state, per spec §3's finite state
// machine. Exactly one transition happens per scheduler reconciliation step.
type RequestStatus string

const (
	StatusUnrequested      RequestStatus = "unrequested"
	StatusWitnessGeneration RequestStatus = "witness_generation"
	StatusExecution        RequestStatus = "execution"
	StatusProve            RequestStatus = "prove"
	StatusComplete         RequestStatus = "complete"
	StatusRelayed          RequestStatus = "relayed"
	StatusFailed           RequestStatus = "failed"
	StatusCancelled        RequestStatus = "cancelled"
)

// NonTerminalStatuses are the statuses a request can be "in flight" under;
// used by I1/I2/I3 overlap and exclusivity checks.
var NonTerminalStatuses = []RequestStatus{
	StatusUnrequested, StatusWitnessGeneration, StatusExecution, StatusProve, StatusComplete,
}

// ActiveStatuses are every status except Cancelled/Failed — the set the
// gap-finder in the scheduler must treat as "already covering blocks".
var ActiveStatuses = append(append([]RequestStatus{}, NonTerminalStatuses...), StatusRelayed)

// CommitmentConfig is the fingerprint identifying the program binary and
// chain genesis a request was produced against (spec §3). Any state
// transition mixing requests across fingerprints is forbidden (I1-I3).
type CommitmentConfig struct {
	RangeVkeyCommitment common.Hash
	AggVkeyHash         common.Hash
	RollupConfigHash    common.Hash
}

// Equal reports whether two fingerprints identify the same program binary
// and chain genesis.
func (c CommitmentConfig) Equal(o CommitmentConfig) bool {
	return c.RangeVkeyCommitment == o.RangeVkeyCommitment &&
		c.AggVkeyHash == o.AggVkeyHash &&
		c.RollupConfigHash == o.RollupConfigHash
}

// ChainPair binds a request to its L1/L2 chain identifiers; ranges are
// never mixed across pairs.
type ChainPair struct {
	L1ChainID int64
	L2ChainID int64
}

// ExecutionStatistics is an opaque structured blob with cycle counts,
// populated only in mock mode.
type ExecutionStatistics struct {
	Cycles   uint64            `json:"cycles"`
	Gas      uint64            `json:"gas"`
	Extra    map[string]uint64 `json:"extra,omitempty"`
}

// Request is the central persistent entity of the system: a proof request
// with an immutable identity and mutable lifecycle fields. Field semantics
// follow spec §3's table exactly.
type Request struct {
	ID     int64
	Type   RequestType
	Mode   RequestMode
	Status RequestStatus

	// StartBlock/EndBlock are an exclusive-inclusive L2 block range for
	// range requests (start, end], and the closed interval [start, end]
	// for aggregation requests.
	StartBlock int64
	EndBlock   int64

	ChainPair

	Commitment CommitmentConfig

	// CheckpointedL1BlockHash/Number are set iff Type == Aggregation and
	// Status >= Unrequested (I5): the L1 block whose hash was snapshotted
	// on-chain before proof generation, so the aggregation program can
	// read a frozen L1 head from contract storage.
	CheckpointedL1BlockHash   *common.Hash
	CheckpointedL1BlockNumber *int64

	// ProverAddress is committed inside the aggregation proof to prevent
	// front-running of the relay transaction.
	ProverAddress *common.Address

	// ProofRequestID is the opaque 32-byte handle returned by the proving
	// service. Set iff Status in {Prove, Complete, Relayed} and Mode == Real (I4).
	ProofRequestID *[32]byte

	// Proof is the compressed-proof bytes (range) or on-chain proof bytes
	// (aggregation) once Status == Complete or later.
	Proof []byte

	TotalNbTransactions uint64
	TotalEthGasUsed     uint64
	TotalL1Fees         *uint256.Int
	TotalTxFees         *uint256.Int

	ExecutionStatistics *ExecutionStatistics

	WitnessgenDuration time.Duration
	ExecutionDuration  time.Duration
	ProveDuration      time.Duration

	L1HeadBlockNumber *int64

	RelayTxHash      *common.Hash
	ContractAddress  *common.Address

	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProofRequestTime *time.Time
}

// BlockRange returns the request's (start, end) tuple for overlap checks.
func (r *Request) BlockRange() (int64, int64) {
	return r.StartBlock, r.EndBlock
}

// IsTerminal reports whether the request will never transition again
// without external intervention (a fresh row via retry, not an in-place
// transition — see spec §5's ordering guarantees).
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case StatusRelayed, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ChainLock is an advisory row updated every scheduler loop iteration; a
// second scheduler refuses to start if the lock timestamp is fresher than
// the loop interval (I6).
type ChainLock struct {
	ChainPair
	UpdatedAt time.Time
}

// IsFresh reports whether the lock was updated within interval of now,
// meaning another live scheduler already owns this chain pair.
func (c ChainLock) IsFresh(interval time.Duration, now time.Time) bool {
	return now.Sub(c.UpdatedAt) < interval
}
