// Package proofprovider implements the uniform front for submitting and
// polling proofs named in spec §4.3: a closed {Network, Mock, Cluster}
// variant, not open polymorphism, since the set is finite (spec §9).
package proofprovider

import (
	"context"
	"time"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// Mode selects the zkVM execution mode: Real submits to a proving service,
// Mock executes locally with no real proof (spec §3).
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// Strategy mirrors spec §6's RANGE_PROOF_STRATEGY/AGG_PROOF_STRATEGY.
type Strategy string

const (
	StrategyReserved Strategy = "reserved"
	StrategyHosted   Strategy = "hosted"
)

// ProofID is the opaque 32-byte handle the proving service returns for a
// submitted request (spec §3's proof_request_id).
type ProofID [32]byte

// FulfillmentResult is the trinary result the scheduler is allowed to
// branch on; it never inspects a raw server status code (spec §4.3).
type FulfillmentResult int

const (
	Pending FulfillmentResult = iota
	Ready
	Failed
)

// ExecutionStatus narrows why a Failed result occurred, used by the
// retry-split policy (spec §4.5.5).
type ExecutionStatus int

const (
	ExecutionUnspecified ExecutionStatus = iota
	ExecutionUnexecutable
	ExecutionOther
)

// ProofStatus is the decoded status of an in-flight proof request, the
// result of one PollStatus round-trip (spec §4.5 step 5: the scheduler
// asks the provider for status once per loop iteration — it never spins
// in its own 2s poll loop waiting for a proof that can take hours).
type ProofStatus struct {
	Fulfillment ExecutionStatus
	Result      FulfillmentResult
	Deadline    uint64 // unix seconds, server-set per spec §4.3's "Server deadline" axis
	Proof       []byte // populated iff Result == Ready
	Cycles      uint64
	SP1Gas      uint64
}

// Provider is the closed proving-provider variant of spec §4.3/§9. Submit
// returns immediately with a ProofID (request_async semantics); the
// scheduler's own loop calls PollStatus once per iteration to progress the
// 4-axis timeout table, rather than the provider blocking internally.
type Provider interface {
	// SubmitRangeProof submits stdin as a range proof request and returns
	// immediately with the server's opaque handle.
	SubmitRangeProof(ctx context.Context, stdin []byte) (ProofID, error)

	// SubmitAggProof submits stdin as an aggregation proof request and
	// returns immediately with the server's opaque handle.
	SubmitAggProof(ctx context.Context, stdin []byte) (ProofID, error)

	// PollStatus performs one status round-trip (bounded by the per-call
	// timeout axis, with one retry) and evaluates the proving/auction/
	// deadline timeout axes against elapsedSinceSubmit. On an auction
	// timeout it also cancels the request on the server.
	PollStatus(ctx context.Context, id ProofID, elapsedSinceSubmit time.Duration) (ProofStatus, error)

	// Cancel asks the server to cancel an in-flight proof request.
	Cancel(ctx context.Context, id ProofID) error

	// Keys returns the program's verification keys (range vkey commitment,
	// aggregation vkey hash), used to derive the commitment fingerprint.
	Keys() (rangeVkeyCommitment, aggVkeyHash [32]byte)

	// Config describes this provider's operating mode, for logging.
	Config() ProviderConfig
}

// ProviderConfig summarizes a Provider's operating parameters.
type ProviderConfig struct {
	Kind           string
	RangeStrategy  Strategy
	AggStrategy    Strategy
	ProvingTimeout time.Duration
	AuctionTimeout time.Duration
	IsMainnet      bool
}

// checkStatus classifies a raw server fulfillment_status into the trinary
// result the scheduler branches on (spec §4.3, property P9).
func checkStatus(serverFulfilled, serverUnfulfillable bool) FulfillmentResult {
	switch {
	case serverFulfilled:
		return Ready
	case serverUnfulfillable:
		return Failed
	default:
		return Pending
	}
}

// checkDeadline reports whether now has passed the server-set deadline
// (spec §4.3's "Server deadline" axis, property P9:
// check_deadline(deadline=2000, current=2001) = Exceeded).
func checkDeadline(deadline uint64, now time.Time) bool {
	return uint64(now.Unix()) > deadline
}

// checkAuction reports whether the mainnet-only auction timeout axis has
// elapsed (property P9: check_auction(is_mainnet=false, ...) = Skip;
// check_auction(is_mainnet=true, status=Requested, elapsed>timeout) = Exceeded).
func checkAuction(isMainnet bool, stillRequested bool, elapsed, timeout time.Duration) bool {
	if !isMainnet {
		return false
	}
	return stillRequested && elapsed > timeout
}

// timeoutError maps one of the 4 timeout axes to its errutil.Kind.
func timeoutError(axis string) *errutil.Error {
	switch axis {
	case "proving":
		return errutil.Newf(errutil.KindProvingTimeout, "proving timeout exceeded")
	case "auction":
		return errutil.Newf(errutil.KindAuctionTimeout, "auction timeout exceeded")
	case "deadline":
		return errutil.Newf(errutil.KindDeadlineExceeded, "server deadline exceeded")
	default:
		return errutil.Newf(errutil.KindProvingTimeout, "unknown timeout axis %q", axis)
	}
}
