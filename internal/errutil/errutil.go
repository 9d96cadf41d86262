// Package errutil implements the closed error-kind taxonomy of spec §7.
// Every error the scheduler needs to branch on is tagged with a Kind;
// everything else is an opaque wrapped error.
package errutil

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// Kind is one of the error origins listed in spec §7's table. The
// scheduler's top-level loop only ever switches on Kind, never on the
// underlying cause.
type Kind string

const (
	KindRPCUnavailable      Kind = "rpc_unavailable"
	KindWitnessGenFailure   Kind = "witnessgen_failure"
	KindProofRequestSubmit  Kind = "proof_request_submit"
	KindProofUnfulfillable  Kind = "proof_unfulfillable"
	KindProvingTimeout      Kind = "proving_timeout"
	KindAuctionTimeout      Kind = "auction_timeout"
	KindDeadlineExceeded    Kind = "deadline_exceeded"
	KindWitnessMissingBlock Kind = "witness_missing_block_info"
	KindRelayReverted       Kind = "relay_reverted"
	KindConfigMismatch      Kind = "config_mismatch"
	KindChainLockConflict   Kind = "chain_lock_conflict"
	KindSignerFailure       Kind = "signer_failure"
)

// Fatal reports whether an error of this kind must abort the process
// rather than being retried by the scheduler's outer loop (spec §7).
func (k Kind) Fatal() bool {
	switch k {
	case KindConfigMismatch, KindChainLockConflict:
		return true
	default:
		return false
	}
}

// Error wraps a cause with a Kind and the stack frame it was raised from,
// in the manner go-ethereum's internal error helpers attach call-site
// context to sentinel errors.
type Error struct {
	Kind  Kind
	Cause error
	frame stack.Call
}

func New(kind Kind, cause error) *Error {
	var frame stack.Call
	if cs := stack.Caller(1); true {
		frame = cs
	}
	return &Error{Kind: kind, Cause: cause, frame: frame}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v (%+v)", e.Kind, e.Cause, e.frame)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind tagging err, if any was attached via New/Newf.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsFatal reports whether err carries a Kind that must abort the process.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Fatal()
}
