package proofprovider

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// Executor is the witness-generator host program stand-in (out of scope
// per spec §1, referenced only through this interface): it locally
// executes a program against stdin and reports the real public values
// plus cycle/gas statistics, without producing a cryptographic proof.
type Executor interface {
	Execute(ctx context.Context, programID, stdin []byte) (publicValues []byte, stats types.ExecutionStatistics, err error)
}

// Mock executes locally via Executor and fabricates a proof envelope with
// the real public values but a placeholder proof blob, used for CI and
// cost estimation (spec §4.3). Submit runs synchronously to completion
// (no network auction to wait on), so PollStatus is a pure lookup that
// always reports Ready on the first call.
type Mock struct {
	exec           Executor
	rangeProgramID []byte
	aggProgramID   []byte
	rangeVkey      [32]byte
	aggVkey        [32]byte

	mu      sync.Mutex
	results map[ProofID]ProofStatus
}

func NewMock(exec Executor, rangeProgramID, aggProgramID []byte, rangeVkey, aggVkey [32]byte) *Mock {
	return &Mock{
		exec:           exec,
		rangeProgramID: rangeProgramID,
		aggProgramID:   aggProgramID,
		rangeVkey:      rangeVkey,
		aggVkey:        aggVkey,
		results:        make(map[ProofID]ProofStatus),
	}
}

func (m *Mock) Keys() (rangeVkeyCommitment, aggVkeyHash [32]byte) { return m.rangeVkey, m.aggVkey }

func (m *Mock) Config() ProviderConfig {
	return ProviderConfig{Kind: "mock", ProvingTimeout: time.Hour}
}

func (m *Mock) SubmitRangeProof(ctx context.Context, stdin []byte) (ProofID, error) {
	return m.executeAndStore(ctx, m.rangeProgramID, stdin)
}

func (m *Mock) SubmitAggProof(ctx context.Context, stdin []byte) (ProofID, error) {
	return m.executeAndStore(ctx, m.aggProgramID, stdin)
}

func (m *Mock) executeAndStore(ctx context.Context, programID, stdin []byte) (ProofID, error) {
	pv, stats, err := m.exec.Execute(ctx, programID, stdin)
	if err != nil {
		return ProofID{}, errutil.New(errutil.KindWitnessGenFailure, err)
	}
	id := ProofID(sha256.Sum256(stdin))
	status := ProofStatus{
		Result: Ready,
		Proof:  fabricateEnvelope(pv),
		Cycles: stats.Cycles,
		SP1Gas: stats.Gas,
	}
	m.mu.Lock()
	m.results[id] = status
	m.mu.Unlock()
	return id, nil
}

// PollStatus looks up a previously-executed mock result. Mock proofs never
// enter Pending, so this always succeeds once the matching Submit call has
// returned.
func (m *Mock) PollStatus(ctx context.Context, id ProofID, elapsedSinceSubmit time.Duration) (ProofStatus, error) {
	m.mu.Lock()
	status, ok := m.results[id]
	m.mu.Unlock()
	if !ok {
		return ProofStatus{}, errutil.Newf(errutil.KindProofRequestSubmit, "unknown mock proof id %x", id)
	}
	return status, nil
}

// Cancel discards the stored result for id, so a later PollStatus for it
// fails. A mock result is produced synchronously at Submit time, so there
// is never any work in flight to stop.
func (m *Mock) Cancel(ctx context.Context, id ProofID) error {
	m.mu.Lock()
	delete(m.results, id)
	m.mu.Unlock()
	return nil
}

// fabricateEnvelope wraps real public values with a placeholder proof
// blob identifiable as non-cryptographic, never accepted by an on-chain
// verifier (mock mode never relays, per spec §3's type semantics).
func fabricateEnvelope(publicValues []byte) []byte {
	envelope := make([]byte, 0, len(publicValues)+8)
	envelope = append(envelope, []byte("MOCKPRF\x00")...)
	envelope = append(envelope, publicValues...)
	return envelope
}
