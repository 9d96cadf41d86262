package proofprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/golang/protobuf/ptypes/empty"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// retryBackoff is how long PollStatus waits before its single retry after
// a per-call timeout (spec §4.3: "warn, retry after 2s").
const retryBackoff = 2 * time.Second

// perCallTimeout bounds a single gRPC call (spec §4.3's "Per-call
// timeout" axis).
const perCallTimeout = 60 * time.Second

// submitRequest/submitResponse/statusResponse/cancelRequest are the wire
// messages the proving network's gRPC service exchanges, grounded in
// _examples/original_source/grpc/src/proofs.serde.rs's submit/status/
// cancel shape. Marshaled with the JSON codec registered in codec.go.
type submitRequest struct {
	ProgramID   []byte   `json:"program_id"`
	Stdin       []byte   `json:"stdin"`
	Mode        string   `json:"mode"`
	TimeoutSecs uint64   `json:"timeout_secs"`
	CycleLimit  uint64   `json:"cycle_limit"`
	GasLimit    uint64   `json:"gas_limit"`
	Strategy    string   `json:"strategy"`
	Whitelist   []string `json:"whitelist,omitempty"`

	// Nonce deduplicates retried submissions server-side: a resend after
	// a lost response must not enter the auction twice.
	Nonce string `json:"nonce"`
}

type submitResponse struct {
	RequestID [32]byte `json:"request_id"`
}

type statusRequest struct {
	RequestID [32]byte `json:"request_id"`
}

type statusResponse struct {
	FulfillmentStatus string `json:"fulfillment_status"` // requested | fulfilled | unfulfillable
	ExecutionStatus   string `json:"execution_status"`   // unspecified | unexecutable | other
	Deadline          uint64 `json:"deadline"`
	ProofBytes        []byte `json:"proof_bytes,omitempty"`
	Cycles            uint64 `json:"cycles,omitempty"`
	SP1Gas            uint64 `json:"sp1_gas,omitempty"`
}

type cancelRequest struct {
	RequestID [32]byte `json:"request_id"`
}

// Network submits to the external proving auction service over gRPC and
// implements the 4-axis timeout table of spec §4.3.
type Network struct {
	conn    *grpc.ClientConn
	cfg     ProviderConfig
	limiter *rate.Limiter

	rangeProgramID []byte
	aggProgramID   []byte
	rangeVkey      [32]byte
	aggVkey        [32]byte

	whitelist []string
}

// NetworkParams configures a Network provider.
type NetworkParams struct {
	Endpoint       string
	APIKey         string
	RangeProgramID []byte
	AggProgramID   []byte
	RangeVkey      [32]byte
	AggVkey        [32]byte
	RangeStrategy  Strategy
	AggStrategy    Strategy
	ProvingTimeout time.Duration
	AuctionTimeout time.Duration
	IsMainnet      bool
	Whitelist      []string
}

// DialNetwork connects to the proving network's gRPC endpoint.
func DialNetwork(ctx context.Context, p NetworkParams) (*Network, error) {
	conn, err := grpc.NewClient(p.Endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(nil)),
		grpc.WithPerRPCCredentials(apiKeyCreds(p.APIKey)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial proving network %s: %w", p.Endpoint, err)
	}
	return &Network{
		conn:           conn,
		rangeProgramID: p.RangeProgramID,
		aggProgramID:   p.AggProgramID,
		rangeVkey:      p.RangeVkey,
		aggVkey:        p.AggVkey,
		whitelist:      p.Whitelist,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 5),
		cfg: ProviderConfig{
			Kind:           "network",
			RangeStrategy:  p.RangeStrategy,
			AggStrategy:    p.AggStrategy,
			ProvingTimeout: p.ProvingTimeout,
			AuctionTimeout: p.AuctionTimeout,
			IsMainnet:      p.IsMainnet,
		},
	}, nil
}

func (n *Network) Keys() (rangeVkeyCommitment, aggVkeyHash [32]byte) {
	return n.rangeVkey, n.aggVkey
}

func (n *Network) Config() ProviderConfig { return n.cfg }

func (n *Network) SubmitRangeProof(ctx context.Context, stdin []byte) (ProofID, error) {
	return n.submit(ctx, n.rangeProgramID, stdin, n.cfg.RangeStrategy)
}

func (n *Network) SubmitAggProof(ctx context.Context, stdin []byte) (ProofID, error) {
	return n.submit(ctx, n.aggProgramID, stdin, n.cfg.AggStrategy)
}

func (n *Network) submit(ctx context.Context, programID, stdin []byte, strategy Strategy) (ProofID, error) {
	req := submitRequest{
		ProgramID:   programID,
		Stdin:       stdin,
		Mode:        "compressed",
		TimeoutSecs: uint64(n.cfg.ProvingTimeout.Seconds()),
		Strategy:    string(strategy),
		Whitelist:   n.whitelist,
		Nonce:       uuid.NewString(),
	}
	var resp submitResponse
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()
	if err := n.conn.Invoke(callCtx, "/network.ProverNetwork/RequestProof", req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return ProofID{}, errutil.New(errutil.KindProofRequestSubmit, err)
	}
	return ProofID(resp.RequestID), nil
}

// PollStatus performs a single status round-trip, retrying once after
// retryBackoff on a per-call timeout, then evaluates the proving/auction/
// deadline axes against elapsedSinceSubmit (spec §4.3's table, property P9).
func (n *Network) PollStatus(ctx context.Context, id ProofID, elapsedSinceSubmit time.Duration) (ProofStatus, error) {
	status, err := n.pollOnce(ctx, id)
	if err != nil {
		log.Warn("proving network status poll failed, retrying once", "proof_id", fmt.Sprintf("%x", id), "err", err)
		time.Sleep(retryBackoff)
		status, err = n.pollOnce(ctx, id)
		if err != nil {
			return ProofStatus{}, errutil.New(errutil.KindRPCUnavailable, err)
		}
	}

	if elapsedSinceSubmit > n.cfg.ProvingTimeout {
		log.Warn("proof exceeded proving timeout, bailing", "proof_id", fmt.Sprintf("%x", id), "elapsed", elapsedSinceSubmit)
		return ProofStatus{}, timeoutError("proving")
	}

	if checkDeadline(status.Deadline, time.Now()) {
		return ProofStatus{}, timeoutError("deadline")
	}

	stillRequested := status.FulfillmentStatus == "requested"
	if checkAuction(n.cfg.IsMainnet, stillRequested, elapsedSinceSubmit, n.cfg.AuctionTimeout) {
		if cancelErr := n.Cancel(ctx, id); cancelErr != nil {
			log.Warn("failed to cancel auction-timed-out proof on server", "proof_id", fmt.Sprintf("%x", id), "err", cancelErr)
		}
		return ProofStatus{}, timeoutError("auction")
	}

	result := checkStatus(status.FulfillmentStatus == "fulfilled", status.FulfillmentStatus == "unfulfillable")
	out := ProofStatus{
		Result:   result,
		Deadline: status.Deadline,
		Proof:    status.ProofBytes,
		Cycles:   status.Cycles,
		SP1Gas:   status.SP1Gas,
	}
	if status.ExecutionStatus == "unexecutable" {
		out.Fulfillment = ExecutionUnexecutable
	} else if status.ExecutionStatus != "" {
		out.Fulfillment = ExecutionOther
	}
	return out, nil
}

func (n *Network) pollOnce(ctx context.Context, id ProofID) (*statusResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()
	if err := n.limiter.Wait(callCtx); err != nil {
		return nil, err
	}
	var resp statusResponse
	if err := n.conn.Invoke(callCtx, "/network.ProverNetwork/GetProofRequestStatus", statusRequest{RequestID: id}, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the server to cancel an in-flight proof request. The
// service replies with a protobuf Empty; the codec routes it through
// proto marshaling while the JSON request messages stay JSON.
func (n *Network) Cancel(ctx context.Context, id ProofID) error {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()
	return n.conn.Invoke(callCtx, "/network.ProverNetwork/CancelProofRequest", cancelRequest{RequestID: id}, &empty.Empty{}, grpc.CallContentSubtype(jsonCodecName))
}

func (n *Network) Close() error { return n.conn.Close() }

// apiKeyCreds is a minimal grpc/credentials.PerRPCCredentials
// implementation that attaches a static API key bearer header, the way
// sp1_sdk's NetworkProver authenticates (grounded in
// _examples/original_source/validity/src/proposer.rs's NetworkProver use).
type apiKeyCreds string

func (k apiKeyCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(k)}, nil
}

func (k apiKeyCreds) RequireTransportSecurity() bool { return true }
