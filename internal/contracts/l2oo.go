package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// L2OutputOracle wraps the Validity Output Oracle contract.
type L2OutputOracle struct {
	*bind.BoundContract
	address common.Address
}

// NewL2OutputOracle binds address using backend for both calls and sends.
func NewL2OutputOracle(address common.Address, backend bind.ContractBackend) *L2OutputOracle {
	return &L2OutputOracle{
		BoundContract: bind.NewBoundContract(address, l2ooABI, backend, backend, backend),
		address:       address,
	}
}

func (o *L2OutputOracle) Address() common.Address { return o.address }

// PackProposeL2Output ABI-encodes the direct-relay call (spec §4.7). Relay
// submits the resulting calldata through the Signer abstraction (§4.2)
// rather than through bind.BoundContract's own transact path, since
// signing is a closed {local, web3, HSM} variant this package doesn't own.
func (o *L2OutputOracle) PackProposeL2Output(configName, outputRoot common.Hash, l2Block, l1CheckpointBlock *big.Int, proof []byte, prover, beneficiary common.Address) ([]byte, error) {
	return l2ooABI.Pack("proposeL2Output", configName, outputRoot, l2Block, l1CheckpointBlock, proof, prover, beneficiary)
}

// PackCheckpointBlockHash ABI-encodes the checkpoint call that freezes an
// L1 block hash in contract storage so the aggregation program can read
// it deterministically (spec §4.5.2).
func (o *L2OutputOracle) PackCheckpointBlockHash(l1Block *big.Int) ([]byte, error) {
	return l2ooABI.Pack("checkpointBlockHash", l1Block)
}

// OpSuccinctConfig is the result of opSuccinctConfigs(configName) — the
// contract's view of the fingerprint this deployment expects.
type OpSuccinctConfig struct {
	AggregationVkey     common.Hash
	RangeVkeyCommitment common.Hash
	RollupConfigHash    common.Hash
}

func (o *L2OutputOracle) OpSuccinctConfigs(ctx context.Context, configName common.Hash) (*OpSuccinctConfig, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := o.Call(opts, &out, "opSuccinctConfigs", configName); err != nil {
		return nil, err
	}
	return &OpSuccinctConfig{
		AggregationVkey:     common.Hash(out[0].([32]byte)),
		RangeVkeyCommitment: common.Hash(out[1].([32]byte)),
		RollupConfigHash:    common.Hash(out[2].([32]byte)),
	}, nil
}

func (o *L2OutputOracle) SubmissionInterval(ctx context.Context) (*big.Int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := o.Call(opts, &out, "submissionInterval"); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// LatestBlockNumber returns the highest L2 block with a proposed output,
// the scheduler's on-chain half of the anchor computation.
func (o *L2OutputOracle) LatestBlockNumber(ctx context.Context) (*big.Int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := o.Call(opts, &out, "latestBlockNumber"); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
