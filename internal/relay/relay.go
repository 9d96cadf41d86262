// Package relay implements spec §4.7: building and submitting the
// on-chain aggregation transaction, either a direct proposeL2Output call
// to the output oracle or a DisputeGameFactory.create call, selected by
// whether a factory address is configured.
package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/signer"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// Relay builds and submits the aggregation relay transaction for one
// chain pair. DGF is nil iff the operator configured no DGF_ADDRESS, in
// which case the direct output-oracle path is used (spec §4.7's
// "Selection: if configured dgf_address != zero use the factory path").
type Relay struct {
	L1Client       *ethclient.Client
	Signer         signer.Signer
	L2OO           *contracts.L2OutputOracle
	DGF            *contracts.DisputeGameFactory
	Fetcher        *fetcher.Fetcher
	ConfigNameHash common.Hash
}

// Submit relays req, a Complete aggregation request, on-chain and returns
// the tx hash and the contract address it targeted. On a reverted
// receipt it returns a RelayReverted-kind error (spec §4.7/§7); the
// scheduler marks the aggregation Failed and a fresh checkpoint is taken
// on the next aggregation pass.
func (r *Relay) Submit(ctx context.Context, req *types.Request) (txHash common.Hash, contractAddr common.Address, err error) {
	if req.Type != types.RequestTypeAggregation || req.Status != types.StatusComplete {
		return common.Hash{}, common.Address{}, fmt.Errorf("relay: request %d is not a complete aggregation request", req.ID)
	}
	if req.CheckpointedL1BlockNumber == nil {
		return common.Hash{}, common.Address{}, fmt.Errorf("relay: aggregation request %d has no checkpointed L1 block number", req.ID)
	}

	output, err := r.Fetcher.GetOutputAtBlock(ctx, req.EndBlock)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}

	var prover common.Address
	if req.ProverAddress != nil {
		prover = *req.ProverAddress
	}

	to, calldata, value, err := r.buildCall(ctx, req, output.OutputRoot, prover)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}

	tx := &gethtypes.DynamicFeeTx{To: &to, Value: value, Data: calldata}
	receipt, err := r.Signer.SendTransactionRequest(ctx, r.L1Client, tx)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return common.Hash{}, common.Address{}, errutil.Newf(errutil.KindRelayReverted, "relay tx %s for request %d reverted", receipt.TxHash, req.ID)
	}
	log.Info("relayed aggregation proof", "request_id", req.ID, "tx_hash", receipt.TxHash, "contract", to, "end_block", req.EndBlock)
	return receipt.TxHash, to, nil
}

func (r *Relay) buildCall(ctx context.Context, req *types.Request, outputRoot common.Hash, prover common.Address) (to common.Address, calldata []byte, value *big.Int, err error) {
	if r.DGF != nil {
		extraData := packExtraData(big.NewInt(req.EndBlock), big.NewInt(*req.CheckpointedL1BlockNumber), prover, r.ConfigNameHash, req.Proof)
		calldata, err = r.DGF.PackCreate(outputRoot, extraData)
		if err != nil {
			return common.Address{}, nil, nil, fmt.Errorf("pack DisputeGameFactory.create: %w", err)
		}
		value, err = r.DGF.InitBonds(ctx, contracts.FaultGameType)
		if err != nil {
			return common.Address{}, nil, nil, fmt.Errorf("read DisputeGameFactory.initBonds: %w", err)
		}
		return r.DGF.Address(), calldata, value, nil
	}

	calldata, err = r.L2OO.PackProposeL2Output(r.ConfigNameHash, outputRoot, big.NewInt(req.EndBlock), big.NewInt(*req.CheckpointedL1BlockNumber), req.Proof, prover, common.Address{})
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("pack proposeL2Output: %w", err)
	}
	return r.L2OO.Address(), calldata, big.NewInt(0), nil
}

// packExtraData implements the dispute-game path's
// abi.encodePacked(end_block, checkpointed_l1_block_number, prover_address,
// config_name_hash, proof_bytes) (spec §4.7): fixed-width fields
// concatenated with no padding, the raw proof bytes appended last with no
// length prefix.
func packExtraData(endBlock, checkpointL1BlockNumber *big.Int, prover common.Address, configNameHash common.Hash, proof []byte) []byte {
	buf := make([]byte, 0, 32+32+20+32+len(proof))
	buf = append(buf, common.LeftPadBytes(endBlock.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(checkpointL1BlockNumber.Bytes(), 32)...)
	buf = append(buf, prover.Bytes()...)
	buf = append(buf, configNameHash.Bytes()...)
	buf = append(buf, proof...)
	return buf
}
