package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// CheckpointBlockHash freezes the latest L1 block's hash in the output
// oracle's storage and returns that block's hash and number (spec §4.5.2).
// The aggregation program reads the L1 head hash from contract storage, so
// the value must land on L1 before proof generation starts.
func (r *Relay) CheckpointBlockHash(ctx context.Context) (common.Hash, int64, error) {
	header, err := r.Fetcher.LatestL1Header(ctx)
	if err != nil {
		return common.Hash{}, 0, err
	}

	calldata, err := r.L2OO.PackCheckpointBlockHash(header.Number)
	if err != nil {
		return common.Hash{}, 0, err
	}
	to := r.L2OO.Address()
	tx := &gethtypes.DynamicFeeTx{To: &to, Value: big.NewInt(0), Data: calldata}
	receipt, err := r.Signer.SendTransactionRequest(ctx, r.L1Client, tx)
	if err != nil {
		return common.Hash{}, 0, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return common.Hash{}, 0, errutil.Newf(errutil.KindRelayReverted, "checkpointBlockHash tx %s reverted", receipt.TxHash)
	}

	log.Info("checkpointed L1 block hash", "l1_block", header.Number, "l1_hash", header.Hash(), "tx_hash", receipt.TxHash)
	return header.Hash(), header.Number.Int64(), nil
}
