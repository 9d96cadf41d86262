package fetcher

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// The output root is keccak(version=0 || state_root || bridge_storage ||
// block_hash); every component must shift the result.
func TestComputeOutputRootLocally(t *testing.T) {
	stateRoot := common.HexToHash("0x01")
	storageHash := common.HexToHash("0x02")
	blockHash := common.HexToHash("0x03")

	got := ComputeOutputRootLocally(stateRoot, storageHash, blockHash)

	var payload []byte
	payload = append(payload, make([]byte, 32)...)
	payload = append(payload, stateRoot.Bytes()...)
	payload = append(payload, storageHash.Bytes()...)
	payload = append(payload, blockHash.Bytes()...)
	require.Equal(t, crypto.Keccak256Hash(payload), got)

	require.NotEqual(t, got, ComputeOutputRootLocally(common.HexToHash("0xff"), storageHash, blockHash))
	require.NotEqual(t, got, ComputeOutputRootLocally(stateRoot, common.HexToHash("0xff"), blockHash))
	require.NotEqual(t, got, ComputeOutputRootLocally(stateRoot, storageHash, common.HexToHash("0xff")))
}
