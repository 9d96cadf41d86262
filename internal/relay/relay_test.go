package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// packExtraData mirrors abi.encodePacked: fixed-width fields back to
// back, the raw proof bytes last with no length prefix.
func TestPackExtraDataLayout(t *testing.T) {
	endBlock := big.NewInt(1050)
	checkpoint := big.NewInt(19_000_000)
	prover := common.HexToAddress("0x1111111111111111111111111111111111111111")
	configHash := common.HexToHash("0x22")
	proof := []byte{0xde, 0xad, 0xbe, 0xef}

	packed := packExtraData(endBlock, checkpoint, prover, configHash, proof)

	require.Len(t, packed, 32+32+20+32+len(proof))
	require.Equal(t, common.LeftPadBytes(endBlock.Bytes(), 32), packed[:32])
	require.Equal(t, common.LeftPadBytes(checkpoint.Bytes(), 32), packed[32:64])
	require.Equal(t, prover.Bytes(), packed[64:84])
	require.Equal(t, configHash.Bytes(), packed[84:116])
	require.Equal(t, proof, packed[116:])
}

func TestPackExtraDataZeroValues(t *testing.T) {
	packed := packExtraData(big.NewInt(0), big.NewInt(0), common.Address{}, common.Hash{}, nil)
	require.Len(t, packed, 116)
	for _, b := range packed {
		require.Zero(t, b)
	}
}
