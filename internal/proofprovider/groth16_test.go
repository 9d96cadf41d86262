package proofprovider

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/stretchr/testify/require"
)

// All-infinity points multiply out to the identity on both sides of the
// verification equation, the smallest instance the pairing check accepts.
func TestVerifyGroth16EnvelopeIdentityInstance(t *testing.T) {
	vk := &groth16VerifyingKey{IC: make([]bn254.G1Affine, 1)}
	proof := &groth16Proof{}
	require.NoError(t, VerifyGroth16Envelope(vk, proof, nil))
}

func TestVerifyGroth16EnvelopeRejectsBadProof(t *testing.T) {
	_, _, g1, g2 := bn254.Generators()

	vk := &groth16VerifyingKey{IC: make([]bn254.G1Affine, 1)}
	proof := &groth16Proof{A: g1, B: g2}
	require.Error(t, VerifyGroth16Envelope(vk, proof, nil))
}

func TestVerifyGroth16EnvelopePublicInputArity(t *testing.T) {
	vk := &groth16VerifyingKey{IC: make([]bn254.G1Affine, 1)}
	err := VerifyGroth16Envelope(vk, &groth16Proof{}, []*big.Int{big.NewInt(1)})
	require.ErrorContains(t, err, "expected 0 public inputs")
}
