package proofprovider

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// groth16VerifyingKey/groth16Proof hold only the curve points the pairing
// check consumes; the on-chain verifier contract owns the canonical
// encoding, so these are intentionally minimal rather than a full Groth16
// library surface.
type groth16VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine // IC[0] is the constant term, IC[1:] pair with publicInputs
}

type groth16Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// VerifyGroth16Envelope runs the BN254 pairing check of a Groth16 proof
// locally (spec §5: "local pairing verification of Groth16 proofs...
// offloaded onto a blocking thread pool"). The pairing computation is
// CPU-bound and not a suspension point. The relay path does not call it:
// aggregation proofs are submitted on-chain without this local check.
//
// Checks e(A,B) == e(alpha,beta) * e(vkX,gamma) * e(C,delta), the standard
// Groth16 verification equation, via a single multi-pairing-equals-one
// check with only A negated on the G1 side.
func VerifyGroth16Envelope(vk *groth16VerifyingKey, proof *groth16Proof, publicInputs []*big.Int) error {
	if len(publicInputs) != len(vk.IC)-1 {
		return fmt.Errorf("verify groth16 envelope: expected %d public inputs, got %d", len(vk.IC)-1, len(publicInputs))
	}

	vkX := vk.IC[0]
	for i, input := range publicInputs {
		var term bn254.G1Affine
		term.ScalarMultiplication(&vk.IC[i+1], input)
		vkX.Add(&vkX, &term)
	}

	var negA bn254.G1Affine
	negA.Neg(&proof.A)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, vkX, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return fmt.Errorf("verify groth16 envelope: pairing check: %w", err)
	}
	if !ok {
		return fmt.Errorf("verify groth16 envelope: pairing check failed")
	}
	return nil
}
