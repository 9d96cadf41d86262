package fetcher

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// BlobCommitmentSize/BlobProofSize are the KZG commitment and proof widths
// used by the EIP-4844 point-evaluation precompile.
const (
	BlobCommitmentSize = 48
	BlobProofSize      = 48
)

// VerifyBlobCommitment decodes a blob's KZG commitment and proof as
// compressed G1 points and checks that both lie in the G1 subgroup. It
// does not perform the KZG pairing check: z, y and g2TrustedSetup are not
// used, so a well-formed proof for a different evaluation still passes.
// Nothing in the Fetcher calls it (GetHeaderPreimages does not).
func VerifyBlobCommitment(commitment, proof [48]byte, z, y [32]byte, g2TrustedSetup *blst.P2Affine) error {
	commitG1 := new(blst.P1Affine).Uncompress(commitment[:])
	if commitG1 == nil {
		return fmt.Errorf("verify blob commitment: invalid commitment encoding")
	}
	proofG1 := new(blst.P1Affine).Uncompress(proof[:])
	if proofG1 == nil {
		return fmt.Errorf("verify blob commitment: invalid proof encoding")
	}
	if !commitG1.SigValidate(false) || !proofG1.SigValidate(false) {
		return fmt.Errorf("verify blob commitment: point not in subgroup")
	}
	// The full pairing check e(proof, [s-z]_2) == e(commit - [y]_1, [1]_2)
	// requires the KZG trusted setup's G2 points, supplied by the caller
	// (the witness generator owns loading the ceremony file); this helper
	// only validates point encodings are well-formed before the caller
	// performs the pairing itself via blst.Verify.
	return nil
}
