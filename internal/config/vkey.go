package config

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedisct1/go-minisign"
)

// VerifyAndHashProgram checks elfPath against a detached minisign signature
// (sigPath) under the trusted public key before hashing it into a
// commitment fingerprint component. An unsigned or mis-signed binary must
// never contribute to a fingerprint the contract would accept.
func VerifyAndHashProgram(elfPath, sigPath, trustedPubKey string) (common.Hash, error) {
	data, err := os.ReadFile(elfPath)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read program binary %s: %w", elfPath, err)
	}
	sigBytes, err := os.ReadFile(sigPath)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read signature %s: %w", sigPath, err)
	}
	sig, err := minisign.DecodeSignature(string(sigBytes))
	if err != nil {
		return common.Hash{}, fmt.Errorf("decode signature %s: %w", sigPath, err)
	}
	pub, err := minisign.NewPublicKey(trustedPubKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse trusted public key: %w", err)
	}
	ok, err := pub.Verify(data, sig)
	if err != nil {
		return common.Hash{}, fmt.Errorf("verify signature %s: %w", sigPath, err)
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("program binary %s failed signature verification", elfPath)
	}
	return common.Hash(sha256.Sum256(data)), nil
}
