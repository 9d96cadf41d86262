package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha512"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// LocalSigner signs with an in-process ecdsa private key, the simplest of
// the three variants — no network round-trip for the signature itself.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner parses a hex-encoded secp256k1 private key (with or
// without a leading "0x").
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parse local private key: %w", err)
	}
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func trim0x(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// seedIterations/seedLength are the BIP-39 seed-stretch parameters.
const (
	seedIterations = 2048
	seedLength     = 64
)

// NewMnemonicSigner derives the signing key from a BIP-39 mnemonic
// phrase: the phrase is stretched into a 64-byte seed with PBKDF2-SHA512
// and the first 32 bytes become the secp256k1 scalar. Intended for
// testnets and CI; production deployments use a raw key or the HSM.
func NewMnemonicSigner(mnemonic, passphrase string) (*LocalSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid BIP-39 mnemonic")
	}
	seed := pbkdf2.Key([]byte(mnemonic), []byte("mnemonic"+passphrase), seedIterations, seedLength, sha512.New)

	priv, _ := btcec.PrivKeyFromBytes(seed[:32])
	key := priv.ToECDSA()
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SendTransactionRequest(ctx context.Context, client *ethclient.Client, tx *types.DynamicFeeTx) (*types.Receipt, error) {
	if err := fillTransaction(ctx, client, s.address, tx); err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, err)
	}
	tx.ChainID = chainID
	signed, err := types.SignNewTx(s.key, types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	return sendAndWait(ctx, client, signed)
}
