package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// HSMSigner signs with a Google Cloud KMS asymmetric secp256k1 key,
// mirroring the original's CloudHsmSigner (alloy-signer-gcp/GcpSigner):
// the private key material never leaves the HSM, only digests are sent
// for signing.
type HSMSigner struct {
	client    *kms.KeyManagementClient
	keyName   string
	address   common.Address
	publicKey *ecdsa.PublicKey
}

// NewHSMSigner resolves the public key for keyName (a fully qualified KMS
// CryptoKeyVersion resource name) and derives its Ethereum address, so
// later signing calls only need to send a digest to KMS.
func NewHSMSigner(ctx context.Context, client *kms.KeyManagementClient, keyName string) (*HSMSigner, error) {
	resp, err := client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: keyName})
	if err != nil {
		return nil, fmt.Errorf("fetch KMS public key: %w", err)
	}
	pub, err := parseKMSPublicKeyPEM(resp.Pem)
	if err != nil {
		return nil, err
	}
	return &HSMSigner{
		client:    client,
		keyName:   keyName,
		address:   crypto.PubkeyToAddress(*pub),
		publicKey: pub,
	}, nil
}

func (s *HSMSigner) Address() common.Address { return s.address }

func (s *HSMSigner) SendTransactionRequest(ctx context.Context, client *ethclient.Client, tx *types.DynamicFeeTx) (*types.Receipt, error) {
	if err := fillTransaction(ctx, client, s.address, tx); err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errutil.New(errutil.KindRPCUnavailable, err)
	}
	tx.ChainID = chainID

	unsigned := types.NewTx(tx)
	signer := types.LatestSignerForChainID(chainID)
	sigHash := signer.Hash(unsigned)

	sig, err := s.kmsSign(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	signed, err := unsigned.WithSignature(signer, sig)
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	return sendAndWait(ctx, client, signed)
}

// kmsSign asks KMS to produce an ASN.1 DER ECDSA signature over digest,
// then reshapes it into go-ethereum's 65-byte r||s||v form, trying both
// recovery IDs since KMS signatures carry no v bit.
func (s *HSMSigner) kmsSign(ctx context.Context, digest common.Hash) ([]byte, error) {
	resp, err := s.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name: s.keyName,
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{Sha256: digest[:]},
		},
	})
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, fmt.Errorf("KMS AsymmetricSign: %w", err))
	}

	r, sVal, err := unpackDEREcdsaSignature(resp.Signature)
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	sVal = normalizeS(sVal)

	for recID := byte(0); recID < 2; recID++ {
		sig := make([]byte, 65)
		copy(sig[32-len(r.Bytes()):32], r.Bytes())
		copy(sig[64-len(sVal.Bytes()):64], sVal.Bytes())
		sig[64] = recID
		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == s.address {
			return sig, nil
		}
	}
	return nil, errutil.Newf(errutil.KindSignerFailure, "KMS signature did not recover to %s", s.address)
}

// secp256k1N / secp256k1HalfN bound the low-s normalization go-ethereum
// requires for a canonical signature (KMS does not guarantee low-s).
var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

func normalizeS(s *big.Int) *big.Int {
	if s.Cmp(secp256k1HalfN) > 0 {
		return new(big.Int).Sub(secp256k1N, s)
	}
	return s
}

// unpackDEREcdsaSignature decodes the ASN.1 SEQUENCE{r, s} KMS returns.
func unpackDEREcdsaSignature(der []byte) (r, s *big.Int, err error) {
	var sig struct {
		R, S *big.Int
	}
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, nil, fmt.Errorf("decode KMS DER signature: %w", err)
	}
	return sig.R, sig.S, nil
}

// subjectPublicKeyInfo is the ASN.1 shape of the PEM body KMS returns.
// Go's stdlib x509.ParsePKIXPublicKey rejects secp256k1 (it only knows
// the NIST P-curve OIDs), so the EC point is pulled out by hand and fed
// straight to go-ethereum's own curve unmarshaller.
type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// parseKMSPublicKeyPEM decodes the PEM-encoded SubjectPublicKeyInfo KMS
// returns for a secp256k1 CryptoKeyVersion into a go-ethereum ecdsa key.
func parseKMSPublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("decode KMS public key PEM: no PEM block found")
	}
	var info subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &info); err != nil {
		return nil, fmt.Errorf("parse KMS public key ASN.1: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(info.PublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal KMS public key point: %w", err)
	}
	return pub, nil
}
