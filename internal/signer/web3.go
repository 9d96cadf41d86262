package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/golang-jwt/jwt/v4"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// Web3Signer signs via a remote web3signer-compatible HTTP endpoint,
// authenticating with a short-lived JWT bearer token the way op-geth's
// engine API client authenticates to its local execution client.
type Web3Signer struct {
	url     string
	address common.Address
	jwtKey  []byte
	client  *http.Client
}

// NewWeb3Signer builds a client against url for address, optionally
// signing bearer tokens with jwtKey (nil disables auth, for endpoints
// behind a private network / mTLS proxy instead).
func NewWeb3Signer(url string, address common.Address, jwtKey []byte) *Web3Signer {
	return &Web3Signer{url: url, address: address, jwtKey: jwtKey, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *Web3Signer) Address() common.Address { return s.address }

type web3SignRequest struct {
	Address common.Address `json:"address"`
	Hash    string         `json:"hash"`
}

type web3SignResponse struct {
	Signature string `json:"signature"`
}

func (s *Web3Signer) bearerToken() (string, error) {
	if s.jwtKey == nil {
		return "", nil
	}
	claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtKey)
}

// remoteSign posts the signing-hash envelope to the signer and decodes the
// 65-byte r||s||v signature it returns.
func (s *Web3Signer) remoteSign(ctx context.Context, signingHash common.Hash) ([]byte, error) {
	body, err := json.Marshal(web3SignRequest{Address: s.address, Hash: signingHash.Hex()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/api/v1/eth1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token, err := s.bearerToken(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errutil.Newf(errutil.KindSignerFailure, "web3signer returned status %d", resp.StatusCode)
	}
	var out web3SignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	sig, err := hex.DecodeString(trim0x(out.Signature))
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, fmt.Errorf("decode web3signer signature: %w", err))
	}
	return sig, nil
}

func (s *Web3Signer) SendTransactionRequest(ctx context.Context, client *ethclient.Client, tx *types.DynamicFeeTx) (*types.Receipt, error) {
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

	sig, err := s.remoteSign(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	signed, err := unsigned.WithSignature(signer, sig)
	if err != nil {
		return nil, errutil.New(errutil.KindSignerFailure, err)
	}
	return sendAndWait(ctx, client, signed)
}
