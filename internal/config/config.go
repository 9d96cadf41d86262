// Package config loads the environment-driven Config (spec §6) and derives
// the commitment fingerprint that binds every proof request to a program
// binary and chain genesis (spec §4.5 step 1).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tos-network/op-succinct-go/internal/types"
)

// ProofStrategy selects whether the proving provider reserves dedicated
// prover capacity or uses the spot/hosted auction.
type ProofStrategy string

const (
	StrategyReserved ProofStrategy = "reserved"
	StrategyHosted   ProofStrategy = "hosted"
)

// AggProofMode selects the on-chain-verifiable proof system the aggregation
// program targets.
type AggProofMode string

const (
	AggProofGroth16 AggProofMode = "groth16"
	AggProofPlonk   AggProofMode = "plonk"
)

// SignerKind tags which of the three Signer variants (local / web3 / HSM)
// the environment selects.
type SignerKind int

const (
	SignerLocal SignerKind = iota
	SignerWeb3
	SignerCloudHSM
)

// Config is the fully-parsed environment configuration for one scheduler
// instance (one chain pair, one operator).
type Config struct {
	L1RPC       string
	L1BeaconRPC string
	L2RPC       string
	L2NodeRPC   string

	SignerKind    SignerKind
	PrivateKeyHex string
	Mnemonic      string
	SignerURL     string
	SignerAddress common.Address

	GoogleProjectID  string
	GoogleLocation   string
	GoogleKeyring    string
	HSMKeyName       string
	HSMKeyVersion    string

	DatabaseURL string

	L2OOAddress      common.Address
	DGFAddress       *common.Address
	FactoryAddress   common.Address

	RangeProofInterval         int64
	SubmissionInterval         int64
	MaxConcurrentWitnessGen    int
	MaxConcurrentProofRequests int
	EVMGasLimit                uint64

	RangeProofStrategy ProofStrategy
	AggProofStrategy   ProofStrategy
	AggProofMode       AggProofMode

	Mock           bool
	SafeDBFallback bool

	ConfigName     string
	ConfigNameHash common.Hash

	LoopInterval time.Duration
}

// FromEnv parses the process environment into a Config, applying the
// defaults named in spec §6 and rejecting missing required values.
func FromEnv() (*Config, error) {
	c := &Config{
		RangeProofInterval:         getEnvInt64("RANGE_PROOF_INTERVAL", 10),
		SubmissionInterval:         getEnvInt64("SUBMISSION_INTERVAL", 50),
		MaxConcurrentWitnessGen:    int(getEnvInt64("MAX_CONCURRENT_WITNESS_GEN", 5)),
		MaxConcurrentProofRequests: int(getEnvInt64("MAX_CONCURRENT_PROOF_REQUESTS", 10)),
		EVMGasLimit:                uint64(getEnvInt64("EVM_GAS_LIMIT", 100_000_000)),
		RangeProofStrategy:         ProofStrategy(getEnvDefault("RANGE_PROOF_STRATEGY", string(StrategyHosted))),
		AggProofStrategy:           ProofStrategy(getEnvDefault("AGG_PROOF_STRATEGY", string(StrategyHosted))),
		AggProofMode:               AggProofMode(getEnvDefault("AGG_PROOF_MODE", string(AggProofGroth16))),
		Mock:                       getEnvBool("MOCK", false),
		SafeDBFallback:             getEnvBool("SAFE_DB_FALLBACK", false),
		ConfigName:                 getEnvDefault("OP_SUCCINCT_CONFIG_NAME", "op-succinct"),
		LoopInterval:               time.Duration(getEnvInt64("LOOP_INTERVAL_SECONDS", 60)) * time.Second,
	}

	var err error
	if c.L1RPC, err = requireEnv("L1_RPC"); err != nil {
		return nil, err
	}
	if c.L1BeaconRPC, err = requireEnv("L1_BEACON_RPC"); err != nil {
		return nil, err
	}
	if c.L2RPC, err = requireEnv("L2_RPC"); err != nil {
		return nil, err
	}
	if c.L2NodeRPC, err = requireEnv("L2_NODE_RPC"); err != nil {
		return nil, err
	}
	if c.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return nil, err
	}

	l2ooAddr, err := requireEnv("L2OO_ADDRESS")
	if err != nil {
		return nil, err
	}
	c.L2OOAddress = common.HexToAddress(l2ooAddr)

	factoryAddr, err := requireEnv("FACTORY_ADDRESS")
	if err != nil {
		return nil, err
	}
	c.FactoryAddress = common.HexToAddress(factoryAddr)

	if dgf := os.Getenv("DGF_ADDRESS"); dgf != "" {
		addr := common.HexToAddress(dgf)
		c.DGFAddress = &addr
	}

	if err := c.parseSigner(); err != nil {
		return nil, err
	}

	c.ConfigNameHash = crypto.Keccak256Hash([]byte(c.ConfigName))
	return c, nil
}

// parseSigner implements the three-way selection of spec §6: a local key
// (PRIVATE_KEY or MNEMONIC), a remote signer endpoint, or a cloud HSM key
// reference. The first variant that is set wins, checked in the order
// PRIVATE_KEY, MNEMONIC, SIGNER_URL+SIGNER_ADDRESS, GOOGLE_PROJECT_ID;
// setting more than one is not rejected.
func (c *Config) parseSigner() error {
	pk := os.Getenv("PRIVATE_KEY")
	mnemonic := os.Getenv("MNEMONIC")
	signerURL := os.Getenv("SIGNER_URL")
	signerAddr := os.Getenv("SIGNER_ADDRESS")
	projectID := os.Getenv("GOOGLE_PROJECT_ID")

	switch {
	case pk != "":
		c.SignerKind = SignerLocal
		c.PrivateKeyHex = pk
	case mnemonic != "":
		c.SignerKind = SignerLocal
		c.Mnemonic = mnemonic
	case signerURL != "" && signerAddr != "":
		c.SignerKind = SignerWeb3
		c.SignerURL = signerURL
		c.SignerAddress = common.HexToAddress(signerAddr)
	case projectID != "":
		c.SignerKind = SignerCloudHSM
		c.GoogleProjectID = projectID
		c.GoogleLocation = os.Getenv("GOOGLE_LOCATION")
		c.GoogleKeyring = os.Getenv("GOOGLE_KEYRING")
		c.HSMKeyName = os.Getenv("HSM_KEY_NAME")
		c.HSMKeyVersion = os.Getenv("HSM_KEY_VERSION")
		if c.GoogleLocation == "" || c.GoogleKeyring == "" || c.HSMKeyName == "" {
			return fmt.Errorf("GOOGLE_PROJECT_ID set but GOOGLE_LOCATION/GOOGLE_KEYRING/HSM_KEY_NAME missing")
		}
	default:
		return fmt.Errorf("no signer configured: set PRIVATE_KEY or MNEMONIC, or SIGNER_URL+SIGNER_ADDRESS, or GOOGLE_PROJECT_ID+...")
	}
	return nil
}

// Fingerprint derives the commitment fingerprint this instance expects the
// contract to be configured with. rangeVkeyCommitment and aggVkeyHash come
// from the verified program binaries (see vkey.go); rollupConfigHash from
// the Fetcher's hashed rollup config.
func (c *Config) Fingerprint(rangeVkeyCommitment, aggVkeyHash, rollupConfigHash common.Hash) types.CommitmentConfig {
	return types.CommitmentConfig{
		RangeVkeyCommitment: rangeVkeyCommitment,
		AggVkeyHash:         aggVkeyHash,
		RollupConfigHash:    rollupConfigHash,
	}
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("missing required environment variable %s", key)
	}
	return v, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
