package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("L1_RPC", "http://l1:8545")
	t.Setenv("L1_BEACON_RPC", "http://beacon:5052")
	t.Setenv("L2_RPC", "http://l2:8545")
	t.Setenv("L2_NODE_RPC", "http://l2node:8547")
	t.Setenv("DATABASE_URL", "postgres://localhost/op")
	t.Setenv("L2OO_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("FACTORY_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("PRIVATE_KEY", "a0b1")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, int64(10), cfg.RangeProofInterval)
	require.Equal(t, int64(50), cfg.SubmissionInterval)
	require.Equal(t, 5, cfg.MaxConcurrentWitnessGen)
	require.Equal(t, 10, cfg.MaxConcurrentProofRequests)
	require.Equal(t, time.Minute, cfg.LoopInterval)
	require.Equal(t, StrategyHosted, cfg.RangeProofStrategy)
	require.Equal(t, AggProofGroth16, cfg.AggProofMode)
	require.False(t, cfg.Mock)
	require.Nil(t, cfg.DGFAddress)
	require.Equal(t, crypto.Keccak256Hash([]byte("op-succinct")), cfg.ConfigNameHash)
}

func TestFromEnvMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := FromEnv()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestSignerSelectionLocal(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, SignerLocal, cfg.SignerKind)
	require.Equal(t, "a0b1", cfg.PrivateKeyHex)
}

func TestSignerSelectionWeb3(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("SIGNER_URL", "http://signer:9000")
	t.Setenv("SIGNER_ADDRESS", "0x3333333333333333333333333333333333333333")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, SignerWeb3, cfg.SignerKind)
	require.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), cfg.SignerAddress)
}

func TestSignerSelectionHSMRequiresKeyDetails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("GOOGLE_PROJECT_ID", "proj")

	_, err := FromEnv()
	require.ErrorContains(t, err, "GOOGLE_LOCATION")

	t.Setenv("GOOGLE_LOCATION", "us")
	t.Setenv("GOOGLE_KEYRING", "ring")
	t.Setenv("HSM_KEY_NAME", "key")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, SignerCloudHSM, cfg.SignerKind)
}

func TestSignerSelectionNoneConfigured(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRIVATE_KEY", "")

	_, err := FromEnv()
	require.ErrorContains(t, err, "no signer configured")
}

func TestDGFAddressOptional(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DGF_ADDRESS", "0x4444444444444444444444444444444444444444")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.DGFAddress)
	require.Equal(t, common.HexToAddress("0x4444444444444444444444444444444444444444"), *cfg.DGFAddress)
}

func TestChallengerFromEnv(t *testing.T) {
	t.Setenv("L1_RPC", "http://l1:8545")
	t.Setenv("L2_RPC", "http://l2:8545")
	t.Setenv("L2_NODE_RPC", "http://l2node:8547")
	t.Setenv("FACTORY_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("PRIVATE_KEY", "a0b1")
	t.Setenv("MALICIOUS_CHALLENGE_PERCENTAGE", "10")

	cfg, opts, err := ChallengerFromEnv()
	require.NoError(t, err)
	require.Equal(t, SignerLocal, cfg.SignerKind)
	require.Equal(t, uint32(6), opts.GameType)
	require.Equal(t, 30*time.Second, opts.FetchInterval)
	require.Equal(t, int64(1800), opts.ProposalIntervalInBlocks)
	require.InDelta(t, 0.1, opts.ChaosRate, 1e-9)
}
