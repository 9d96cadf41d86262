package config

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChallengerOptions tunes the dispute coordinator (spec §4.8). The two
// roles share the same option surface; a proposer simply reads the
// defense/proposal knobs a challenger ignores.
type ChallengerOptions struct {
	GameType                     uint32
	FetchInterval                time.Duration
	ProposalIntervalInBlocks     int64
	MaxGamesToCheckForChallenge  int64
	MaxGamesToCheckForDefense    int64
	MaxGamesToCheckForResolution int64
	MaxGamesToCheckForBondClaim  int64

	// ChaosRate is the probability of challenging a game known to be
	// valid, the chaos-test mode of spec §4.8. Zero in honest mode.
	ChaosRate float64
}

// ChallengerFromEnv parses the dispute coordinator's environment: the
// shared RPC and signer selection from the main Config, plus the
// coordinator knobs. The proof scheduler's store/contract settings are
// not required here.
func ChallengerFromEnv() (*Config, *ChallengerOptions, error) {
	c := &Config{}
	var err error
	if c.L1RPC, err = requireEnv("L1_RPC"); err != nil {
		return nil, nil, err
	}
	if c.L2RPC, err = requireEnv("L2_RPC"); err != nil {
		return nil, nil, err
	}
	if c.L2NodeRPC, err = requireEnv("L2_NODE_RPC"); err != nil {
		return nil, nil, err
	}
	factoryAddr, err := requireEnv("FACTORY_ADDRESS")
	if err != nil {
		return nil, nil, err
	}
	c.FactoryAddress = common.HexToAddress(factoryAddr)
	if err := c.parseSigner(); err != nil {
		return nil, nil, err
	}

	opts := &ChallengerOptions{
		GameType:                     uint32(getEnvInt64("GAME_TYPE", 6)),
		FetchInterval:                time.Duration(getEnvInt64("FETCH_INTERVAL_SECONDS", 30)) * time.Second,
		ProposalIntervalInBlocks:     getEnvInt64("PROPOSAL_INTERVAL_IN_BLOCKS", 1800),
		MaxGamesToCheckForChallenge:  getEnvInt64("MAX_GAMES_TO_CHECK_FOR_CHALLENGE", 100),
		MaxGamesToCheckForDefense:    getEnvInt64("MAX_GAMES_TO_CHECK_FOR_DEFENSE", 100),
		MaxGamesToCheckForResolution: getEnvInt64("MAX_GAMES_TO_CHECK_FOR_RESOLUTION", 100),
		MaxGamesToCheckForBondClaim:  getEnvInt64("MAX_GAMES_TO_CHECK_FOR_BOND_CLAIM", 100),
	}
	if raw := getEnvDefault("MALICIOUS_CHALLENGE_PERCENTAGE", ""); raw != "" {
		pct, err := strconv.ParseFloat(raw, 64)
		if err == nil && pct > 0 {
			opts.ChaosRate = pct / 100
		}
	}
	return c, opts, nil
}
