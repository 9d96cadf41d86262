// Package contracts provides thin accounts/abi/bind wrappers for the L1
// contract ABI surface named in spec §6. No contract logic lives here;
// this package only encodes/decodes calls and transactions.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const l2ooABIJSON = `[
	{"type":"function","name":"proposeL2Output","stateMutability":"payable","inputs":[
		{"name":"configName","type":"bytes32"},
		{"name":"outputRoot","type":"bytes32"},
		{"name":"l2Block","type":"uint256"},
		{"name":"l1CheckpointBlock","type":"uint256"},
		{"name":"proof","type":"bytes"},
		{"name":"prover","type":"address"},
		{"name":"beneficiary","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"checkpointBlockHash","stateMutability":"nonpayable","inputs":[
		{"name":"l1Block","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"opSuccinctConfigs","stateMutability":"view","inputs":[
		{"name":"configName","type":"bytes32"}
	],"outputs":[
		{"name":"aggregationVkey","type":"bytes32"},
		{"name":"rangeVkeyCommitment","type":"bytes32"},
		{"name":"rollupConfigHash","type":"bytes32"}
	]},
	{"type":"function","name":"submissionInterval","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	]},
	{"type":"function","name":"latestBlockNumber","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	]}
]`

const dgfABIJSON = `[
	{"type":"function","name":"create","stateMutability":"payable","inputs":[
		{"name":"gameType","type":"uint32"},
		{"name":"rootClaim","type":"bytes32"},
		{"name":"extraData","type":"bytes"}
	],"outputs":[{"name":"proxy","type":"address"}]},
	{"type":"function","name":"gameCount","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	]},
	{"type":"function","name":"gameAtIndex","stateMutability":"view","inputs":[
		{"name":"index","type":"uint256"}
	],"outputs":[
		{"name":"gameType","type":"uint32"},
		{"name":"timestamp","type":"uint64"},
		{"name":"proxy","type":"address"}
	]},
	{"type":"function","name":"initBonds","stateMutability":"view","inputs":[
		{"name":"gameType","type":"uint32"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"gameImpls","stateMutability":"view","inputs":[
		{"name":"gameType","type":"uint32"}
	],"outputs":[{"name":"","type":"address"}]}
]`

const faultDisputeGameABIJSON = `[
	{"type":"function","name":"challenge","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"prove","stateMutability":"nonpayable","inputs":[
		{"name":"proof","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"resolve","stateMutability":"nonpayable","inputs":[],"outputs":[
		{"name":"status","type":"uint8"}
	]},
	{"type":"function","name":"claimCredit","stateMutability":"nonpayable","inputs":[
		{"name":"recipient","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"l2BlockNumber","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	]},
	{"type":"function","name":"rootClaim","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"bytes32"}
	]},
	{"type":"function","name":"l1Head","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"bytes32"}
	]},
	{"type":"function","name":"claimData","stateMutability":"view","inputs":[],"outputs":[
		{"name":"parentIndex","type":"uint32"},
		{"name":"status","type":"uint8"},
		{"name":"deadline","type":"uint64"},
		{"name":"rootClaim","type":"bytes32"}
	]},
	{"type":"function","name":"status","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint8"}
	]},
	{"type":"function","name":"credit","stateMutability":"view","inputs":[
		{"name":"recipient","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"gameOver","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"bool"}
	]}
]`

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	l2ooABI              = mustParseABI(l2ooABIJSON)
	dgfABI                = mustParseABI(dgfABIJSON)
	faultDisputeGameABI   = mustParseABI(faultDisputeGameABIJSON)
)
