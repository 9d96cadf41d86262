// Package host adapts the external witness-generator host program (out
// of scope per spec §1: it consumes L1/L2 RPC and produces proof stdin)
// behind the interfaces the proof requester and mock provider consume.
// The program is an operator-supplied binary driven over subcommands with
// JSON on stdin/stdout.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/op-succinct-go/internal/proofrequester"
	"github.com/tos-network/op-succinct-go/internal/types"
)

// Program shells out to the host binary at Bin. It implements
// proofrequester.HostProgram, proofrequester.AggWitnessBuilder and
// proofprovider.Executor.
type Program struct {
	Bin string
}

func (p *Program) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("host program %s %v: %w: %s", p.Bin, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

type fetchResult struct {
	L1HeadHash        common.Hash `json:"l1_head_hash"`
	L1HeadBlockNumber int64       `json:"l1_head_block_number"`
}

// Fetch runs the host program's RPC-fetching phase; the returned args
// embed the frozen L1 head the range commits to.
func (p *Program) Fetch(ctx context.Context, startBlock, endBlock int64, safeDBFallback bool) (proofrequester.HostArgs, error) {
	out, err := p.run(ctx, nil, "fetch",
		"--start", strconv.FormatInt(startBlock, 10),
		"--end", strconv.FormatInt(endBlock, 10),
		"--safe-db-fallback="+strconv.FormatBool(safeDBFallback))
	if err != nil {
		return proofrequester.HostArgs{}, err
	}
	var res fetchResult
	if err := json.Unmarshal(out, &res); err != nil {
		return proofrequester.HostArgs{}, fmt.Errorf("decode host fetch result: %w", err)
	}
	return proofrequester.HostArgs{L1HeadHash: res.L1HeadHash, L1HeadBlockNumber: res.L1HeadBlockNumber}, nil
}

// Run executes the witness-generation phase against the fetched args and
// returns the raw proof stdin.
func (p *Program) Run(ctx context.Context, hostArgs proofrequester.HostArgs) ([]byte, error) {
	return p.run(ctx, nil, "run", "--l1-head", hostArgs.L1HeadHash.Hex())
}

type executeResult struct {
	PublicValues []byte `json:"public_values"`
	Cycles       uint64 `json:"cycles"`
	Gas          uint64 `json:"gas"`
}

// Execute locally executes a program against stdin without proving,
// reporting the real public values plus cycle statistics (mock mode).
// programID is the program's path for this exec-based adapter.
func (p *Program) Execute(ctx context.Context, programID, stdin []byte) ([]byte, types.ExecutionStatistics, error) {
	out, err := p.run(ctx, stdin, "execute", "--program", string(programID))
	if err != nil {
		return nil, types.ExecutionStatistics{}, err
	}
	var res executeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, types.ExecutionStatistics{}, fmt.Errorf("decode host execute result: %w", err)
	}
	return res.PublicValues, types.ExecutionStatistics{Cycles: res.Cycles, Gas: res.Gas}, nil
}

type bootInfoResult struct {
	L1Head common.Hash `json:"l1_head"`
}

// DecodeBootInfo extracts a completed range proof's public-values struct,
// in particular the L1 head it consumed.
func (p *Program) DecodeBootInfo(proof []byte) (proofrequester.BootInfo, error) {
	out, err := p.run(context.Background(), proof, "boot-info")
	if err != nil {
		return proofrequester.BootInfo{}, err
	}
	var res bootInfoResult
	if err := json.Unmarshal(out, &res); err != nil {
		return proofrequester.BootInfo{}, fmt.Errorf("decode boot info: %w", err)
	}
	return proofrequester.BootInfo{L1Head: res.L1Head}, nil
}

type aggStdinInput struct {
	RangeProofs     [][]byte       `json:"range_proofs"`
	HeaderPreimages [][]byte       `json:"header_preimages"`
	L1ChainID       int64          `json:"l1_chain_id"`
	L2ChainID       int64          `json:"l2_chain_id"`
	ProverAddress   common.Address `json:"prover_address"`
}

// BuildAggStdin assembles aggregation proof stdin from the constituent
// range proofs and the checkpointed L1 header chain.
func (p *Program) BuildAggStdin(ctx context.Context, rangeProofs []*types.Request, headerPreimages [][]byte, l1ChainID, l2ChainID int64, proverAddress common.Address) ([]byte, error) {
	input := aggStdinInput{
		HeaderPreimages: headerPreimages,
		L1ChainID:       l1ChainID,
		L2ChainID:       l2ChainID,
		ProverAddress:   proverAddress,
	}
	for _, rp := range rangeProofs {
		input.RangeProofs = append(input.RangeProofs, rp.Proof)
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, encoded, "agg-stdin")
}
