package store

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/types"
)

const postgresImage = "docker.io/library/postgres:15-alpine"

// startPostgres launches a throwaway Postgres container and returns a DSN
// pointing at it. Skipped when no Docker daemon is reachable, so the
// suite stays runnable on machines without one.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		t.Skipf("docker daemon unreachable: %v", err)
	}

	reader, err := cli.ImagePull(ctx, postgresImage, dockertypes.ImagePullOptions{})
	if err != nil {
		t.Skipf("pull %s: %v", postgresImage, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: postgresImage,
		Env:   []string{"POSTGRES_PASSWORD=op", "POSTGRES_DB=op"},
	}, &container.HostConfig{PublishAllPorts: true}, nil, nil, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		cli.ContainerRemove(ctx, resp.ID, dockertypes.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	})
	require.NoError(t, cli.ContainerStart(ctx, resp.ID, dockertypes.ContainerStartOptions{}))

	inspect, err := cli.ContainerInspect(ctx, resp.ID)
	require.NoError(t, err)
	var hostPort string
	for port, bindings := range inspect.NetworkSettings.Ports {
		if string(port) == "5432/tcp" && len(bindings) > 0 {
			hostPort = bindings[0].HostPort
		}
	}
	require.NotEmpty(t, hostPort, "postgres port not published")

	return fmt.Sprintf("postgres://postgres:op@127.0.0.1:%s/op?sslmode=disable", hostPort)
}

func openPG(t *testing.T) *PGStore {
	t.Helper()
	dsn := startPostgres(t)

	var (
		s   *PGStore
		err error
	)
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		s, err = OpenPGStore(context.Background(), dsn, nil)
		if err == nil {
			t.Cleanup(func() { s.Close() })
			return s
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("postgres not ready after 30s: %v", err)
	return nil
}

func TestPGStoreRoundTrip(t *testing.T) {
	s := openPG(t)
	ctx := context.Background()

	cpHash := common.HexToHash("0xc1")
	cpNumber := int64(777)
	prover := common.HexToAddress("0xaa")
	req := &types.Request{
		Type:                      types.RequestTypeAggregation,
		Mode:                      types.RequestModeReal,
		Status:                    types.StatusUnrequested,
		StartBlock:                100,
		EndBlock:                  200,
		ChainPair:                 testChain,
		Commitment:                testCommitment,
		CheckpointedL1BlockHash:   &cpHash,
		CheckpointedL1BlockNumber: &cpNumber,
		ProverAddress:             &prover,
		TotalNbTransactions:       12,
		TotalEthGasUsed:           34,
		TotalL1Fees:               uint256.NewInt(56),
		TotalTxFees:               uint256.NewInt(78),
	}
	require.NoError(t, s.InsertRequest(ctx, req))
	require.NotZero(t, req.ID)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.RequestTypeAggregation, got.Type)
	require.Equal(t, cpHash, *got.CheckpointedL1BlockHash)
	require.Equal(t, prover, *got.ProverAddress)
	require.Equal(t, uint64(12), got.TotalNbTransactions)
	require.Equal(t, uint256.NewInt(56), got.TotalL1Fees)
	require.Equal(t, uint256.NewInt(78), got.TotalTxFees)
}

func TestPGStoreLifecycleTransitions(t *testing.T) {
	s := openPG(t)
	ctx := context.Background()

	req := rangeReq(0, 10, types.StatusUnrequested)
	require.NoError(t, s.InsertRequest(ctx, req))

	id := [32]byte{0xab}
	require.NoError(t, s.UpdateToProve(ctx, req.ID, id))
	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusProve, got.Status)
	require.Equal(t, id, *got.ProofRequestID)
	require.NotNil(t, got.ProofRequestTime)

	require.NoError(t, s.UpdateProveDuration(ctx, req.ID))
	require.NoError(t, s.UpdateToComplete(ctx, req.ID, []byte("proof")))
	require.NoError(t, s.UpdateExecutionStats(ctx, req.ID, types.ExecutionStatistics{Cycles: 9, Gas: 3}, 2*time.Second))

	got, err = s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusComplete, got.Status)
	require.Equal(t, []byte("proof"), got.Proof)
	require.NotNil(t, got.ExecutionStatistics)
	require.Equal(t, uint64(9), got.ExecutionStatistics.Cycles)
	require.Equal(t, 2*time.Second, got.ExecutionDuration)

	require.NoError(t, s.UpdateToRelayed(ctx, req.ID, [32]byte{0xcd}, [20]byte{0xef}))
	got, err = s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusRelayed, got.Status)
	require.NotNil(t, got.RelayTxHash)
	require.NotNil(t, got.ContractAddress)
}

func TestPGStoreQueriesAndChainLock(t *testing.T) {
	s := openPG(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRequests(ctx, []*types.Request{
		rangeReq(0, 10, types.StatusComplete),
		rangeReq(10, 20, types.StatusComplete),
		rangeReq(20, 30, types.StatusUnrequested),
	}))

	ranges, err := s.CompletedRangesAfterBlock(ctx, 0, testCommitment, testChain)
	require.NoError(t, err)
	require.Equal(t, [][2]int64{{0, 10}, {10, 20}}, ranges)

	first, err := s.FirstUnrequestedRangeProofAfter(ctx, 0, testCommitment, testChain)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, int64(20), first.StartBlock)

	locked, err := s.IsChainLocked(ctx, testChain, time.Minute)
	require.NoError(t, err)
	require.False(t, locked)
	require.NoError(t, s.AddChainLock(ctx, testChain))
	locked, err = s.IsChainLocked(ctx, testChain, time.Minute)
	require.NoError(t, err)
	require.True(t, locked)
}
