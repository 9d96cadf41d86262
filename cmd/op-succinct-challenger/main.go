// op-succinct-challenger runs the fault-dispute coordinator: it indexes
// dispute games created by the factory contract, challenges invalid
// claims (or defends valid ones when run as the proposer role), resolves
// expired games and claims bonds.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"github.com/tos-network/op-succinct-go/internal/config"
	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/dispute"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/flags"
	"github.com/tos-network/op-succinct-go/internal/health"
	"github.com/tos-network/op-succinct-go/internal/host"
	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/signer"
)

var gitCommit = ""
var gitDate = ""

var (
	roleFlag = &cli.StringFlag{
		Name:     "role",
		Usage:    `Coordinator role: "challenger" or "proposer"`,
		Value:    "challenger",
		Category: flags.DisputeCategory,
	}
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	healthAddrFlag = &cli.StringFlag{
		Name:     "health.addr",
		Usage:    "Listen address for the /healthz and /readyz probes",
		Value:    "127.0.0.1:7301",
		Category: flags.MiscCategory,
	}
)

var app *cli.App

func init() {
	app = flags.NewApp(gitCommit, gitDate, "the op-succinct fault-dispute coordinator")
	app.Flags = []cli.Flag{roleFlag, verbosityFlag, healthAddrFlag}
	app.Action = runCoordinator
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	useColor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	var handler slog.Handler
	if useColor {
		output = colorable.NewColorableStderr()
		handler = log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(verbosity), true)
	} else {
		handler = log.JSONHandler(output)
	}
	log.SetDefault(log.NewLogger(handler))
}

func runCoordinator(cliCtx *cli.Context) error {
	setupLogging(cliCtx.Int(verbosityFlag.Name))

	var role dispute.Role
	switch cliCtx.String(roleFlag.Name) {
	case "challenger":
		role = dispute.RoleChallenger
	case "proposer":
		role = dispute.RoleProposer
	default:
		return fmt.Errorf("unknown role %q", cliCtx.String(roleFlag.Name))
	}

	cfg, opts, err := config.ChallengerFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l1Client, err := ethclient.DialContext(ctx, cfg.L1RPC)
	if err != nil {
		return fmt.Errorf("dial L1 RPC: %w", err)
	}
	l1ID, err := l1Client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read L1 chain id: %w", err)
	}
	l2Client, err := ethclient.DialContext(ctx, cfg.L2RPC)
	if err != nil {
		return fmt.Errorf("dial L2 RPC: %w", err)
	}
	l2ID, err := l2Client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read L2 chain id: %w", err)
	}
	l2Client.Close()

	f, err := fetcher.Dial(ctx, fetcher.Config{
		L1RPC:     cfg.L1RPC,
		L2RPC:     cfg.L2RPC,
		L2NodeRPC: cfg.L2NodeRPC,
		L1ChainID: l1ID.Int64(),
		L2ChainID: l2ID.Int64(),
	})
	if err != nil {
		return err
	}
	defer f.Close()

	sgn, err := signer.Build(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("signer ready", "address", sgn.Address(), "role", cliCtx.String(roleFlag.Name))

	factory := contracts.NewDisputeGameFactory(cfg.FactoryAddress, l1Client)
	registry := dispute.NewGameRegistry()
	indexer := dispute.NewGameIndexer(factory, l1Client, f, registry, opts.GameType, opts.FetchInterval)
	indexer.Start()
	defer indexer.Stop()

	coordinator := &dispute.Coordinator{
		Role:                         role,
		L1Client:                     l1Client,
		Backend:                      l1Client,
		Signer:                       sgn,
		Factory:                      factory,
		Fetcher:                      f,
		Registry:                     registry,
		GameType:                     opts.GameType,
		ProposalIntervalInBlocks:     opts.ProposalIntervalInBlocks,
		MaxGamesToCheckForChallenge:  opts.MaxGamesToCheckForChallenge,
		MaxGamesToCheckForDefense:    opts.MaxGamesToCheckForDefense,
		MaxGamesToCheckForResolution: opts.MaxGamesToCheckForResolution,
		MaxGamesToCheckForBondClaim:  opts.MaxGamesToCheckForBondClaim,
		Chaos:                        dispute.ChaosConfig{Enabled: opts.ChaosRate > 0, Rate: opts.ChaosRate},
	}
	if role == dispute.RoleProposer {
		coordinator.Proofs, err = buildGameProver(ctx)
		if err != nil {
			return err
		}
	}

	probes := health.NewServer()
	go probes.Serve(cliCtx.String(healthAddrFlag.Name))
	probes.SetReady(true)

	ticker := time.NewTicker(opts.FetchInterval)
	defer ticker.Stop()
	for {
		if err := coordinator.Tick(ctx); err != nil {
			log.Error("coordinator tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// gameProver fulfills a defense proof synchronously: witness generation
// through the host program, submission to the proving provider, then a
// 2-second status poll until the proof is ready.
type gameProver struct {
	host     *host.Program
	provider proofprovider.Provider
}

func buildGameProver(ctx context.Context) (*gameProver, error) {
	hostProg := &host.Program{Bin: os.Getenv("WITNESS_GEN_BIN")}
	provider, err := proofprovider.DialNetwork(ctx, proofprovider.NetworkParams{
		Endpoint:       os.Getenv("NETWORK_RPC"),
		APIKey:         os.Getenv("NETWORK_API_KEY"),
		RangeProgramID: []byte(os.Getenv("RANGE_ELF_PATH")),
		AggProgramID:   []byte(os.Getenv("AGG_ELF_PATH")),
		RangeStrategy:  proofprovider.StrategyHosted,
		AggStrategy:    proofprovider.StrategyHosted,
		ProvingTimeout: 4 * time.Hour,
		AuctionTimeout: time.Hour,
		IsMainnet:      os.Getenv("NETWORK_MAINNET") == "true",
	})
	if err != nil {
		return nil, err
	}
	return &gameProver{host: hostProg, provider: provider}, nil
}

const proofPollInterval = 2 * time.Second

func (g *gameProver) ProveGame(ctx context.Context, l1Head common.Hash, startBlock, endBlock int64) ([]byte, error) {
	args, err := g.host.Fetch(ctx, startBlock, endBlock, false)
	if err != nil {
		return nil, err
	}
	stdin, err := g.host.Run(ctx, args)
	if err != nil {
		return nil, err
	}
	id, err := g.provider.SubmitAggProof(ctx, stdin)
	if err != nil {
		return nil, err
	}

	submitted := time.Now()
	for {
		status, err := g.provider.PollStatus(ctx, id, time.Since(submitted))
		if err != nil {
			return nil, err
		}
		switch status.Result {
		case proofprovider.Ready:
			return status.Proof, nil
		case proofprovider.Failed:
			return nil, fmt.Errorf("defense proof for game at L2 block %d unfulfillable", endBlock)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(proofPollInterval):
		}
	}
}
