// op-succinct-proposer drives the validity rollup proving pipeline: it
// discovers new L2 block ranges, dispatches range and aggregation proofs
// to a proving provider, and relays completed aggregation proofs to the
// settlement contract.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"github.com/tos-network/op-succinct-go/internal/config"
	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/flags"
	"github.com/tos-network/op-succinct-go/internal/health"
	"github.com/tos-network/op-succinct-go/internal/host"
	"github.com/tos-network/op-succinct-go/internal/proofprovider"
	"github.com/tos-network/op-succinct-go/internal/proofrequester"
	"github.com/tos-network/op-succinct-go/internal/relay"
	"github.com/tos-network/op-succinct-go/internal/scheduler"
	"github.com/tos-network/op-succinct-go/internal/signer"
	"github.com/tos-network/op-succinct-go/internal/store"
	"github.com/tos-network/op-succinct-go/internal/types"
)

var gitCommit = ""
var gitDate = ""

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	healthAddrFlag = &cli.StringFlag{
		Name:     "health.addr",
		Usage:    "Listen address for the /healthz and /readyz probes",
		Value:    "127.0.0.1:7300",
		Category: flags.MiscCategory,
	}
	configsDirFlag = &cli.StringFlag{
		Name:     "configs.dir",
		Usage:    "Directory rollup configs are persisted under",
		Value:    "configs",
		Category: flags.MiscCategory,
	}
)

var app *cli.App

func init() {
	app = flags.NewApp(gitCommit, gitDate, "the op-succinct validity rollup proposer")
	app.Flags = []cli.Flag{verbosityFlag, healthAddrFlag, configsDirFlag}
	app.Action = runProposer
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging configures the root handler once: colorized terminal
// output on a TTY, JSON otherwise.
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

func runProposer(cliCtx *cli.Context) error {
	setupLogging(cliCtx.Int(verbosityFlag.Name))

	cfg, err := config.FromEnv()
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
	chain := types.ChainPair{L1ChainID: l1ID.Int64(), L2ChainID: l2ID.Int64()}

	f, err := fetcher.Dial(ctx, fetcher.Config{
		L1RPC:     cfg.L1RPC,
		L2RPC:     cfg.L2RPC,
		L2NodeRPC: cfg.L2NodeRPC,
		L1ChainID: chain.L1ChainID,
		L2ChainID: chain.L2ChainID,
	})
	if err != nil {
		return err
	}
	defer f.Close()

	rcStore, err := config.NewRollupConfigStore(cliCtx.String(configsDirFlag.Name))
	if err != nil {
		return err
	}
	l2Node, err := rpc.DialContext(ctx, cfg.L2NodeRPC)
	if err != nil {
		return fmt.Errorf("dial L2 consensus RPC: %w", err)
	}
	_, rollupConfigHash, err := rcStore.FetchAndPersist(ctx, l2Node, chain.L2ChainID)
	l2Node.Close()
	if err != nil {
		return err
	}

	hostProg := &host.Program{Bin: os.Getenv("WITNESS_GEN_BIN")}
	provider, err := buildProvider(ctx, cfg, hostProg)
	if err != nil {
		return err
	}
	rangeVkey, aggVkey := provider.Keys()
	commitment := cfg.Fingerprint(common.Hash(rangeVkey), common.Hash(aggVkey), rollupConfigHash)
	log.Info("derived commitment fingerprint",
		"range_vkey_commitment", commitment.RangeVkeyCommitment,
		"agg_vkey_hash", commitment.AggVkeyHash,
		"rollup_config_hash", commitment.RollupConfigHash)

	st, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	sgn, err := signer.Build(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("signer ready", "address", sgn.Address())

	l2oo := contracts.NewL2OutputOracle(cfg.L2OOAddress, l1Client)
	var dgf *contracts.DisputeGameFactory
	if cfg.DGFAddress != nil {
		dgf = contracts.NewDisputeGameFactory(*cfg.DGFAddress, l1Client)
	}
	rly := &relay.Relay{
		L1Client:       l1Client,
		Signer:         sgn,
		L2OO:           l2oo,
		DGF:            dgf,
		Fetcher:        f,
		ConfigNameHash: cfg.ConfigNameHash,
	}

	requester := &proofrequester.Requester{
		Store:          st,
		Fetcher:        f,
		Provider:       provider,
		Host:           hostProg,
		AggBuilder:     hostProg,
		SafeDBFallback: cfg.SafeDBFallback,
		Commitment:     commitment,
		Chain:          chain,
	}

	sched := scheduler.New(scheduler.Config{
		RangeProofInterval:         cfg.RangeProofInterval,
		SubmissionInterval:         cfg.SubmissionInterval,
		MaxConcurrentWitnessGen:    int64(cfg.MaxConcurrentWitnessGen),
		MaxConcurrentProofRequests: int64(cfg.MaxConcurrentProofRequests),
		EVMGasLimit:                cfg.EVMGasLimit,
		Mock:                       cfg.Mock,
		LoopInterval:               cfg.LoopInterval,
		ConfigNameHash:             cfg.ConfigNameHash,
		ProverAddress:              sgn.Address(),
	}, scheduler.Deps{
		Store:      st,
		Provider:   provider,
		Fulfiller:  requester,
		Contract:   l2oo,
		Checkpoint: rly,
		Relay:      rly,
		Blocks:     f,
	}, commitment, chain)

	probes := health.NewServer()
	go probes.Serve(cliCtx.String(healthAddrFlag.Name))
	probes.SetReady(true)

	log.Info("starting proposer", "l1_chain_id", chain.L1ChainID, "l2_chain_id", chain.L2ChainID,
		"mock", cfg.Mock, "loop_interval", cfg.LoopInterval)
	return sched.Run(ctx)
}

// buildProvider resolves the proving provider variant: a local mock
// executor when MOCK=true, a self-hosted cluster when CLUSTER_RPC is set,
// and the external proving network otherwise.
func buildProvider(ctx context.Context, cfg *config.Config, hostProg *host.Program) (proofprovider.Provider, error) {
	rangeELF := os.Getenv("RANGE_ELF_PATH")
	aggELF := os.Getenv("AGG_ELF_PATH")
	rangeVkey, aggVkey, err := deriveVkeys(rangeELF, aggELF)
	if err != nil {
		return nil, err
	}

	if cfg.Mock {
		return proofprovider.NewMock(hostProg, []byte(rangeELF), []byte(aggELF), rangeVkey, aggVkey), nil
	}

	params := proofprovider.NetworkParams{
		Endpoint:       os.Getenv("NETWORK_RPC"),
		APIKey:         os.Getenv("NETWORK_API_KEY"),
		RangeProgramID: []byte(rangeELF),
		AggProgramID:   []byte(aggELF),
		RangeVkey:      rangeVkey,
		AggVkey:        aggVkey,
		RangeStrategy:  proofprovider.Strategy(cfg.RangeProofStrategy),
		AggStrategy:    proofprovider.Strategy(cfg.AggProofStrategy),
		ProvingTimeout: 4 * time.Hour,
		AuctionTimeout: time.Hour,
		IsMainnet:      os.Getenv("NETWORK_MAINNET") == "true",
	}
	if clusterRPC := os.Getenv("CLUSTER_RPC"); clusterRPC != "" {
		params.Endpoint = clusterRPC
		return proofprovider.DialCluster(ctx, params)
	}
	return proofprovider.DialNetwork(ctx, params)
}

// deriveVkeys verifies the two program binaries against their detached
// minisign signatures and hashes them into fingerprint components. The
// signature check is skipped only when no trusted key is configured.
func deriveVkeys(rangeELF, aggELF string) ([32]byte, [32]byte, error) {
	pubKey := os.Getenv("MINISIGN_PUBKEY")
	hash := func(elf string) (common.Hash, error) {
		if pubKey == "" {
			return hashFile(elf)
		}
		return config.VerifyAndHashProgram(elf, elf+".minisig", pubKey)
	}
	if pubKey == "" {
		log.Warn("MINISIGN_PUBKEY unset, skipping program signature verification")
	}

	rangeHash, err := hash(rangeELF)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	aggHash, err := hash(aggELF)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return [32]byte(rangeHash), [32]byte(aggHash), nil
}

func hashFile(path string) (common.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read program binary %s: %w", path, err)
	}
	return sha256.Sum256(data), nil
}

// openStore selects the RequestStore backend from the DATABASE_URL
// scheme: Postgres for postgres://, an embedded LevelDB path otherwise.
func openStore(ctx context.Context, databaseURL string) (store.Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		var archiver store.BlobArchiver
		if conn := os.Getenv("AZURE_STORAGE_CONNECTION_STRING"); conn != "" {
			container := os.Getenv("AZURE_STORAGE_CONTAINER")
			a, err := store.NewAzureArchiver(conn, container)
			if err != nil {
				return nil, err
			}
			archiver = a
		}
		return store.OpenPGStore(ctx, databaseURL, archiver)
	}
	return store.OpenLevelStore(databaseURL)
}
