package dispute

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
)

// GameIndexer keeps a GameRegistry up to date by polling the factory's
// gameCount and pulling any newly minted games. Adapted from the
// teacher's agentidx.Indexer: same Start/Stop/loop shape, but polling an
// L1 contract on an interval instead of subscribing to local chain
// events, since this process has no local chain to subscribe to.
type GameIndexer struct {
	factory  *contracts.DisputeGameFactory
	backend  bind.ContractBackend
	fetcher  *fetcher.Fetcher
	registry *GameRegistry
	gameType uint32
	interval time.Duration

	nextIndex *big.Int
	quit      chan struct{}
}

// NewGameIndexer creates an Indexer backed by the given registry. backend
// is used to bind each newly discovered FaultDisputeGame proxy.
func NewGameIndexer(factory *contracts.DisputeGameFactory, backend bind.ContractBackend, f *fetcher.Fetcher, registry *GameRegistry, gameType uint32, interval time.Duration) *GameIndexer {
	return &GameIndexer{
		factory:   factory,
		backend:   backend,
		fetcher:   f,
		registry:  registry,
		gameType:  gameType,
		interval:  interval,
		nextIndex: big.NewInt(0),
		quit:      make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (idx *GameIndexer) Start() {
	go idx.loop()
}

// Stop shuts down the indexer.
func (idx *GameIndexer) Stop() {
	close(idx.quit)
}

func (idx *GameIndexer) loop() {
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), idx.interval)
			if err := idx.poll(ctx); err != nil {
				log.Warn("Game indexer poll failed", "err", err)
			}
			cancel()
		case <-idx.quit:
			return
		}
	}
}

// poll fetches every game index not yet indexed and upserts its current
// on-chain state into the registry.
func (idx *GameIndexer) poll(ctx context.Context) error {
	count, err := idx.factory.GameCount(ctx)
	if err != nil {
		return err
	}

	for idx.nextIndex.Cmp(count) < 0 {
		if err := idx.indexOne(ctx, new(big.Int).Set(idx.nextIndex)); err != nil {
			return err
		}
		idx.nextIndex.Add(idx.nextIndex, big.NewInt(1))
	}

	return idx.refreshInFlight(ctx)
}

func (idx *GameIndexer) indexOne(ctx context.Context, index *big.Int) error {
	entry, err := idx.factory.GameAtIndex(ctx, index)
	if err != nil {
		return err
	}
	if entry.GameType != idx.gameType {
		return nil
	}
	game := contracts.NewFaultDisputeGame(entry.Proxy, idx.backend)
	return idx.refresh(ctx, game, index)
}

// refreshInFlight re-reads the state of every indexed game whose status
// is still InProgress, since those are the only ones that can change
// between polls.
func (idx *GameIndexer) refreshInFlight(ctx context.Context) error {
	zero := big.NewInt(0)
	for _, g := range idx.registry.ByIndexRange(zero, idx.nextIndex) {
		if g.Status != contracts.GameStatusInProgress {
			continue
		}
		game := contracts.NewFaultDisputeGame(g.Address, idx.backend)
		if err := idx.refresh(ctx, game, g.Index); err != nil {
			log.Debug("Game indexer: refresh failed", "game", g.Address, "err", err)
		}
	}
	return nil
}

func (idx *GameIndexer) refresh(ctx context.Context, game *contracts.FaultDisputeGame, index *big.Int) error {
	l2BlockNumber, err := game.L2BlockNumber(ctx)
	if err != nil {
		return err
	}
	rootClaim, err := game.RootClaim(ctx)
	if err != nil {
		return err
	}
	claimData, err := game.ClaimData(ctx)
	if err != nil {
		return err
	}
	status, err := game.Status(ctx)
	if err != nil {
		return err
	}

	valid := false
	if output, err := idx.fetcher.GetOutputAtBlock(ctx, l2BlockNumber.Int64()); err == nil {
		valid = output.OutputRoot == rootClaim
	} else {
		log.Debug("Game indexer: could not recompute output root", "game", game.Address(), "err", err)
	}

	g := Game{
		Index:          index,
		Address:        game.Address(),
		L2BlockNumber:  l2BlockNumber,
		RootClaim:      rootClaim,
		ParentIndex:    claimData.ParentIndex,
		Status:         status,
		ProposalStatus: claimData.Status,
		Deadline:       claimData.Deadline,
		Valid:          valid,
	}
	idx.registry.Upsert(g)
	log.Debug("Game indexer: indexed game", "index", index, "address", game.Address(), "l2_block", l2BlockNumber, "valid", valid)
	return nil
}
