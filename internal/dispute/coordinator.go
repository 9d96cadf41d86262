package dispute

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/tos-network/op-succinct-go/internal/contracts"
	"github.com/tos-network/op-succinct-go/internal/errutil"
	"github.com/tos-network/op-succinct-go/internal/fetcher"
	"github.com/tos-network/op-succinct-go/internal/signer"
)

// Role selects which of the two §4.8 predicates a Coordinator evaluates.
// Both roles run the same tick skeleton; only the sign of the
// challenge/defend checks differs.
type Role int

const (
	RoleChallenger Role = iota
	RoleProposer
)

// ProofSource produces the aggregation proof bytes a Proposer submits to
// defend a challenged game, grounded on the original proposer's
// prove_game: fetch the game's committed L1 head and claimed L2 range,
// then run the same witness-generation-plus-proving path the scheduler's
// Requester uses for ordinary aggregation requests.
type ProofSource interface {
	ProveGame(ctx context.Context, l1Head common.Hash, startBlock, endBlock int64) ([]byte, error)
}

// ChaosConfig is a Challenger's probability of flagging a game it knows
// to be valid anyway, the spec's "chaos-test mode" for exercising the
// dispute path in staging environments. Zero/disabled in honest mode.
type ChaosConfig struct {
	Enabled bool
	Rate    float64
}

// GameContract is the per-game ABI surface the coordinator drives,
// implemented by contracts.FaultDisputeGame. Tests substitute fakes the
// same way the scheduler's collaborators are faked.
type GameContract interface {
	Address() common.Address
	PackChallenge() ([]byte, error)
	PackProve(proof []byte) ([]byte, error)
	PackResolve() ([]byte, error)
	PackClaimCredit(recipient common.Address) ([]byte, error)
	L1Head(ctx context.Context) (common.Hash, error)
	Credit(ctx context.Context, recipient common.Address) (*big.Int, error)
}

// GameFactory is the factory surface the coordinator needs, implemented
// by contracts.DisputeGameFactory.
type GameFactory interface {
	Address() common.Address
	PackCreate(rootClaim common.Hash, extraData []byte) ([]byte, error)
	InitBonds(ctx context.Context, gameType uint32) (*big.Int, error)
}

// Coordinator implements both dispute-coordinator roles named in spec
// §4.8 from one code path, selected by Role.
type Coordinator struct {
	Role     Role
	L1Client *ethclient.Client
	Backend  bind.ContractBackend
	Signer   signer.Signer
	Factory  GameFactory
	Fetcher  *fetcher.Fetcher
	Registry *GameRegistry
	Proofs   ProofSource // nil for Challenger

	// Games overrides how a game address is bound to its contract
	// surface; nil binds a FaultDisputeGame over Backend.
	Games func(common.Address) GameContract

	GameType                      uint32
	ProposalIntervalInBlocks      int64
	MaxGamesToCheckForChallenge   int64
	MaxGamesToCheckForDefense     int64
	MaxGamesToCheckForResolution  int64
	MaxGamesToCheckForBondClaim   int64
	Chaos                         ChaosConfig

	rng *rand.Rand
}

// Tick runs one pass of the coordinator's duties: challenge or defend,
// resolve eligible games, and claim bonds — in that order, matching the
// original fault-proof binaries' per-iteration sequence.
func (c *Coordinator) Tick(ctx context.Context) error {
	switch c.Role {
	case RoleChallenger:
		if err := c.challengeTick(ctx); err != nil {
			return err
		}
	case RoleProposer:
		if err := c.defendTick(ctx); err != nil {
			return err
		}
		if err := c.proposeTick(ctx); err != nil {
			return err
		}
	}
	if err := c.resolveTick(ctx); err != nil {
		return err
	}
	return c.claimBondTick(ctx)
}

// game binds addr to its contract surface.
func (c *Coordinator) game(addr common.Address) GameContract {
	if c.Games != nil {
		return c.Games(addr)
	}
	return contracts.NewFaultDisputeGame(addr, c.Backend)
}

// challengeTick scans the most recent MaxGamesToCheckForChallenge games
// and challenges every one with an invalid claim (honest mode) plus, in
// chaos mode, randomly flagged valid ones (spec §4.8's "configurable
// probability" line). The sweep is unbounded per tick: a failed
// submission is logged and the scan continues to the next candidate.
func (c *Coordinator) challengeTick(ctx context.Context) error {
	window := c.window(c.MaxGamesToCheckForChallenge)
	for _, g := range window {
		if g.Status != contracts.GameStatusInProgress || g.ProposalStatus != contracts.ProposalUnchallenged {
			continue
		}
		shouldChallenge := !g.Valid
		if !shouldChallenge && c.Chaos.Enabled && c.rand() < c.Chaos.Rate {
			log.Warn("chaos mode: challenging a valid game", "game", g.Address, "index", g.Index)
			shouldChallenge = true
		}
		if !shouldChallenge {
			continue
		}
		if err := c.submitChallenge(ctx, g); err != nil {
			log.Error("failed to challenge game", "game", g.Address, "index", g.Index, "err", err)
		}
	}
	return nil
}

func (c *Coordinator) submitChallenge(ctx context.Context, g Game) error {
	game := c.game(g.Address)
	calldata, err := game.PackChallenge()
	if err != nil {
		return fmt.Errorf("pack challenge: %w", err)
	}
	bond, err := c.challengerBond(ctx)
	if err != nil {
		return err
	}
	if _, err := c.send(ctx, g.Address, calldata, bond); err != nil {
		return err
	}
	log.Info("challenged game", "game", g.Address, "index", g.Index, "l2_block", g.L2BlockNumber, "bond", bond)
	return nil
}

// challengerBond reads the bond this game's implementation requires to
// challenge, via the factory's initBonds lookup, converted to the
// wei-denominated uint256 type bonds are tracked in throughout this
// package.
func (c *Coordinator) challengerBond(ctx context.Context) (*uint256.Int, error) {
	raw, err := c.Factory.InitBonds(ctx, c.GameType)
	if err != nil {
		return nil, err
	}
	bond, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("challenger bond %s overflows uint256", raw)
	}
	return bond, nil
}

// defendTick proves any game that is Challenged but whose claim is
// actually valid, submitting prove(aggProofBytes) (Proposer role only).
func (c *Coordinator) defendTick(ctx context.Context) error {
	window := c.window(c.MaxGamesToCheckForDefense)
	for _, g := range window {
		if g.Status != contracts.GameStatusInProgress || g.ProposalStatus != contracts.ProposalChallenged || !g.Valid {
			continue
		}
		return c.submitProve(ctx, g)
	}
	return nil
}

func (c *Coordinator) submitProve(ctx context.Context, g Game) error {
	if c.Proofs == nil {
		return fmt.Errorf("dispute: no ProofSource configured for defense of game %s", g.Address)
	}
	game := c.game(g.Address)
	l1Head, err := game.L1Head(ctx)
	if err != nil {
		return err
	}
	startBlock := g.L2BlockNumber.Int64() - c.ProposalIntervalInBlocks
	proof, err := c.Proofs.ProveGame(ctx, l1Head, startBlock, g.L2BlockNumber.Int64())
	if err != nil {
		return errutil.New(errutil.KindWitnessGenFailure, err)
	}
	calldata, err := game.PackProve(proof)
	if err != nil {
		return fmt.Errorf("pack prove: %w", err)
	}
	if _, err := c.send(ctx, g.Address, calldata, uint256.NewInt(0)); err != nil {
		return err
	}
	log.Info("proved game", "game", g.Address, "index", g.Index)
	return nil
}

// proposeTick creates a new game once the finalized L2 head has advanced
// by ProposalIntervalInBlocks past the latest known game (Proposer role
// only, spec §4.8's "creates new games when finalized L2 head advances").
func (c *Coordinator) proposeTick(ctx context.Context) error {
	latest := c.latestGame()

	finalized, err := c.Fetcher.FinalizedL2BlockNumber(ctx)
	if err != nil {
		return nil // L2 finalized head unreachable; retried next interval
	}

	var nextBlock int64
	if latest == nil {
		nextBlock = c.ProposalIntervalInBlocks
	} else {
		nextBlock = latest.L2BlockNumber.Int64() + c.ProposalIntervalInBlocks
	}
	if finalized < nextBlock {
		return nil // chain hasn't advanced far enough yet
	}

	output, err := c.Fetcher.GetOutputAtBlock(ctx, nextBlock)
	if err != nil {
		return err
	}

	calldata, err := c.Factory.PackCreate(output.OutputRoot, c.packProposeExtraData(nextBlock))
	if err != nil {
		return fmt.Errorf("pack create: %w", err)
	}
	bond, err := c.challengerBond(ctx)
	if err != nil {
		return err
	}
	if _, err := c.send(ctx, c.Factory.Address(), calldata, bond); err != nil {
		return err
	}
	log.Info("created new dispute game", "l2_block", nextBlock, "bond", bond)
	return nil
}

// packProposeExtraData is the factory's extraData for a fresh proposal:
// just the claimed L2 block number, left-padded to 32 bytes (the game
// reads its own l2BlockNumber from this, unlike the relay path's richer
// encoding which also carries the L1 checkpoint and proof).
func (c *Coordinator) packProposeExtraData(l2Block int64) []byte {
	return common.LeftPadBytes(big.NewInt(l2Block).Bytes(), 32)
}

// resolveTick implements should_attempt_resolution/try_resolve_games:
// starting from the oldest game in the resolution window, only proceeds
// if that game's parent is not known to be in progress (it has resolved,
// it has no parent, or it is absent from the registry), then resolves
// every eligible game whose deadline has passed. A parent that
// claimBondTick evicted after resolving to DEFENDER_WINS is absent from
// the registry and therefore counts as resolved.
func (c *Coordinator) resolveTick(ctx context.Context) error {
	window := c.window(c.MaxGamesToCheckForResolution)
	if len(window) == 0 {
		return nil
	}

	oldest := window[0]
	if oldest.ParentIndex != contracts.ParentIndexUnresolved {
		parent, ok := c.Registry.Get(c.addressAtIndex(oldest.ParentIndex))
		if ok && parent.Status == contracts.GameStatusInProgress {
			log.Debug("resolution blocked: parent game still in progress", "oldest_index", oldest.Index, "parent_index", oldest.ParentIndex)
			return nil
		}
	}

	now := uint64(time.Now().Unix())
	for _, g := range window {
		if g.Status != contracts.GameStatusInProgress {
			continue
		}
		if c.Role == RoleProposer && g.ProposalStatus != contracts.ProposalUnchallenged {
			continue
		}
		if c.Role == RoleChallenger && g.ProposalStatus != contracts.ProposalChallenged {
			continue
		}
		if g.Deadline >= now {
			continue
		}
		if err := c.submitResolve(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) submitResolve(ctx context.Context, g Game) error {
	game := c.game(g.Address)
	calldata, err := game.PackResolve()
	if err != nil {
		return fmt.Errorf("pack resolve: %w", err)
	}
	if _, err := c.send(ctx, g.Address, calldata, uint256.NewInt(0)); err != nil {
		return err
	}
	log.Info("resolved game", "game", g.Address, "index", g.Index)
	return nil
}

// claimBondTick claims credit from finalized games where this actor has
// a non-zero balance. The two roles diverge here, matching their
// original binaries: a challenger sweeps every claimable game in the
// window, a proposer claims only the oldest claimable bond per tick and
// leaves the rest for later ticks. A game that has resolved to
// DEFENDER_WINS is evicted from the registry once its bond is claimed,
// or without a claim when this actor has no credit left in it
// (spec §9's "games with DEFENDER_WINS status are evicted; others
// retained until bond claimed").
func (c *Coordinator) claimBondTick(ctx context.Context) error {
	window := c.window(c.MaxGamesToCheckForBondClaim)
	for _, g := range window {
		if g.Status == contracts.GameStatusInProgress {
			continue
		}
		game := c.game(g.Address)
		credit, err := game.Credit(ctx, c.Signer.Address())
		if err != nil {
			return err
		}
		if credit.Sign() <= 0 {
			if g.Status == contracts.GameStatusDefenderWins {
				c.Registry.Remove(g.Address)
			}
			continue
		}
		calldata, err := game.PackClaimCredit(c.Signer.Address())
		if err != nil {
			return fmt.Errorf("pack claimCredit: %w", err)
		}
		if _, err := c.send(ctx, g.Address, calldata, uint256.NewInt(0)); err != nil {
			return err
		}
		log.Info("claimed bond", "game", g.Address, "index", g.Index, "amount", credit)
		if g.Status == contracts.GameStatusDefenderWins {
			c.Registry.Remove(g.Address)
		}
		if c.Role == RoleProposer {
			// Oldest claimable only; the window is ascending by index.
			return nil
		}
	}
	return nil
}

func (c *Coordinator) send(ctx context.Context, to common.Address, calldata []byte, value *uint256.Int) (common.Hash, error) {
	tx := &gethtypes.DynamicFeeTx{To: &to, Value: value.ToBig(), Data: calldata}
	receipt, err := c.Signer.SendTransactionRequest(ctx, c.L1Client, tx)
	if err != nil {
		return common.Hash{}, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return common.Hash{}, errutil.Newf(errutil.KindRelayReverted, "dispute tx %s to %s reverted", receipt.TxHash, to)
	}
	return receipt.TxHash, nil
}

// window returns the indexed games whose index lies in
// [latest-maxToCheck, latest] (clamped at 0), ascending by index, so it
// holds up to maxToCheck+1 games, per the "sliding window over the last
// N games" pattern named throughout spec §4.8.
func (c *Coordinator) window(maxToCheck int64) []Game {
	latest := c.latestGame()
	if latest == nil {
		return nil
	}
	lo := new(big.Int).Sub(latest.Index, big.NewInt(maxToCheck))
	if lo.Sign() < 0 {
		lo.SetInt64(0)
	}
	return c.Registry.ByIndexRange(lo, latest.Index)
}

func (c *Coordinator) latestGame() *Game {
	all := c.Registry.ByIndexRange(big.NewInt(0), new(big.Int).SetInt64(1<<62))
	if len(all) == 0 {
		return nil
	}
	latest := all[len(all)-1]
	return &latest
}

func (c *Coordinator) addressAtIndex(index uint32) common.Address {
	for _, g := range c.Registry.ByIndexRange(big.NewInt(int64(index)), big.NewInt(int64(index))) {
		return g.Address
	}
	return common.Address{}
}

func (c *Coordinator) rand() float64 {
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c.rng.Float64()
}
