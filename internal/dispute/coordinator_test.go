package dispute

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/op-succinct-go/internal/contracts"
)

type fakeGame struct {
	addr   common.Address
	l1Head common.Hash
	credit *big.Int
}

func (f *fakeGame) Address() common.Address { return f.addr }

func (f *fakeGame) PackChallenge() ([]byte, error) { return []byte("challenge"), nil }

func (f *fakeGame) PackProve(proof []byte) ([]byte, error) {
	return append([]byte("prove:"), proof...), nil
}

func (f *fakeGame) PackResolve() ([]byte, error) { return []byte("resolve"), nil }

func (f *fakeGame) PackClaimCredit(common.Address) ([]byte, error) { return []byte("claim"), nil }

func (f *fakeGame) L1Head(_ context.Context) (common.Hash, error) { return f.l1Head, nil }

func (f *fakeGame) Credit(_ context.Context, _ common.Address) (*big.Int, error) {
	if f.credit == nil {
		return big.NewInt(0), nil
	}
	return f.credit, nil
}

type fakeFactory struct {
	bond *big.Int
}

func (f *fakeFactory) Address() common.Address { return common.HexToAddress("0xfac") }

func (f *fakeFactory) PackCreate(_ common.Hash, _ []byte) ([]byte, error) {
	return []byte("create"), nil
}

func (f *fakeFactory) InitBonds(_ context.Context, _ uint32) (*big.Int, error) {
	return f.bond, nil
}

type sentTx struct {
	to    common.Address
	value *big.Int
	data  []byte
}

type fakeSigner struct {
	addr    common.Address
	sent    []sentTx
	failFor map[common.Address]bool
}

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) SendTransactionRequest(_ context.Context, _ *ethclient.Client, tx *gethtypes.DynamicFeeTx) (*gethtypes.Receipt, error) {
	f.sent = append(f.sent, sentTx{to: *tx.To, value: tx.Value, data: tx.Data})
	if f.failFor[*tx.To] {
		return nil, errors.New("submission failed")
	}
	return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, TxHash: common.BytesToHash(tx.Data)}, nil
}

type fakeProofs struct{}

func (fakeProofs) ProveGame(_ context.Context, _ common.Hash, _, _ int64) ([]byte, error) {
	return []byte("agg"), nil
}

// neverExpires keeps resolveTick's deadline check from firing.
const neverExpires = ^uint64(0)

type coordEnv struct {
	c      *Coordinator
	signer *fakeSigner
	games  map[common.Address]*fakeGame
}

func newCoordEnv(role Role) *coordEnv {
	games := make(map[common.Address]*fakeGame)
	sgn := &fakeSigner{addr: common.HexToAddress("0x51"), failFor: make(map[common.Address]bool)}
	c := &Coordinator{
		Role:                         role,
		Signer:                       sgn,
		Factory:                      &fakeFactory{bond: big.NewInt(1000)},
		Registry:                     NewGameRegistry(),
		GameType:                     contracts.FaultGameType,
		MaxGamesToCheckForChallenge:  100,
		MaxGamesToCheckForDefense:    100,
		MaxGamesToCheckForResolution: 100,
		MaxGamesToCheckForBondClaim:  100,
	}
	c.Games = func(addr common.Address) GameContract {
		if g, ok := games[addr]; ok {
			return g
		}
		g := &fakeGame{addr: addr}
		games[addr] = g
		return g
	}
	return &coordEnv{c: c, signer: sgn, games: games}
}

func (e *coordEnv) addGame(index int64, status contracts.GameStatus, proposal contracts.ProposalStatus, valid bool, deadline uint64) Game {
	g := Game{
		Index:          big.NewInt(index),
		Address:        common.BigToAddress(big.NewInt(index + 0x1000)),
		L2BlockNumber:  big.NewInt(index * 100),
		ParentIndex:    contracts.ParentIndexUnresolved,
		Status:         status,
		ProposalStatus: proposal,
		Deadline:       deadline,
		Valid:          valid,
	}
	e.c.Registry.Upsert(g)
	e.games[g.Address] = &fakeGame{addr: g.Address}
	return g
}

func (e *coordEnv) setCredit(g Game, amount int64) {
	e.games[g.Address].credit = big.NewInt(amount)
}

// The challenge sweep is unbounded per tick: every invalid unchallenged
// game in the window is challenged, each with the challenger bond.
func TestChallengerChallengesEveryInvalidGame(t *testing.T) {
	env := newCoordEnv(RoleChallenger)
	bad1 := env.addGame(0, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, false, neverExpires)
	env.addGame(1, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, true, neverExpires)
	bad2 := env.addGame(2, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, false, neverExpires)
	env.addGame(3, contracts.GameStatusInProgress, contracts.ProposalChallenged, false, neverExpires)

	require.NoError(t, env.c.Tick(context.Background()))

	require.Len(t, env.signer.sent, 2)
	require.Equal(t, bad1.Address, env.signer.sent[0].to)
	require.Equal(t, bad2.Address, env.signer.sent[1].to)
	for _, tx := range env.signer.sent {
		require.Equal(t, big.NewInt(1000), tx.value)
		require.Equal(t, []byte("challenge"), tx.data)
	}
}

// A failed challenge submission is logged and the sweep continues to the
// remaining candidates.
func TestChallengerContinuesPastFailedSubmission(t *testing.T) {
	env := newCoordEnv(RoleChallenger)
	bad1 := env.addGame(0, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, false, neverExpires)
	bad2 := env.addGame(1, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, false, neverExpires)
	env.signer.failFor[bad1.Address] = true

	require.NoError(t, env.c.challengeTick(context.Background()))

	require.Len(t, env.signer.sent, 2)
	require.Equal(t, bad1.Address, env.signer.sent[0].to)
	require.Equal(t, bad2.Address, env.signer.sent[1].to)
}

// In chaos mode a valid game is challenged too, at the configured rate.
func TestChaosModeChallengesValidGame(t *testing.T) {
	env := newCoordEnv(RoleChallenger)
	env.c.Chaos = ChaosConfig{Enabled: true, Rate: 1.0}
	good := env.addGame(0, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, true, neverExpires)

	require.NoError(t, env.c.challengeTick(context.Background()))

	require.Len(t, env.signer.sent, 1)
	require.Equal(t, good.Address, env.signer.sent[0].to)
}

// Defense is oldest-only: one prove() per tick even with several
// challenged valid games outstanding.
func TestProposerDefendsOldestChallengedGameOnly(t *testing.T) {
	env := newCoordEnv(RoleProposer)
	env.c.Proofs = fakeProofs{}
	oldest := env.addGame(0, contracts.GameStatusInProgress, contracts.ProposalChallenged, true, neverExpires)
	env.addGame(1, contracts.GameStatusInProgress, contracts.ProposalChallenged, true, neverExpires)

	require.NoError(t, env.c.defendTick(context.Background()))

	require.Len(t, env.signer.sent, 1)
	require.Equal(t, oldest.Address, env.signer.sent[0].to)
	require.Equal(t, []byte("prove:agg"), env.signer.sent[0].data)
}

// Resolution is gated on the oldest window entry's parent: nothing
// resolves while that parent is still in progress.
func TestResolveBlockedByUnresolvedParent(t *testing.T) {
	env := newCoordEnv(RoleChallenger)
	env.c.MaxGamesToCheckForResolution = 1

	parent := env.addGame(2, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, true, neverExpires)
	child := env.addGame(3, contracts.GameStatusInProgress, contracts.ProposalChallenged, false, 1)
	child.ParentIndex = 2
	env.c.Registry.Upsert(child)
	env.addGame(4, contracts.GameStatusInProgress, contracts.ProposalUnchallenged, true, neverExpires)

	require.NoError(t, env.c.resolveTick(context.Background()))
	require.Empty(t, env.signer.sent)

	parent.Status = contracts.GameStatusDefenderWins
	env.c.Registry.Upsert(parent)

	require.NoError(t, env.c.resolveTick(context.Background()))
	require.Len(t, env.signer.sent, 1)
	require.Equal(t, child.Address, env.signer.sent[0].to)
	require.Equal(t, []byte("resolve"), env.signer.sent[0].data)
}

// A proposer claims only the oldest claimable bond per tick; the rest
// wait for later ticks.
func TestProposerClaimsOldestBondOnly(t *testing.T) {
	env := newCoordEnv(RoleProposer)
	oldest := env.addGame(0, contracts.GameStatusDefenderWins, contracts.ProposalResolved, true, 1)
	second := env.addGame(1, contracts.GameStatusDefenderWins, contracts.ProposalResolved, true, 1)
	env.setCredit(oldest, 5)
	env.setCredit(second, 5)

	require.NoError(t, env.c.claimBondTick(context.Background()))

	require.Len(t, env.signer.sent, 1)
	require.Equal(t, oldest.Address, env.signer.sent[0].to)
	require.Equal(t, []byte("claim"), env.signer.sent[0].data)

	// The claimed DEFENDER_WINS game is evicted, the unclaimed one stays.
	_, ok := env.c.Registry.Get(oldest.Address)
	require.False(t, ok)
	_, ok = env.c.Registry.Get(second.Address)
	require.True(t, ok)
}

// A challenger sweeps every claimable bond in the window in one tick.
func TestChallengerClaimsAllBonds(t *testing.T) {
	env := newCoordEnv(RoleChallenger)
	won1 := env.addGame(0, contracts.GameStatusChallengerWins, contracts.ProposalResolved, false, 1)
	won2 := env.addGame(1, contracts.GameStatusChallengerWins, contracts.ProposalResolved, false, 1)
	noCredit := env.addGame(2, contracts.GameStatusDefenderWins, contracts.ProposalResolved, true, 1)
	env.setCredit(won1, 5)
	env.setCredit(won2, 7)

	require.NoError(t, env.c.claimBondTick(context.Background()))

	require.Len(t, env.signer.sent, 2)
	require.Equal(t, won1.Address, env.signer.sent[0].to)
	require.Equal(t, won2.Address, env.signer.sent[1].to)

	// Zero-credit DEFENDER_WINS games are evicted without a claim tx.
	_, ok := env.c.Registry.Get(noCredit.Address)
	require.False(t, ok)
}
