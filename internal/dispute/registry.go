// Package dispute implements the fault-dispute coordinator of spec §4.8:
// a companion proving loop that defends or challenges on-chain dispute
// games instead of relaying aggregation proofs directly.
package dispute

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/op-succinct-go/internal/contracts"
)

// Game is the coordinator's in-memory view of one deployed dispute-game
// proxy, refreshed by the Indexer's poll loop. It mirrors the on-chain
// fields the Coordinator needs to decide an action, not the full ABI
// surface.
type Game struct {
	Index          *big.Int
	Address        common.Address
	L2BlockNumber  *big.Int
	RootClaim      common.Hash
	ParentIndex    uint32
	Status         contracts.GameStatus
	ProposalStatus contracts.ProposalStatus
	Deadline       uint64

	// Valid records whether the last locally recomputed output root
	// matched RootClaim, the oracle for whether this game should be
	// challenged or defended.
	Valid bool
}

// GameRegistry is the in-memory index of known dispute games, keyed by
// address. Adapted from the teacher's agent.Registry: a map of pointers
// behind a single RWMutex, no per-entry locking.
type GameRegistry struct {
	mu    sync.RWMutex
	games map[common.Address]*Game
}

func NewGameRegistry() *GameRegistry {
	return &GameRegistry{games: make(map[common.Address]*Game)}
}

// Upsert inserts or replaces a Game record.
func (r *GameRegistry) Upsert(g Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := g
	r.games[g.Address] = &clone
}

// Get returns the Game for address, or false if not indexed yet.
func (r *GameRegistry) Get(address common.Address) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.games[address]
	if !ok {
		return Game{}, false
	}
	return *p, true
}

// Remove deletes the record for address.
func (r *GameRegistry) Remove(address common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, address)
}

// ByIndexRange returns every indexed game whose Index falls within
// [lo, hi], ordered ascending by index, for the sliding "check the most
// recent N games" windows named throughout spec §4.8.
func (r *GameRegistry) ByIndexRange(lo, hi *big.Int) []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Game
	for _, g := range r.games {
		if g.Index.Cmp(lo) >= 0 && g.Index.Cmp(hi) <= 0 {
			out = append(out, *g)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index.Cmp(out[j-1].Index) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Len returns the number of indexed games.
func (r *GameRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
