package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// FaultGameType is the dispute-game type this system plays (spec §4.7):
// GAME_TYPE=6, an op-succinct validity-proof-backed fault dispute game.
const FaultGameType uint32 = 6

// DisputeGameFactory wraps the factory contract that mints new dispute
// games and tracks their count (spec §4.8).
type DisputeGameFactory struct {
	*bind.BoundContract
	address common.Address
}

func NewDisputeGameFactory(address common.Address, backend bind.ContractBackend) *DisputeGameFactory {
	return &DisputeGameFactory{
		BoundContract: bind.NewBoundContract(address, dgfABI, backend, backend, backend),
		address:       address,
	}
}

func (f *DisputeGameFactory) Address() common.Address { return f.address }

// PackCreate ABI-encodes a call that mints a new game of FaultGameType with
// rootClaim and extraData; the caller pays the required init bond as the
// transaction value (spec §4.8).
func (f *DisputeGameFactory) PackCreate(rootClaim common.Hash, extraData []byte) ([]byte, error) {
	return dgfABI.Pack("create", FaultGameType, rootClaim, extraData)
}

func (f *DisputeGameFactory) GameCount(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := f.Call(&bind.CallOpts{Context: ctx}, &out, "gameCount"); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GameAtIndex is the factory's registry entry for a minted game.
type GameAtIndex struct {
	GameType  uint32
	Timestamp uint64
	Proxy     common.Address
}

func (f *DisputeGameFactory) GameAtIndex(ctx context.Context, index *big.Int) (*GameAtIndex, error) {
	var out []any
	if err := f.Call(&bind.CallOpts{Context: ctx}, &out, "gameAtIndex", index); err != nil {
		return nil, err
	}
	return &GameAtIndex{
		GameType:  out[0].(uint32),
		Timestamp: out[1].(uint64),
		Proxy:     out[2].(common.Address),
	}, nil
}

func (f *DisputeGameFactory) InitBonds(ctx context.Context, gameType uint32) (*big.Int, error) {
	var out []any
	if err := f.Call(&bind.CallOpts{Context: ctx}, &out, "initBonds", gameType); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (f *DisputeGameFactory) GameImpls(ctx context.Context, gameType uint32) (common.Address, error) {
	var out []any
	if err := f.Call(&bind.CallOpts{Context: ctx}, &out, "gameImpls", gameType); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}
