package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tos-network/op-succinct-go/internal/types"
)

// LevelStore is the embedded-database backend used for MOCK=true and CI
// runs, so local development and tests don't need a live Postgres. It
// implements the same Store interface as pgstore by keeping requests
// durable on disk (one JSON value per key, keyed by ID) while serving
// every query from an in-memory index rebuilt at open time — the same
// trade-off go-ethereum's own chain freezer/index tables make: the KV
// store is the source of truth, the index is a derived, rebuildable cache.
type LevelStore struct {
	db *leveldb.DB

	mu       sync.Mutex
	requests map[int64]*types.Request
	nextID   int64
	locks    map[types.ChainPair]types.ChainLock
}

const requestKeyPrefix = "req/"

func requestKey(id int64) []byte {
	buf := make([]byte, len(requestKeyPrefix)+8)
	copy(buf, requestKeyPrefix)
	binary.BigEndian.PutUint64(buf[len(requestKeyPrefix):], uint64(id))
	return buf
}

// OpenLevelStore opens (or creates) a LevelDB database at path and
// rebuilds the in-memory index from its contents.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	s := &LevelStore{
		db:       db,
		requests: make(map[int64]*types.Request),
		locks:    make(map[types.ChainPair]types.ChainLock),
	}
	iter := db.NewIterator(util.BytesPrefix([]byte(requestKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var req types.Request
		if err := json.Unmarshal(iter.Value(), &req); err != nil {
			return nil, fmt.Errorf("corrupt request record: %w", err)
		}
		s.requests[req.ID] = &req
		if req.ID >= s.nextID {
			s.nextID = req.ID + 1
		}
	}
	return s, iter.Error()
}

func (s *LevelStore) persist(req *types.Request) error {
	buf, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.db.Put(requestKey(req.ID), buf, nil)
}

func (s *LevelStore) Close() error { return s.db.Close() }

func (s *LevelStore) InsertRequest(_ context.Context, req *types.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(req)
}

func (s *LevelStore) insertLocked(req *types.Request) error {
	now := time.Now()
	req.ID = s.nextID
	s.nextID++
	req.CreatedAt = now
	req.UpdatedAt = now
	clone := *req
	s.requests[req.ID] = &clone
	return s.persist(&clone)
}

func (s *LevelStore) InsertRequests(_ context.Context, reqs []*types.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reqs {
		if err := s.insertLocked(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *LevelStore) mustGetLocked(id int64) (*types.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %d not found", id)
	}
	return r, nil
}

func (s *LevelStore) UpdateStatus(_ context.Context, id int64, status types.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateToProve(_ context.Context, id int64, proofRequestID [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.ProofRequestID = &proofRequestID
	r.Status = types.StatusProve
	now := time.Now()
	r.UpdatedAt = now
	r.ProofRequestTime = &now
	return s.persist(r)
}

func (s *LevelStore) UpdateToComplete(_ context.Context, id int64, proof []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.Proof = proof
	r.Status = types.StatusComplete
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateToRelayed(_ context.Context, id int64, txHash [32]byte, contract [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	h := common.Hash(txHash)
	a := common.Address(contract)
	r.RelayTxHash = &h
	r.ContractAddress = &a
	r.Status = types.StatusRelayed
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateWitnessgenDuration(_ context.Context, id int64, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.WitnessgenDuration = d
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateProveDuration(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	if r.ProofRequestTime != nil {
		r.ProveDuration = time.Since(*r.ProofRequestTime)
	}
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateL1HeadBlockNumber(_ context.Context, id int64, l1BlockNumber int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.L1HeadBlockNumber = &l1BlockNumber
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) UpdateExecutionStats(_ context.Context, id int64, stats types.ExecutionStatistics, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return err
	}
	r.ExecutionStatistics = &stats
	r.ExecutionDuration = d
	r.UpdatedAt = time.Now()
	return s.persist(r)
}

func (s *LevelStore) GetRequest(_ context.Context, id int64) (*types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.mustGetLocked(id)
	if err != nil {
		return nil, err
	}
	clone := *r
	return &clone, nil
}

func (s *LevelStore) matches(r *types.Request, commitment types.CommitmentConfig, chain types.ChainPair) bool {
	return r.ChainPair == chain && r.Commitment.Equal(commitment)
}

func (s *LevelStore) filtered(commitment types.CommitmentConfig, chain types.ChainPair, pred func(*types.Request) bool) []*types.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Request
	for _, r := range s.requests {
		if s.matches(r, commitment, chain) && pred(r) {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartBlock < out[j].StartBlock })
	return out
}

func hasStatus(status types.RequestStatus, statuses []types.RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *LevelStore) RangesAfterBlock(_ context.Context, statuses []types.RequestStatus, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeRange && hasStatus(r.Status, statuses) && r.StartBlock >= latestContractL2Block
	})
	out := make([][2]int64, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, [2]int64{r.StartBlock, r.EndBlock})
	}
	return out, nil
}

func (s *LevelStore) CompletedRangesAfterBlock(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error) {
	return s.RangesAfterBlock(ctx, []types.RequestStatus{types.StatusComplete}, latestContractL2Block, commitment, chain)
}

func (s *LevelStore) HighestEndBlockForRangeRequest(_ context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (*int64, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeRange && hasStatus(r.Status, statuses)
	})
	var max *int64
	for _, r := range reqs {
		if max == nil || r.EndBlock > *max {
			end := r.EndBlock
			max = &end
		}
	}
	return max, nil
}

func (s *LevelStore) FirstUnrequestedRangeProofAfter(_ context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeRange && r.Status == types.StatusUnrequested && r.StartBlock >= latestContractL2Block
	})
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

func (s *LevelStore) UnrequestedAggProofAfter(_ context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeAggregation && r.Status == types.StatusUnrequested && r.StartBlock >= latestContractL2Block
	})
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

func (s *LevelStore) CompletedAggProofAfter(_ context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeAggregation && r.Status == types.StatusComplete && r.StartBlock >= latestContractL2Block
	})
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

func (s *LevelStore) ConsecutiveCompleteRangeProofs(_ context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error) {
	return s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeRange && r.Status == types.StatusComplete && r.StartBlock >= start && r.EndBlock <= end
	}), nil
}

func (s *LevelStore) FailedRequestCountByBlockRange(_ context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Status == types.StatusFailed && r.StartBlock == start && r.EndBlock == end
	})
	return int64(len(reqs)), nil
}

func (s *LevelStore) ActiveAggProofsCount(_ context.Context, startBlock int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeAggregation && r.StartBlock == startBlock && hasStatus(r.Status, types.NonTerminalStatuses)
	})
	return int64(len(reqs)), nil
}

func (s *LevelStore) FailedAggRequestWithCheckpointedBlockHash(_ context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool {
		return r.Type == types.RequestTypeAggregation && r.Status == types.StatusFailed &&
			r.StartBlock == start && r.EndBlock == end && r.CheckpointedL1BlockHash != nil
	})
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[len(reqs)-1], nil
}

func (s *LevelStore) RequestCount(_ context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	reqs := s.filtered(commitment, chain, func(r *types.Request) bool { return r.Status == status })
	return int64(len(reqs)), nil
}

func (s *LevelStore) RequestsByStatus(_ context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error) {
	return s.filtered(commitment, chain, func(r *types.Request) bool { return r.Status == status }), nil
}

func (s *LevelStore) CancelRequestsIn(_ context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if s.matches(r, commitment, chain) && hasStatus(r.Status, statuses) {
			r.Status = types.StatusCancelled
			r.UpdatedAt = time.Now()
			if err := s.persist(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LevelStore) DeleteRequestsIn(_ context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.requests {
		if s.matches(r, commitment, chain) && hasStatus(r.Status, statuses) {
			delete(s.requests, id)
			if err := s.db.Delete(requestKey(id), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LevelStore) CancelProveRequestsWithDifferentFingerprint(_ context.Context, current types.CommitmentConfig, chain types.ChainPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ChainPair == chain && r.Status == types.StatusProve && !r.Commitment.Equal(current) {
			r.Status = types.StatusCancelled
			r.UpdatedAt = time.Now()
			if err := s.persist(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LevelStore) AddChainLock(_ context.Context, chain types.ChainPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[chain] = types.ChainLock{ChainPair: chain, UpdatedAt: time.Now()}
	return nil
}

func (s *LevelStore) IsChainLocked(_ context.Context, chain types.ChainPair, interval time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chain]
	if !ok {
		return false, nil
	}
	return lock.IsFresh(interval, time.Now()), nil
}

func (s *LevelStore) UpdateChainLock(_ context.Context, chain types.ChainPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chain]
	if !ok {
		lock = types.ChainLock{ChainPair: chain}
	}
	lock.UpdatedAt = time.Now()
	s.locks[chain] = lock
	return nil
}

var _ Store = (*LevelStore)(nil)
