package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/snappy"
	"github.com/holiman/uint256"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tos-network/op-succinct-go/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ProofArchiveThresholdBytes is the size above which proof bytes are
// snappy-compressed and, if a blob archive is configured, pushed off-row
// instead of stored inline in the requests table.
const ProofArchiveThresholdBytes = 256 * 1024

// BlobArchiver is the minimal interface PGStore needs from an object-store
// client to push oversized proof bytes off-row. azureArchiver (archive.go)
// implements it over azblob; tests can supply an in-memory fake.
type BlobArchiver interface {
	Put(ctx context.Context, key string, data []byte) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// PGStore is the production RequestStore backend: a Postgres table of
// requests plus an advisory chain_locks table, migrated on connect the
// way clef's dbutil applies its schema before first use.
type PGStore struct {
	db       *sql.DB
	archiver BlobArchiver
}

// OpenPGStore opens dsn (a postgres:// URL) via pgx's database/sql driver
// and applies any migration not yet recorded in schema_migrations.
func OpenPGStore(ctx context.Context, dsn string, archiver BlobArchiver) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PGStore{db: db, archiver: archiver}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		var applied int
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE name = $1`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func nullHash(h *common.Hash) []byte {
	if h == nil {
		return nil
	}
	b := h.Bytes()
	return b
}

func nullAddr(a *common.Address) []byte {
	if a == nil {
		return nil
	}
	b := a.Bytes()
	return b
}

// nullU256 renders a wei amount as a decimal string for a NUMERIC column.
func nullU256(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

func (s *PGStore) InsertRequest(ctx context.Context, req *types.Request) error {
	return s.insert(ctx, s.db, req)
}

func (s *PGStore) insert(ctx context.Context, q querier, req *types.Request) error {
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	row := q.QueryRowContext(ctx, `
		INSERT INTO requests (
			type, mode, status, start_block, end_block, l1_chain_id, l2_chain_id,
			range_vkey_commitment, agg_vkey_hash, rollup_config_hash,
			checkpointed_l1_block_hash, checkpointed_l1_block_number, prover_address,
			total_nb_transactions, total_eth_gas_used, total_l1_fees, total_tx_fees,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`,
		req.Type, req.Mode, req.Status, req.StartBlock, req.EndBlock, req.L1ChainID, req.L2ChainID,
		nullHash(&req.Commitment.RangeVkeyCommitment), nullHash(&req.Commitment.AggVkeyHash), nullHash(&req.Commitment.RollupConfigHash),
		nullHash(req.CheckpointedL1BlockHash), req.CheckpointedL1BlockNumber, nullAddr(req.ProverAddress),
		req.TotalNbTransactions, req.TotalEthGasUsed, nullU256(req.TotalL1Fees), nullU256(req.TotalTxFees),
		req.CreatedAt, req.UpdatedAt,
	)
	return row.Scan(&req.ID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InsertRequests inserts the batch in one transaction; if that fails it
// falls back to inserting rows one at a time, skipping unique-key
// conflicts, so a partially-persisted batch from a crashed process does
// not wedge the gap pass.
func (s *PGStore) InsertRequests(ctx context.Context, reqs []*types.Request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	batchErr := func() error {
		for _, r := range reqs {
			if err := s.insert(ctx, tx, r); err != nil {
				return fmt.Errorf("batch insert request (%d,%d): %w", r.StartBlock, r.EndBlock, err)
			}
		}
		return nil
	}()
	if batchErr == nil {
		return tx.Commit()
	}
	tx.Rollback()

	for _, r := range reqs {
		if err := s.insert(ctx, s.db, r); err != nil {
			if strings.Contains(err.Error(), "duplicate key") {
				continue
			}
			return fmt.Errorf("fallback insert request (%d,%d): %w", r.StartBlock, r.EndBlock, err)
		}
	}
	return nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id int64, status types.RequestStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE requests SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (s *PGStore) UpdateToProve(ctx context.Context, id int64, proofRequestID [32]byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET proof_request_id = $1, status = $2, proof_request_time = now(), updated_at = now()
		WHERE id = $3`, proofRequestID[:], types.StatusProve, id)
	return err
}

func (s *PGStore) UpdateToComplete(ctx context.Context, id int64, proof []byte) error {
	stored := proof
	if len(proof) > ProofArchiveThresholdBytes {
		compressed := snappy.Encode(nil, proof)
		if s.archiver != nil {
			uri, err := s.archiver.Put(ctx, fmt.Sprintf("proofs/%d", id), compressed)
			if err != nil {
				return fmt.Errorf("archive proof for request %d: %w", id, err)
			}
			_, err = s.db.ExecContext(ctx, `
				UPDATE requests SET proof = NULL, proof_archive_uri = $1, status = $2, updated_at = now()
				WHERE id = $3`, uri, types.StatusComplete, id)
			return err
		}
		stored = compressed
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET proof = $1, status = $2, updated_at = now() WHERE id = $3`,
		stored, types.StatusComplete, id)
	return err
}

func (s *PGStore) UpdateToRelayed(ctx context.Context, id int64, txHash [32]byte, contract [20]byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET relay_tx_hash = $1, contract_address = $2, status = $3, updated_at = now()
		WHERE id = $4`, txHash[:], contract[:], types.StatusRelayed, id)
	return err
}

func (s *PGStore) UpdateWitnessgenDuration(ctx context.Context, id int64, d time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE requests SET witnessgen_duration_ms = $1, updated_at = now() WHERE id = $2`, d.Milliseconds(), id)
	return err
}

func (s *PGStore) UpdateProveDuration(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET prove_duration_ms = EXTRACT(EPOCH FROM (now() - proof_request_time)) * 1000, updated_at = now()
		WHERE id = $1 AND proof_request_time IS NOT NULL`, id)
	return err
}

func (s *PGStore) UpdateL1HeadBlockNumber(ctx context.Context, id int64, l1BlockNumber int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE requests SET l1_head_block_number = $1, updated_at = now() WHERE id = $2`, l1BlockNumber, id)
	return err
}

func (s *PGStore) UpdateExecutionStats(ctx context.Context, id int64, stats types.ExecutionStatistics, d time.Duration) error {
	encoded, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE requests SET execution_statistics = $1, execution_duration_ms = $2, updated_at = now()
		WHERE id = $3`, encoded, d.Milliseconds(), id)
	return err
}

const selectColumns = `
	id, type, mode, status, start_block, end_block, l1_chain_id, l2_chain_id,
	range_vkey_commitment, agg_vkey_hash, rollup_config_hash,
	checkpointed_l1_block_hash, checkpointed_l1_block_number, prover_address,
	proof_request_id, proof, proof_archive_uri,
	total_nb_transactions, total_eth_gas_used, total_l1_fees, total_tx_fees,
	witnessgen_duration_ms, execution_duration_ms, prove_duration_ms,
	execution_statistics,
	l1_head_block_number, relay_tx_hash, contract_address,
	created_at, updated_at, proof_request_time`

func (s *PGStore) scanRequest(row interface{ Scan(dest ...any) error }) (*types.Request, error) {
	var r types.Request
	var rangeVkey, aggVkey, rollupHash []byte
	var checkpointedHash []byte
	var proverAddr []byte
	var proofReqID []byte
	var proofArchiveURI *string
	var l1Fees, txFees *string
	var relayTxHash, contractAddr []byte
	var witnessMs, execMs, proveMs *int64
	var execStats []byte

	if err := row.Scan(
		&r.ID, &r.Type, &r.Mode, &r.Status, &r.StartBlock, &r.EndBlock, &r.L1ChainID, &r.L2ChainID,
		&rangeVkey, &aggVkey, &rollupHash,
		&checkpointedHash, &r.CheckpointedL1BlockNumber, &proverAddr,
		&proofReqID, &r.Proof, &proofArchiveURI,
		&r.TotalNbTransactions, &r.TotalEthGasUsed, &l1Fees, &txFees,
		&witnessMs, &execMs, &proveMs,
		&execStats,
		&r.L1HeadBlockNumber, &relayTxHash, &contractAddr,
		&r.CreatedAt, &r.UpdatedAt, &r.ProofRequestTime,
	); err != nil {
		return nil, err
	}

	r.Commitment = types.CommitmentConfig{
		RangeVkeyCommitment: common.BytesToHash(rangeVkey),
		AggVkeyHash:         common.BytesToHash(aggVkey),
		RollupConfigHash:    common.BytesToHash(rollupHash),
	}
	if checkpointedHash != nil {
		h := common.BytesToHash(checkpointedHash)
		r.CheckpointedL1BlockHash = &h
	}
	if proverAddr != nil {
		a := common.BytesToAddress(proverAddr)
		r.ProverAddress = &a
	}
	if l1Fees != nil {
		if v, err := uint256.FromDecimal(*l1Fees); err == nil {
			r.TotalL1Fees = v
		}
	}
	if txFees != nil {
		if v, err := uint256.FromDecimal(*txFees); err == nil {
			r.TotalTxFees = v
		}
	}
	if execStats != nil {
		var stats types.ExecutionStatistics
		if err := json.Unmarshal(execStats, &stats); err == nil {
			r.ExecutionStatistics = &stats
		}
	}
	if proofReqID != nil {
		var id [32]byte
		copy(id[:], proofReqID)
		r.ProofRequestID = &id
	}
	if relayTxHash != nil {
		h := common.BytesToHash(relayTxHash)
		r.RelayTxHash = &h
	}
	if contractAddr != nil {
		a := common.BytesToAddress(contractAddr)
		r.ContractAddress = &a
	}
	if witnessMs != nil {
		r.WitnessgenDuration = time.Duration(*witnessMs) * time.Millisecond
	}
	if execMs != nil {
		r.ExecutionDuration = time.Duration(*execMs) * time.Millisecond
	}
	if proveMs != nil {
		r.ProveDuration = time.Duration(*proveMs) * time.Millisecond
	}
	if proofArchiveURI != nil && s.archiver != nil {
		data, err := s.archiver.Get(context.Background(), *proofArchiveURI)
		if err == nil {
			if decoded, decErr := snappy.Decode(nil, data); decErr == nil {
				r.Proof = decoded
			}
		}
	}
	return &r, nil
}

func (s *PGStore) GetRequest(ctx context.Context, id int64) (*types.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM requests WHERE id = $1`, id)
	return s.scanRequest(row)
}

func statusInClause(statuses []types.RequestStatus, argOffset int) (string, []any) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", argOffset+i)
		args[i] = st
	}
	return strings.Join(placeholders, ","), args
}

func (s *PGStore) RangesAfterBlock(ctx context.Context, statuses []types.RequestStatus, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error) {
	inClause, statusArgs := statusInClause(statuses, 5)
	args := append([]any{chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes(), latestContractL2Block}, statusArgs...)
	query := fmt.Sprintf(`
		SELECT start_block, end_block FROM requests
		WHERE type = 'range' AND l1_chain_id = $1 AND l2_chain_id = $2
		  AND range_vkey_commitment = $3 AND start_block >= $4
		  AND status IN (%s)
		ORDER BY start_block`, inClause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]int64
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		out = append(out, [2]int64{start, end})
	}
	return out, rows.Err()
}

func (s *PGStore) CompletedRangesAfterBlock(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) ([][2]int64, error) {
	return s.RangesAfterBlock(ctx, []types.RequestStatus{types.StatusComplete}, latestContractL2Block, commitment, chain)
}

func (s *PGStore) HighestEndBlockForRangeRequest(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (*int64, error) {
	inClause, statusArgs := statusInClause(statuses, 4)
	args := append([]any{chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes()}, statusArgs...)
	query := fmt.Sprintf(`
		SELECT max(end_block) FROM requests
		WHERE type = 'range' AND l1_chain_id = $1 AND l2_chain_id = $2 AND range_vkey_commitment = $3
		  AND status IN (%s)`, inClause)
	var max *int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return nil, err
	}
	return max, nil
}

func (s *PGStore) singleRequestQuery(ctx context.Context, query string, args ...any) (*types.Request, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	r, err := s.scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *PGStore) FirstUnrequestedRangeProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	return s.singleRequestQuery(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE type = 'range' AND status = 'unrequested' AND start_block >= $1
		  AND l1_chain_id = $2 AND l2_chain_id = $3 AND range_vkey_commitment = $4
		ORDER BY start_block LIMIT 1`,
		latestContractL2Block, chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes())
}

func (s *PGStore) UnrequestedAggProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	return s.singleRequestQuery(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE type = 'aggregation' AND status = 'unrequested' AND start_block >= $1
		  AND l1_chain_id = $2 AND l2_chain_id = $3 AND agg_vkey_hash = $4
		ORDER BY start_block LIMIT 1`,
		latestContractL2Block, chain.L1ChainID, chain.L2ChainID, commitment.AggVkeyHash.Bytes())
}

func (s *PGStore) CompletedAggProofAfter(ctx context.Context, latestContractL2Block int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	return s.singleRequestQuery(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE type = 'aggregation' AND status = 'complete' AND start_block >= $1
		  AND l1_chain_id = $2 AND l2_chain_id = $3 AND agg_vkey_hash = $4
		ORDER BY start_block LIMIT 1`,
		latestContractL2Block, chain.L1ChainID, chain.L2ChainID, commitment.AggVkeyHash.Bytes())
}

func (s *PGStore) ConsecutiveCompleteRangeProofs(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE type = 'range' AND status = 'complete' AND start_block >= $1 AND end_block <= $2
		  AND l1_chain_id = $3 AND l2_chain_id = $4 AND range_vkey_commitment = $5
		ORDER BY start_block`,
		start, end, chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Request
	for rows.Next() {
		r, err := s.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) FailedRequestCountByBlockRange(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM requests
		WHERE status = 'failed' AND start_block = $1 AND end_block = $2
		  AND l1_chain_id = $3 AND l2_chain_id = $4 AND range_vkey_commitment = $5`,
		start, end, chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes()).Scan(&count)
	return count, err
}

func (s *PGStore) ActiveAggProofsCount(ctx context.Context, startBlock int64, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	inClause, statusArgs := statusInClause(types.NonTerminalStatuses, 5)
	args := append([]any{startBlock, chain.L1ChainID, chain.L2ChainID, commitment.AggVkeyHash.Bytes()}, statusArgs...)
	query := fmt.Sprintf(`
		SELECT count(*) FROM requests
		WHERE type = 'aggregation' AND start_block = $1
		  AND l1_chain_id = $2 AND l2_chain_id = $3 AND agg_vkey_hash = $4
		  AND status IN (%s)`, inClause)
	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *PGStore) FailedAggRequestWithCheckpointedBlockHash(ctx context.Context, start, end int64, commitment types.CommitmentConfig, chain types.ChainPair) (*types.Request, error) {
	return s.singleRequestQuery(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE type = 'aggregation' AND status = 'failed' AND start_block = $1 AND end_block = $2
		  AND l1_chain_id = $3 AND l2_chain_id = $4 AND agg_vkey_hash = $5
		  AND checkpointed_l1_block_hash IS NOT NULL
		ORDER BY updated_at DESC LIMIT 1`,
		start, end, chain.L1ChainID, chain.L2ChainID, commitment.AggVkeyHash.Bytes())
}

func (s *PGStore) RequestCount(ctx context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM requests
		WHERE status = $1 AND l1_chain_id = $2 AND l2_chain_id = $3
		  AND range_vkey_commitment = $4 AND agg_vkey_hash = $5 AND rollup_config_hash = $6`,
		status, chain.L1ChainID, chain.L2ChainID,
		commitment.RangeVkeyCommitment.Bytes(), commitment.AggVkeyHash.Bytes(), commitment.RollupConfigHash.Bytes()).Scan(&count)
	return count, err
}

func (s *PGStore) RequestsByStatus(ctx context.Context, status types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) ([]*types.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM requests
		WHERE status = $1 AND l1_chain_id = $2 AND l2_chain_id = $3
		  AND range_vkey_commitment = $4 AND agg_vkey_hash = $5 AND rollup_config_hash = $6
		ORDER BY start_block`,
		status, chain.L1ChainID, chain.L2ChainID,
		commitment.RangeVkeyCommitment.Bytes(), commitment.AggVkeyHash.Bytes(), commitment.RollupConfigHash.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Request
	for rows.Next() {
		r, err := s.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) CancelRequestsIn(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error {
	inClause, statusArgs := statusInClause(statuses, 5)
	args := append([]any{types.StatusCancelled, chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes()}, statusArgs...)
	query := fmt.Sprintf(`
		UPDATE requests SET status = $1, updated_at = now()
		WHERE l1_chain_id = $2 AND l2_chain_id = $3 AND range_vkey_commitment = $4
		  AND status IN (%s)`, inClause)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PGStore) DeleteRequestsIn(ctx context.Context, statuses []types.RequestStatus, commitment types.CommitmentConfig, chain types.ChainPair) error {
	inClause, statusArgs := statusInClause(statuses, 4)
	args := append([]any{chain.L1ChainID, chain.L2ChainID, commitment.RangeVkeyCommitment.Bytes()}, statusArgs...)
	query := fmt.Sprintf(`
		DELETE FROM requests
		WHERE l1_chain_id = $1 AND l2_chain_id = $2 AND range_vkey_commitment = $3
		  AND status IN (%s)`, inClause)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PGStore) CancelProveRequestsWithDifferentFingerprint(ctx context.Context, current types.CommitmentConfig, chain types.ChainPair) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = $1, updated_at = now()
		WHERE l1_chain_id = $2 AND l2_chain_id = $3 AND status = 'prove'
		  AND (range_vkey_commitment != $4 OR agg_vkey_hash != $5 OR rollup_config_hash != $6)`,
		types.StatusCancelled, chain.L1ChainID, chain.L2ChainID,
		current.RangeVkeyCommitment.Bytes(), current.AggVkeyHash.Bytes(), current.RollupConfigHash.Bytes())
	return err
}

func (s *PGStore) AddChainLock(ctx context.Context, chain types.ChainPair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_locks (l1_chain_id, l2_chain_id, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (l1_chain_id, l2_chain_id) DO UPDATE SET updated_at = now()`,
		chain.L1ChainID, chain.L2ChainID)
	return err
}

func (s *PGStore) IsChainLocked(ctx context.Context, chain types.ChainPair, interval time.Duration) (bool, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT updated_at FROM chain_locks WHERE l1_chain_id = $1 AND l2_chain_id = $2`,
		chain.L1ChainID, chain.L2ChainID).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	lock := types.ChainLock{ChainPair: chain, UpdatedAt: updatedAt}
	return lock.IsFresh(interval, time.Now()), nil
}

func (s *PGStore) UpdateChainLock(ctx context.Context, chain types.ChainPair) error {
	return s.AddChainLock(ctx, chain)
}

var _ Store = (*PGStore)(nil)
