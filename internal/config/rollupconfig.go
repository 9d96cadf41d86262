package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rjeczalik/notify"
)

// RollupConfigSource is the L2 consensus node RPC method that exposes the
// chain-genesis-and-parameters blob (spec §4.1).
type RollupConfigSource interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// RollupConfigStore fetches a chain's rollup config once, persists it to
// configs/{l2_chain_id}.json, and serves a canonically-hashed fingerprint
// component. A background watch invalidates the in-memory copy if the
// operator edits the file on disk.
type RollupConfigStore struct {
	dir string

	mu     sync.RWMutex
	byChain map[int64]json.RawMessage
}

// NewRollupConfigStore creates a store rooted at dir (created if missing)
// and starts the filesystem watch.
func NewRollupConfigStore(dir string) (*RollupConfigStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir %s: %w", dir, err)
	}
	s := &RollupConfigStore{dir: dir, byChain: make(map[int64]json.RawMessage)}
	if err := s.watch(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RollupConfigStore) path(l2ChainID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", l2ChainID))
}

// FetchAndPersist calls optimism_rollupConfig once, pretty-prints the
// result to disk, and returns it alongside its canonical hash.
func (s *RollupConfigStore) FetchAndPersist(ctx context.Context, client RollupConfigSource, l2ChainID int64) (json.RawMessage, common.Hash, error) {
	var raw json.RawMessage
	if err := client.CallContext(ctx, &raw, "optimism_rollupConfig"); err != nil {
		return nil, common.Hash{}, fmt.Errorf("fetch optimism_rollupConfig: %w", err)
	}
	canonical, hash, err := canonicalizeAndHash(raw)
	if err != nil {
		return nil, common.Hash{}, err
	}
	pretty, err := json.MarshalIndent(json.RawMessage(canonical), "", "  ")
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pretty-print rollup config: %w", err)
	}
	if err := os.WriteFile(s.path(l2ChainID), pretty, 0o644); err != nil {
		return nil, common.Hash{}, fmt.Errorf("persist rollup config: %w", err)
	}
	s.mu.Lock()
	s.byChain[l2ChainID] = raw
	s.mu.Unlock()
	return raw, hash, nil
}

// Load reads a previously persisted config from disk without touching the
// network, hashing it the same canonical way.
func (s *RollupConfigStore) Load(l2ChainID int64) (json.RawMessage, common.Hash, error) {
	s.mu.RLock()
	if raw, ok := s.byChain[l2ChainID]; ok {
		s.mu.RUnlock()
		_, hash, err := canonicalizeAndHash(raw)
		return raw, hash, err
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path(l2ChainID))
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("read persisted rollup config: %w", err)
	}
	_, hash, err := canonicalizeAndHash(data)
	if err != nil {
		return nil, common.Hash{}, err
	}
	s.mu.Lock()
	s.byChain[l2ChainID] = data
	s.mu.Unlock()
	return data, hash, nil
}

// canonicalizeAndHash re-marshals raw with sorted keys (json.Marshal of a
// map already does this) so the hash is insensitive to field ordering in
// the source document, then keccak256-hashes the canonical bytes.
func canonicalizeAndHash(raw json.RawMessage) (json.RawMessage, common.Hash, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, common.Hash{}, fmt.Errorf("unmarshal rollup config: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("canonicalize rollup config: %w", err)
	}
	return canonical, crypto.Keccak256Hash(canonical), nil
}

// watch invalidates the in-memory cache for a chain whenever its on-disk
// file changes, so an operator hand-editing configs/{chain}.json is picked
// up without a restart.
func (s *RollupConfigStore) watch() error {
	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(filepath.Join(s.dir, "..."), events, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	go func() {
		for ev := range events {
			var chainID int64
			name := filepath.Base(ev.Path())
			if _, err := fmt.Sscanf(name, "%d.json", &chainID); err != nil {
				continue
			}
			s.mu.Lock()
			delete(s.byChain, chainID)
			s.mu.Unlock()
			log.Debug("invalidated cached rollup config", "l2_chain_id", chainID, "path", ev.Path())
		}
	}()
	return nil
}
