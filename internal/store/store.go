// Package store provides crash-safe persistence of the operator-mutated
// trading configuration using a JSON file.
//
// Writes use atomic file replacement (write to .tmp, then rename) to
// prevent corruption from partial writes or crashes mid-save. The trade
// gate calls SaveTradeConfig after every operator mutation, and
// LoadTradeConfig on startup to restore size/price-cap/kill-switch state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"spotarb/internal/types"
)

const configFileName = "trade_config.json"

// Store persists the trading configuration to a JSON file in a
// designated directory. All operations are mutex-protected to prevent
// concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SaveTradeConfig atomically persists the current trading
// configuration. It writes to a .tmp file first, then renames over the
// target so the file is never left in a partial state (crash-safe).
func (s *Store) SaveTradeConfig(cfg types.TradeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal trade config: %w", err)
	}

	path := filepath.Join(s.dir, configFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write trade config: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadTradeConfig restores the trading configuration from disk.
// Returns nil, nil if no saved configuration exists.
func (s *Store) LoadTradeConfig() (*types.TradeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trade config: %w", err)
	}

	var cfg types.TradeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal trade config: %w", err)
	}
	return &cfg, nil
}
