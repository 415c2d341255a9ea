package store

import (
	"sync"

	"github.com/eidolon-project/eidolon/internal/types"
)

// MemoryConfigStore is a process-local ScanConfigStore used when no
// EIDOLON_CONFIG_DATABASE_URL is configured. Configs do not survive a
// restart.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]types.ScanConfig
}

// NewMemoryConfigStore builds an empty MemoryConfigStore.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]types.ScanConfig)}
}

func (m *MemoryConfigStore) Get(userID string) (types.ScanConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[userID]
	return cfg, ok, nil
}

func (m *MemoryConfigStore) Put(userID string, cfg types.ScanConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[userID] = cfg
	return nil
}
