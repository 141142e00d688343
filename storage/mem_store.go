package storage

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store, the direct generalization of the
// teacher's MemDB (storage/db.go) from a single KV blob to the spec's five
// logical object stores. Useful for tests and for light clients that never
// persist across restarts.
type MemStore struct {
	mu            sync.RWMutex
	blocks        map[uint64][]byte
	headers       map[uint64][]byte
	checkpoints   map[uint64][]byte
	keys          map[string][]byte
	metadata      map[string][]byte
	schemaVersion int
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks:      make(map[uint64][]byte),
		headers:     make(map[uint64][]byte),
		checkpoints: make(map[uint64][]byte),
		keys:        make(map[string][]byte),
		metadata:    make(map[string][]byte),
	}
}

func (m *MemStore) PutBlock(_ context.Context, index uint64, blockJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), blockJSON...)
	m.blocks[index] = cp
	return nil
}

func (m *MemStore) GetBlock(_ context.Context, index uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.blocks[index]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) PutBlocks(ctx context.Context, records []IndexedRecord) error {
	for _, r := range records {
		if err := m.PutBlock(ctx, r.Index, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) DeleteBlocksBefore(_ context.Context, index uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.blocks {
		if idx < index {
			delete(m.blocks, idx)
		}
	}
	return nil
}

func (m *MemStore) HighestBlockIndex(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := false
	var highest uint64
	for idx := range m.blocks {
		if !found || idx > highest {
			highest = idx
			found = true
		}
	}
	return highest, found, nil
}

func (m *MemStore) PutHeader(_ context.Context, index uint64, headerJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[index] = append([]byte(nil), headerJSON...)
	return nil
}

func (m *MemStore) GetHeader(_ context.Context, index uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.headers[index]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) PutHeaders(ctx context.Context, records []IndexedRecord) error {
	for _, r := range records {
		if err := m.PutHeader(ctx, r.Index, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) PutCheckpoint(_ context.Context, index uint64, checkpointJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[index] = append([]byte(nil), checkpointJSON...)
	return nil
}

func (m *MemStore) GetCheckpoint(_ context.Context, index uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.checkpoints[index]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) LatestCheckpoint(_ context.Context) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := false
	var highest uint64
	for idx := range m.checkpoints {
		if !found || idx > highest {
			highest = idx
			found = true
		}
	}
	if !found {
		return nil, false, nil
	}
	return append([]byte(nil), m.checkpoints[highest]...), true, nil
}

func (m *MemStore) PutKey(_ context.Context, nodeID string, wrappedKeyJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[nodeID] = append([]byte(nil), wrappedKeyJSON...)
	return nil
}

func (m *MemStore) GetKey(_ context.Context, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.keys[nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) PutMetadata(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) GetMetadata(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.metadata[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) PutMetadataBatch(ctx context.Context, items []KeyValue) error {
	for _, kv := range items {
		if err := m.PutMetadata(ctx, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) SchemaVersion(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schemaVersion, nil
}

func (m *MemStore) SetSchemaVersion(_ context.Context, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemaVersion = version
	return nil
}

func (m *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
