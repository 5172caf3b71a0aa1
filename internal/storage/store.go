package storage

import (
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
)

// ErrKeyNotFound is returned when no chunk is stored under an object key.
var ErrKeyNotFound = errors.E(errors.NotExist, "object not found")

// Store defines the interface for a node's local object chunk storage.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Get returns a copy of the whole chunk stored for key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(key string) ([]byte, error)

	// ReadAt returns a copy of n bytes starting at off within the chunk.
	// The range must lie entirely inside the stored chunk.
	ReadAt(key string, off, n uint64) ([]byte, error)

	// Put stores a chunk under key, replacing any previous chunk.
	Put(key string, value []byte) error

	// Delete removes a chunk. No error if key doesn't exist.
	Delete(key string) error

	// List returns all keys in the store. Order is not guaranteed.
	List() []string

	// Stats returns storage statistics.
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys  int // Number of stored object chunks
	Bytes int // Total size of all chunks in bytes
}

// MemoryStore implements Store with in-memory chunks.
type MemoryStore struct {
	mu   sync.RWMutex      // Protects concurrent access
	data map[string][]byte // Object key -> chunk bytes
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get retrieves a chunk by key.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// ReadAt copies a bounded range out of a stored chunk.
func (m *MemoryStore) ReadAt(key string, off, n uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}
	size := uint64(len(value))
	if off > size || n > size-off {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("range [%d, %d) outside chunk %s of %d bytes", off, off+n, key, size))
	}

	result := make([]byte, n)
	copy(result, value[off:off+n])
	return result, nil
}

// Put stores a chunk with the given key.
// Makes a copy of the value to prevent external modification
func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored

	return nil
}

// Delete removes a chunk (idempotent).
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// List returns all keys in the store
func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}

	return StoreStats{
		Keys:  len(m.data),
		Bytes: totalBytes,
	}
}
