// Package shard implements the partition a compute node serves: the chunks
// of objects it stores plus the bookkeeping in-storage functions rely on.
// See doc.go for complete package documentation.
package shard

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"

	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/storage"
)

// ShardState represents the current state of a node's partition
type ShardState string

const (
	// ShardStateActive indicates the partition serves reads and computations
	ShardStateActive ShardState = "active"

	// ShardStateDraining indicates the partition accepts no new chunks;
	// computations over stored chunks still run
	ShardStateDraining ShardState = "draining"
)

// Shard is the set of object chunks held by one compute service.
//
// Every object a node takes part in contributes exactly one contiguous
// chunk, addressed by the object id. Functions read it through
// ReadExtents, which satisfies isc.ExtentReader.
type Shard struct {
	ServiceID string        // Owning compute service
	Store     storage.Store // Chunk storage backend
	State     ShardState    // Current partition state
	Stats     *ShardStats   // Operation statistics
	mu        sync.RWMutex  // Protects state changes
}

// ShardStats contains statistics about partition operations
type ShardStats struct {
	Ops     OperationStats     // Operation counts
	Storage storage.StoreStats // Storage statistics
}

// OperationStats tracks counts of operations performed on the partition
type OperationStats struct {
	Reads   uint64 `json:"reads"`   // Extent reads issued by functions
	Writes  uint64 `json:"writes"`  // Chunks stored
	Deletes uint64 `json:"deletes"` // Chunks removed
	Execs   uint64 `json:"execs"`   // Function invocations
}

// ShardInfo contains summary information about the partition
type ShardInfo struct {
	ServiceID string     `json:"service_id"`
	State     ShardState `json:"state"`
	Objects   []string   `json:"objects"`
	ByteSize  int        `json:"bytes"`
}

// NewShard creates an active, empty partition for a service.
func NewShard(serviceID string) *Shard {
	return &Shard{
		ServiceID: serviceID,
		Store:     storage.NewMemoryStore(),
		State:     ShardStateActive,
		Stats:     &ShardStats{},
	}
}

// Put stores the chunk of object held by this service.
func (s *Shard) Put(object string, chunk []byte) error {
	s.mu.RLock()
	state := s.State
	s.mu.RUnlock()
	if state != ShardStateActive {
		return errors.E(errors.Unavailable, fmt.Sprintf("shard %s is %s", s.ServiceID, state))
	}
	atomic.AddUint64(&s.Stats.Ops.Writes, 1)
	return s.Store.Put(object, chunk)
}

// Delete removes the chunk of object.
func (s *Shard) Delete(object string) error {
	atomic.AddUint64(&s.Stats.Ops.Deletes, 1)
	return s.Store.Delete(object)
}

// ReadExtents returns the concatenation of exts within the chunk of object.
// Extents must be in ascending, non-overlapping order; anything else is a
// malformed index vector.
func (s *Shard) ReadExtents(object string, exts []isc.Extent) ([]byte, error) {
	atomic.AddUint64(&s.Stats.Ops.Reads, 1)
	var (
		out  []byte
		prev uint64
	)
	for i, e := range exts {
		if e.End() < e.Offset {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("extent %d overflows", i))
		}
		if i > 0 && e.Offset < prev {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("extent %d at %d precedes end of extent %d at %d", i, e.Offset, i-1, prev))
		}
		b, err := s.Store.ReadAt(object, e.Offset, e.Length)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		prev = e.End()
	}
	return out, nil
}

// CountExec records one function invocation against the partition.
func (s *Shard) CountExec() {
	atomic.AddUint64(&s.Stats.Ops.Execs, 1)
}

// Objects returns the ids of stored objects in sorted order.
func (s *Shard) Objects() []string {
	objects := s.Store.List()
	sort.Strings(objects)
	return objects
}

// GetStats returns a consistent snapshot of the statistics.
func (s *Shard) GetStats() ShardStats {
	return ShardStats{
		Ops: OperationStats{
			Reads:   atomic.LoadUint64(&s.Stats.Ops.Reads),
			Writes:  atomic.LoadUint64(&s.Stats.Ops.Writes),
			Deletes: atomic.LoadUint64(&s.Stats.Ops.Deletes),
			Execs:   atomic.LoadUint64(&s.Stats.Ops.Execs),
		},
		Storage: s.Store.Stats(),
	}
}

// Info returns summary information about the partition
func (s *Shard) Info() ShardInfo {
	s.mu.RLock()
	state := s.State
	s.mu.RUnlock()

	return ShardInfo{
		ServiceID: s.ServiceID,
		State:     state,
		Objects:   s.Objects(),
		ByteSize:  s.Store.Stats().Bytes,
	}
}

// SetState updates the partition's state
func (s *Shard) SetState(state ShardState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
}
