// Package storage holds the object chunks a compute node is responsible for.
//
// A node stores exactly one contiguous byte range ("chunk") of every object it
// takes part in, keyed by the object id. In-storage functions never see the
// store directly; they receive copies of the extents named in their request
// through ReadAt, which refuses any range that is not fully inside the chunk.
//
// # Implementations
//
// MemoryStore keeps chunks in a map guarded by a sync.RWMutex:
//   - Get and ReadAt return copies, so callers may mutate the result
//   - Put copies its input, so callers may reuse their buffer
//   - Delete is idempotent
//
// Nothing is persisted; a restarted node must be reloaded with
// `iscdemo load`.
package storage
