// Package shard implements the partition held by a single compute node.
//
// # Overview
//
// An object is spread over the compute services as contiguous chunks, one
// chunk per service (see internal/layout). The node keeps its chunks in a
// Shard, which wraps a storage.Store with:
//   - operation counters (reads, writes, deletes, function executions)
//   - a state: active partitions accept new chunks, draining ones only
//     serve computations over what they already hold
//   - ReadExtents, the bounds-checked access path used by in-storage
//     functions
//
// # Index vectors
//
// A reduction request names the part of a chunk it covers as an index
// vector of local extents. ReadExtents enforces that the vector is ordered
// and that every extent lies inside the chunk, returning errors.Invalid for
// a malformed vector and errors.NotExist for an unknown object. The
// extents are concatenated, so a function sees one contiguous run of text.
//
// # Thread Safety
//
// Counters are updated atomically and state changes are guarded by a
// mutex; the store provides its own locking. A Shard may be shared by all
// request handlers of a node.
package shard
