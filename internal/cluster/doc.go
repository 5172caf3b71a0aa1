// Package cluster holds the wire types and HTTP helpers shared by the
// coordinator, the compute nodes and the demo client.
//
// # Topology
//
//	            ┌──────────────┐
//	            │ Coordinator  │  service catalog, object layouts,
//	            └──────┬───────┘  health checks, broadcasts
//	    register │     │ next service / object layout
//	   ┌─────────┼─────┴───────┬──────────────┐
//	   ▼         ▼             ▼              ▼
//	┌──────┐  ┌──────┐      ┌──────┐     ┌─────────┐
//	│node 1│  │node 2│  ... │node n│ ◄── │ iscdemo │  exec requests
//	└──────┘  └──────┘      └──────┘     └─────────┘
//
// Nodes register with a category; the client only walks services of
// category CategoryISC. The walk is a cursor: NextService returns the first
// matching service registered after a given id, and the empty id starts
// over. Each walk re-reads the catalog, so services joining between walks
// are seen by the next one.
//
// # Transport
//
// All control traffic is JSON over HTTP with a shared client that times
// out after five seconds. Connection failures are wrapped as errors.Net;
// non-2xx answers are returned as *StatusError so callers can tell a
// missing resource (IsNotFound) from a failure. Object chunks are uploaded
// as raw bytes with PutChunk.
//
// In-storage function calls use ExecRequest/ExecResponse. A function
// failure on the node is reported inside a 200 answer with a non-zero
// Status, keeping transport failures and per-segment failures apart.
package cluster
