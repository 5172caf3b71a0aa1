// Package compute runs in-storage compute operations over an object whose
// bytes are spread across the compute services of a cluster.
//
// # Overview
//
// The client never reads the object itself. It asks every service holding
// part of the requested range to run a function over its own bytes and
// combines the small replies. An invocation goes through four steps:
//
//  1. Discover walks the coordinator's catalog and returns the compute
//     services in catalog order.
//  2. layout.Build turns the object placements and the requested range into
//     a traversal plan: one read step per service segment.
//  3. Session.Launch sends one Request per read step, waits for all of them
//     and folds the replies into the operation's Merger.
//  4. The Merger reports the result once the last pass is merged.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                  Session                     │
//	├──────────────────────────────────────────────┤
//	│                                              │
//	│   Plan.Next ──► prepare ──► Transport.Send   │
//	│                                   │          │
//	│                                   ▼          │
//	│                            service replies   │
//	│                                   │          │
//	│                                   ▼          │
//	│   Merger ◄── drain (issue order) ◄── Gate    │
//	│                                              │
//	└──────────────────────────────────────────────┘
//
// # Core Components
//
// Operation: a named entry of the operation table (Lookup, Names)
//   - Remote function component
//   - Request input built from a segment
//   - Merger constructor
//
// Session: one invocation, possibly over several passes
//   - Issues requests in plan order and numbers them
//   - Waits on its Gate for every request it sent
//   - Merges in issuance order, never in completion order
//
// Gate: a completion counter
//   - Signal is called once per completed request, whatever its outcome
//   - Wait consumes one completion and honors the context
//   - Signals may arrive before the matching Wait
//
// ResultMerger: the min/max fold
//   - Keeps the extreme value and its absolute element index
//   - Reassembles elements cut by segment boundaries
//   - Tracks skipped segments
//
// PingMerger: prints the greeting of each service.
//
// # Request Protocol
//
// A pass of Session.Launch proceeds as follows:
//
//	for each step of the plan:
//	    notice step -> release it, it only confirms the previous read
//	    read step   -> build a Request, Transport.Send(req, gate)
//	for each request sent:
//	    gate.Wait(ctx)
//	for each request in issuance order:
//	    reply OK    -> Merger.Merge
//	    reply error -> Merger.Skip
//	    release the step
//	if this is the last pass:
//	    Merger.Finish
//
// The transport fills Request.Reply before it signals. A request whose
// reply is refused by the service (function error, reply larger than the
// reply cap, unreachable service) is skipped, not fatal.
//
// # Ordering
//
// Replies arrive in any order; services run concurrently and the Transport
// bounds how many requests are outstanding. Folding starts only after the
// whole pass has completed, and always walks the requests in the order
// they were issued, which is object order. The result is therefore the
// same whatever the completion order, and the same for any split of the
// range into passes.
//
// # Boundary Splicing
//
// The reductions scan whitespace separated numbers, but segment boundaries
// fall at arbitrary bytes. Each service reports, next to its local
// extreme, the text before its first separator (left fragment), the text
// after its last separator (right fragment) and its element count:
//
//	segment 1        segment 2        segment 3
//	[ 3\n7\n-1\n9 ]  [ 4\n12\n5 ]     [ 6\n8\n ]
//	        right="9"  left="4" ...
//	                   ▲
//	     "9" + "4" = "94" is one element
//
// The merger joins the open right fragment of one segment with the left
// fragment of the next and offers the spliced element at its absolute
// index. A segment that holds no separator at all is entirely inside one
// element; its text is appended to the open fragment. The left fragment of
// the first segment and the right fragment of the last are resolved on
// their own when the first reply is folded and when the result is taken.
//
// # Gaps and Partial Results
//
// Skipping a segment loses the elements it held and the element open at
// its boundary. Folding restarts after the gap, counting the element cut
// by the next segment's first separator as one position. The result is
// then reported followed by a "partial" line naming the number of skipped
// segments; indices after the first gap are approximate.
//
// # Error Handling
//
// Errors use github.com/grailbio/base/errors:
//   - errors.Invalid: unknown operation, bad input, no services found
//   - errors.Unavailable: closed transport, no service answered a ping
//   - errors.NotExist: no element of the range could be reduced
//   - errors.Integrity: a cycling catalog, or a plan that broke its step order
//   - errors.Fatal: a traversal that cannot go on
//
// A request that cannot be sent stops the pass; requests already sent are
// still waited for and released but not merged. If the context ends while
// a pass waits, the pass is abandoned: its steps are released and the
// session switches to a fresh Gate, so late completions of the abandoned
// requests do not count towards a later pass.
//
// # Loading
//
// PlanChunks computes the element ranges used when an array is loaded onto
// the services: one contiguous chunk per service, in service order, the
// last absorbing the remainder. ChunkLen refuses more services than
// elements.
package compute
