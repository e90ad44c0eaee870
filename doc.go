// Package redisring implements the topology and command-routing core
// of a redis cluster client: it tracks which node owns which hash
// slots, maps keys to slots, and dispatches units of work to one node,
// a subset of nodes, or every node in the cluster, running multi-node
// dispatches concurrently and aggregating per-node failures.
//
// # Topology
//
// A Topology is an immutable, point-in-time snapshot of cluster
// membership and slot ownership. Snapshots answer the lookup queries
// used for routing: the active master serving a key, the nodes serving
// a slot, or a node by address or ID. A failed lookup is a
// *RoutingError, never a nil result, because a stale topology is a
// normal runtime condition: the caller should obtain a fresh snapshot
// (typically through a Refresher) and retry.
//
// # Executor
//
// The Executor runs units of work, opaque functions given a connection
// to one node, against a resolved target: an explicit node
// (ExecuteOn), the master owning a key (ExecuteForKey), any active
// node (ExecuteOnAny), every active node (ExecuteOnAll), an explicit
// subset (ExecuteOnNodes), or each key's owning node with per-node
// grouping (ExecuteForEachKey). Multi-node dispatches fan out on a
// shared bounded worker pool; every unit runs to completion before the
// call returns, and failures are collected per node into an
// *AggregateError rather than cancelling the sibling units. The
// executor never retries and never follows cluster redirections;
// that policy belongs to the caller.
//
// # Cross-slot operations
//
// Multi-key commands are only natively routable when every key hashes
// to the same slot (SameSlot). For rename specifically, Renamer
// emulates the operation across slots as a serialize/restore/delete
// sequence; the emulation is inherently non-atomic and failures that
// may have left partial state are reported as *PartialRenameError.
//
// # Drivers
//
// The executor talks to nodes through the NodeDriver capability. The
// redigo-backed ConnSource provides drivers that either draw from a
// per-node redis.Pool (CreatePool) or dial per invocation. Per-call
// timeouts are the driver's concern, set through DialOptions; the
// executor adds no cross-node deadline, so one slow node extends a
// fan-out's barrier wait.
package redisring
