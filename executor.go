package redisring

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultConcurrency is the size of the executor's fan-out worker pool
// when Concurrency is not set. The pool is shared across calls; a
// fan-out to more nodes than workers queues the excess units.
const DefaultConcurrency = 32

// NodeResult pairs a node with the value its unit of work produced.
type NodeResult struct {
	Node  *ClusterNode
	Value interface{}
}

// Outcome is the aggregate of one multi-node dispatch. It is built only
// after every dispatched unit of work has completed or failed, never
// partially. Ordering of Results and Failures is unspecified; compare
// by node, not by position.
type Outcome struct {
	Results  []NodeResult
	Failures []*NodeError
}

// Err returns an *AggregateError carrying every per-node failure, or
// nil if every node succeeded.
func (o *Outcome) Err() error {
	if len(o.Failures) == 0 {
		return nil
	}
	return &AggregateError{Failures: o.Failures}
}

// Value returns the result produced by the given node, if any.
func (o *Outcome) Value(node *ClusterNode) (interface{}, bool) {
	for _, r := range o.Results {
		if r.Node.Equal(&node.Node) {
			return r.Value, true
		}
	}
	return nil, false
}

// KeyedUnitOfWork is a unit of work for the per-key dispatch variant.
// It receives the subset of the caller's keys owned by the connected
// node and must return exactly one value per key, in the same order.
type KeyedUnitOfWork func(conn redis.Conn, keys []string) ([]interface{}, error)

// Executor routes units of work to cluster nodes and runs multi-node
// dispatches concurrently. It resolves targets through the topology
// snapshot, collects per-node successes and failures independently, and
// never retries: a failed unit of work surfaces to the caller as-is.
//
// The zero value is not usable; Source and Snapshot must be set.
type Executor struct {
	// Source resolves nodes to their drivers.
	Source DriverSource

	// Snapshot returns the current topology snapshot. It is called once
	// per dispatch that needs routing; obtaining fresh snapshots is the
	// refresh layer's concern (see Refresher).
	Snapshot func() *Topology

	// Concurrency is the fan-out worker pool size. Zero means
	// DefaultConcurrency.
	Concurrency int

	// Logger, if set, receives debug output on dispatches and a warning
	// per failed node. Failures are always returned to the caller as
	// well, never only logged.
	Logger *zap.Logger

	initOnce sync.Once
	initErr  error
	pool     *ants.Pool
}

func (e *Executor) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e *Executor) workers() (*ants.Pool, error) {
	e.initOnce.Do(func() {
		size := e.Concurrency
		if size <= 0 {
			size = DefaultConcurrency
		}
		e.pool, e.initErr = ants.NewPool(size)
	})
	return e.pool, e.initErr
}

// Close releases the executor's worker pool. In-flight dispatches
// should be allowed to finish first.
func (e *Executor) Close() error {
	e.initOnce.Do(func() {}) // no pool is created after Close
	if e.pool != nil {
		e.pool.Release()
	}
	return nil
}

func (e *Executor) invokeOn(ctx context.Context, node *ClusterNode, work UnitOfWork) (interface{}, error) {
	d, err := e.Source.DriverFor(node)
	if err != nil {
		return nil, err
	}
	return d.Invoke(ctx, work)
}

// ExecuteOn runs the unit of work against the given node and blocks
// until it completes. A failure, whether a connectivity problem or a
// command-level error from the node, is returned as a *NodeError
// carrying the target node.
func (e *Executor) ExecuteOn(ctx context.Context, node *ClusterNode, work UnitOfWork) (interface{}, error) {
	v, err := e.invokeOn(ctx, node, work)
	if err != nil {
		e.log().Warn("node execution failed", zap.String("node", node.Addr()), zap.Error(err))
		return nil, &NodeError{Node: node, Cause: err}
	}
	return v, nil
}

// ExecuteForKey resolves the master owning the key's slot and runs the
// unit of work against it. Routing failures (stale or empty topology)
// surface as *RoutingError; execution failures as *NodeError.
func (e *Executor) ExecuteForKey(ctx context.Context, key string, work UnitOfWork) (interface{}, error) {
	node, err := e.Snapshot().KeyServingMasterNode(key)
	if err != nil {
		return nil, err
	}
	return e.ExecuteOn(ctx, node, work)
}

// a *rand.Rand is not safe for concurrent access
var rnd = struct {
	sync.Mutex
	*rand.Rand
}{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}

// ExecuteOnAny runs the unit of work once, against an arbitrary active
// node. Use it for node-independent reads (server time, etc.) where a
// cluster-wide fan-out would be wasted. The selection policy is
// unspecified beyond "any active node": nodes whose driver cannot be
// obtained are skipped, but once the work runs its failure is final,
// it is not re-run elsewhere.
func (e *Executor) ExecuteOnAny(ctx context.Context, work UnitOfWork) (interface{}, error) {
	nodes := e.Snapshot().ActiveNodes()

	rnd.Lock()
	perm := rnd.Perm(len(nodes))
	rnd.Unlock()

	for _, ix := range perm {
		node := nodes[ix]
		d, err := e.Source.DriverFor(node)
		if err != nil {
			e.log().Debug("skipping node without driver", zap.String("node", node.Addr()), zap.Error(err))
			continue
		}
		v, err := d.Invoke(ctx, work)
		if err != nil {
			return nil, &NodeError{Node: node, Cause: err}
		}
		return v, nil
	}
	return nil, &RoutingError{Reason: "no usable active node", Slot: -1}
}

// ExecuteOnAll runs the unit of work against every active node in the
// topology, concurrently, and blocks until all have completed. The
// Outcome holds every per-node result and failure; if any node failed
// the returned error is an *AggregateError over all failures. Callers
// that want masters only should pass the snapshot's ActiveMasterNodes
// to ExecuteOnNodes instead.
func (e *Executor) ExecuteOnAll(ctx context.Context, work UnitOfWork) (*Outcome, error) {
	return e.ExecuteOnNodes(ctx, e.Snapshot().ActiveNodes(), work)
}

// ExecuteOnNodes runs the unit of work against each of the given nodes,
// concurrently, and blocks until all have completed. See ExecuteOnAll
// for the aggregation contract.
func (e *Executor) ExecuteOnNodes(ctx context.Context, nodes []*ClusterNode, work UnitOfWork) (*Outcome, error) {
	if len(nodes) == 0 {
		return nil, &RoutingError{Reason: "no target nodes, topology may be stale or empty", Slot: -1}
	}
	out, err := e.fanOut(ctx, nodes, func(ctx context.Context, n *ClusterNode) (interface{}, error) {
		return e.invokeOn(ctx, n, work)
	})
	if err != nil {
		return nil, err
	}
	return out, out.Err()
}

// ExecuteForEachKey runs one logical per-key operation over keys that
// may span slots. Keys are grouped by their owning master so each node
// receives a single dispatch carrying all of the caller's keys it owns;
// the groups run concurrently and the merged result list is aligned to
// the caller's key order: result[i] belongs to keys[i] regardless of
// which node produced it or finished first.
//
// Any unroutable key fails the whole call with a *RoutingError before
// anything is dispatched. Node failures are aggregated as in
// ExecuteOnAll; no merged results are returned alongside them.
func (e *Executor) ExecuteForEachKey(ctx context.Context, keys []string, work KeyedUnitOfWork) ([]interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	type group struct {
		node      *ClusterNode
		keys      []string
		positions []int
	}

	t := e.Snapshot()
	groups := make(map[string]*group) // keyed by node address
	order := make([]*group, 0)
	for i, k := range keys {
		node, err := t.KeyServingMasterNode(k)
		if err != nil {
			return nil, err
		}
		g := groups[node.Addr()]
		if g == nil {
			g = &group{node: node}
			groups[node.Addr()] = g
			order = append(order, g)
		}
		g.keys = append(g.keys, k)
		g.positions = append(g.positions, i)
	}

	nodes := make([]*ClusterNode, len(order))
	for i, g := range order {
		nodes[i] = g.node
	}

	out, err := e.fanOut(ctx, nodes, func(ctx context.Context, n *ClusterNode) (interface{}, error) {
		g := groups[n.Addr()]
		vals, err := e.invokeOn(ctx, n, func(conn redis.Conn) (interface{}, error) {
			return work(conn, g.keys)
		})
		if err != nil {
			return nil, err
		}
		results, ok := vals.([]interface{})
		if !ok || len(results) != len(g.keys) {
			return nil, fmt.Errorf("unit of work returned %d results for %d keys", resultCount(vals), len(g.keys))
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}

	merged := make([]interface{}, len(keys))
	for _, r := range out.Results {
		g := groups[r.Node.Addr()]
		for i, v := range r.Value.([]interface{}) {
			merged[g.positions[i]] = v
		}
	}
	return merged, nil
}

func resultCount(v interface{}) int {
	if vs, ok := v.([]interface{}); ok {
		return len(vs)
	}
	return -1
}

// fanOut dispatches one unit per node onto the shared worker pool and
// waits for the full barrier. Units are independent: one node's failure
// neither cancels nor blocks another's in-flight work. The only shared
// mutable state is the outcome, written under its own mutex as workers
// report back.
func (e *Executor) fanOut(ctx context.Context, nodes []*ClusterNode, perNode func(context.Context, *ClusterNode) (interface{}, error)) (*Outcome, error) {
	pool, err := e.workers()
	if err != nil {
		return nil, err
	}

	e.log().Debug("dispatching to nodes", zap.Int("count", len(nodes)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out Outcome
	)
	report := func(n *ClusterNode, v interface{}, err error) {
		mu.Lock()
		if err != nil {
			out.Failures = append(out.Failures, &NodeError{Node: n, Cause: err})
		} else {
			out.Results = append(out.Results, NodeResult{Node: n, Value: v})
		}
		mu.Unlock()
		if err != nil {
			e.log().Warn("node execution failed", zap.String("node", n.Addr()), zap.Error(err))
		}
	}

	for _, n := range nodes {
		n := n
		wg.Add(1)
		task := func() {
			defer wg.Done()
			var v interface{}
			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("unit of work panicked: %v", r)
					}
				}()
				v, err = perNode(ctx, n)
			}()
			report(n, v, err)
		}
		if err := pool.Submit(task); err != nil {
			// pool released; report without running
			report(n, nil, err)
			wg.Done()
		}
	}
	wg.Wait()

	return &out, nil
}
