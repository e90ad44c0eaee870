package redisring

import (
	"context"
	"sync"

	"github.com/gomodule/redigo/redis"
)

// UnitOfWork is one unit of work to run against a single node. It
// receives a connection bound to that node and returns the produced
// value or an error. The executor never retries a failed unit;
// redirect-following and retry policy belong to a higher layer.
type UnitOfWork func(conn redis.Conn) (interface{}, error)

// NodeDriver is the capability to execute units of work against exactly
// one node. Implementations need not be safe for concurrent use; the
// executor never invokes the same node's driver concurrently within one
// dispatch.
type NodeDriver interface {
	Invoke(ctx context.Context, work UnitOfWork) (interface{}, error)
	Close() error
}

// DriverSource resolves nodes to their drivers. It is how the executor
// obtains the per-node capability; the source owns the underlying
// connection resources.
type DriverSource interface {
	DriverFor(node *ClusterNode) (NodeDriver, error)
}

// ConnSource is a redigo-backed DriverSource. If the CreatePool field
// is not nil, a redis.Pool is created for each node and its driver
// draws connections from that pool; otherwise every invocation dials a
// fresh connection. Drivers are cached per address and reused across
// dispatches.
type ConnSource struct {
	// DialOptions is the list of options to set on each new connection.
	// Per-connection timeouts belong here; the executor imposes no
	// cross-node deadline of its own.
	DialOptions []redis.DialOption

	// CreatePool is the function to call to create a redis.Pool for
	// the specified TCP address, using the provided options as set in
	// DialOptions. If nil, connections are dialed per invocation.
	CreatePool func(address string, options ...redis.DialOption) (*redis.Pool, error)

	mu      sync.Mutex // protects following fields
	err     error
	drivers map[string]NodeDriver
}

var errClosed = &RoutingError{Reason: "closed", Slot: -1}

// DriverFor returns the driver for the node, creating and caching it on
// first use.
func (s *ConnSource) DriverFor(node *ClusterNode) (NodeDriver, error) {
	addr := node.Addr()

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	if d := s.drivers[addr]; d != nil {
		s.mu.Unlock()
		return d, nil
	}

	if s.CreatePool == nil {
		d := &dialDriver{addr: addr, opts: s.DialOptions}
		s.store(addr, d)
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	// create the pool without holding the lock, it may dial
	pool, err := s.CreatePool(addr, s.DialOptions...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		pool.Close()
		return nil, s.err
	}
	if d := s.drivers[addr]; d != nil {
		// lost the race to another caller, discard ours
		pool.Close()
		return d, nil
	}
	d := &poolDriver{pool: pool}
	s.store(addr, d)
	return d, nil
}

func (s *ConnSource) store(addr string, d NodeDriver) {
	if s.drivers == nil {
		s.drivers = make(map[string]NodeDriver)
	}
	s.drivers[addr] = d
}

// Prune closes and forgets the drivers of nodes that are no longer part
// of the topology. Call it after swapping in a fresh snapshot.
func (s *ConnSource) Prune(t *Topology) {
	keep := make(map[string]bool, len(t.nodes))
	for _, n := range t.nodes {
		keep[n.Addr()] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, d := range s.drivers {
		if !keep[addr] {
			d.Close()
			delete(s.drivers, addr)
		}
	}
}

// Close releases every cached driver. The source is unusable afterwards.
func (s *ConnSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.err
	if err == nil {
		s.err = errClosed
		for _, d := range s.drivers {
			if e := d.Close(); e != nil && err == nil {
				err = e
			}
		}
		s.drivers = nil
	}
	return err
}

// poolDriver draws a connection from a per-node pool for each unit of
// work.
type poolDriver struct {
	pool *redis.Pool
}

func (d *poolDriver) Invoke(ctx context.Context, work UnitOfWork) (interface{}, error) {
	conn, err := d.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return work(conn)
}

func (d *poolDriver) Close() error {
	return d.pool.Close()
}

// dialDriver dials a fresh connection for each unit of work.
type dialDriver struct {
	addr string
	opts []redis.DialOption
}

func (d *dialDriver) Invoke(ctx context.Context, work UnitOfWork) (interface{}, error) {
	conn, err := redis.DialContext(ctx, "tcp", d.addr, d.opts...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return work(conn)
}

func (d *dialDriver) Close() error {
	return nil
}
