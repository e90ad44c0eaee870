package redisring

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/gomodule/redigo/redis"
)

// Refresher obtains fresh topology snapshots from the cluster itself.
// It asks each known node in turn for its view of the cluster (CLUSTER
// NODES) and builds an immutable Topology from the first answer; the
// first node to answer wins. How often to refresh, and swapping the new
// snapshot into the Executor, is the caller's concern.
type Refresher struct {
	// StartupNodes is the list of initial node addresses, as
	// "host:port". Successful refreshes widen the candidate list to
	// every node of the last snapshot.
	StartupNodes []string

	// DialOptions is the list of options to set on refresh connections.
	DialOptions []redis.DialOption

	last *Topology
}

// Snapshot fetches and returns a fresh topology snapshot. It fails with
// "all nodes failed" when no candidate node answers.
func (r *Refresher) Snapshot(ctx context.Context) (*Topology, error) {
	for _, addr := range r.candidates() {
		nodes, err := r.fetch(ctx, addr)
		if err != nil {
			continue
		}
		t := NewTopology(nodes...)
		r.last = t
		return t, nil
	}
	return nil, errors.New("redisring: all nodes failed")
}

func (r *Refresher) candidates() []string {
	if r.last == nil {
		return r.StartupNodes
	}
	addrs := make([]string, 0, len(r.last.nodes))
	for _, n := range r.last.nodes {
		if !n.Flags.Has(FlagNoAddr) {
			addrs = append(addrs, n.Addr())
		}
	}
	return append(addrs, r.StartupNodes...)
}

func (r *Refresher) fetch(ctx context.Context, addr string) ([]*ClusterNode, error) {
	conn, err := redis.DialContext(ctx, "tcp", addr, r.DialOptions...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	raw, err := redis.String(conn.Do("CLUSTER", "NODES"))
	if err != nil {
		return nil, err
	}
	return parseClusterNodes(raw)
}

var clusterNodeFlags = map[string]Flag{
	"myself":    FlagMyself,
	"master":    FlagMaster,
	"slave":     FlagReplica,
	"fail":      FlagFail,
	"fail?":     FlagPFail,
	"handshake": FlagHandshake,
	"noaddr":    FlagNoAddr,
}

// parseClusterNodes builds nodes from the CLUSTER NODES bulk reply, one
// line per node:
//
//	<id> <ip:port@cport> <flags> <master> <ping> <pong> <epoch> <link> <slot>...
//
// Slot entries are either single slots, "lo-hi" ranges, or bracketed
// importing/migrating markers, which do not represent settled ownership
// and are skipped.
func parseClusterNodes(raw string) ([]*ClusterNode, error) {
	var nodes []*ClusterNode
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, errors.New("redisring: malformed cluster nodes line: " + line)
		}

		host, port, err := parseNodeAddr(fields[1])
		if err != nil {
			return nil, err
		}

		n := &ClusterNode{
			Node:  Node{Host: host, Port: port, ID: fields[0]},
			Slots: NewSlotSet(),
		}
		for _, f := range strings.Split(fields[2], ",") {
			n.Flags |= clusterNodeFlags[f]
		}
		if n.Flags.Has(FlagReplica) {
			n.Role = RoleReplica
			if fields[3] != "-" {
				n.MasterID = fields[3]
			}
		}
		if fields[7] == "disconnected" {
			n.Link = LinkDisconnected
		}

		for _, slot := range fields[8:] {
			if strings.HasPrefix(slot, "[") {
				continue
			}
			lo, hi, err := parseSlotRange(slot)
			if err != nil {
				return nil, err
			}
			n.Slots.AddRange(lo, hi)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseNodeAddr(addr string) (string, int, error) {
	// trailing "@cport" is the cluster bus port, not the client port
	if ix := strings.IndexByte(addr, '@'); ix >= 0 {
		addr = addr[:ix]
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parseSlotRange(s string) (int, int, error) {
	if ix := strings.IndexByte(s, '-'); ix >= 0 {
		lo, err := strconv.Atoi(s[:ix])
		if err != nil {
			return 0, 0, err
		}
		hi, err := strconv.Atoi(s[ix+1:])
		if err != nil {
			return 0, 0, err
		}
		return lo, hi, nil
	}
	slot, err := strconv.Atoi(s)
	return slot, slot, err
}
