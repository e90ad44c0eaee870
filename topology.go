package redisring

// Topology is an immutable, point-in-time snapshot of cluster
// membership and slot ownership. Snapshots are built fresh on every
// refresh cycle (see Refresher) and swapped atomically; a Topology is
// never mutated after construction and may be shared freely by any
// number of concurrent readers.
//
// At steady state no two nodes claim overlapping slots; a transient
// overlap during slot migration is tolerated, lookups simply return
// the first match found.
type Topology struct {
	nodes []*ClusterNode
}

// NewTopology returns a snapshot over the given nodes. The slice is
// copied; callers may not mutate the nodes afterwards.
func NewTopology(nodes ...*ClusterNode) *Topology {
	cp := make([]*ClusterNode, len(nodes))
	copy(cp, nodes)
	return &Topology{nodes: cp}
}

// Nodes returns every node in the snapshot.
func (t *Topology) Nodes() []*ClusterNode {
	cp := make([]*ClusterNode, len(t.nodes))
	copy(cp, t.nodes)
	return cp
}

func (t *Topology) filter(keep func(*ClusterNode) bool) []*ClusterNode {
	var out []*ClusterNode
	for _, n := range t.nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// ActiveNodes returns the nodes that are connected and not marked as
// failing.
func (t *Topology) ActiveNodes() []*ClusterNode {
	return t.filter((*ClusterNode).active)
}

// MasterNodes returns every master in the snapshot, healthy or not.
func (t *Topology) MasterNodes() []*ClusterNode {
	return t.filter(func(n *ClusterNode) bool {
		return n.Role == RoleMaster
	})
}

// ActiveMasterNodes returns the masters that are usable as dispatch
// targets.
func (t *Topology) ActiveMasterNodes() []*ClusterNode {
	return t.filter(func(n *ClusterNode) bool {
		return n.Role == RoleMaster && n.active()
	})
}

// SlotServingNodes returns every node, master or replica, whose slot
// set contains slot.
func (t *Topology) SlotServingNodes(slot int) []*ClusterNode {
	return t.filter(func(n *ClusterNode) bool {
		return n.ServesSlot(slot)
	})
}

// KeyServingMasterNode returns the active master serving the key's
// slot. Replicas never serve lookups through this path. A *RoutingError
// is returned when no active master serves the slot, which means the
// snapshot is stale or the cluster is unhealthy; the caller should
// refresh and retry.
func (t *Topology) KeyServingMasterNode(key string) (*ClusterNode, error) {
	slot := Slot(key)
	for _, n := range t.nodes {
		if n.Role == RoleMaster && n.active() && n.ServesSlot(slot) {
			return n, nil
		}
	}
	return nil, &RoutingError{Reason: "no master for slot", Key: key, Slot: slot}
}

// LookupAddr returns the node listening on host:port. A *RoutingError
// is returned when no such node is known: the topology may be stale.
func (t *Topology) LookupAddr(host string, port int) (*ClusterNode, error) {
	for _, n := range t.nodes {
		if n.Host == host && n.Port == port {
			return n, nil
		}
	}
	return nil, &RoutingError{
		Reason: "node not found, topology may be stale",
		Addr:   (&Node{Host: host, Port: port}).Addr(),
		Slot:   -1,
	}
}

// LookupID returns the node with the given store-assigned ID. A
// *RoutingError is returned when no such node is known.
func (t *Topology) LookupID(id string) (*ClusterNode, error) {
	for _, n := range t.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, &RoutingError{
		Reason: "node not found, topology may be stale",
		Addr:   id,
		Slot:   -1,
	}
}

// LookupNode resolves a possibly partially populated Node value against
// the snapshot. Strategies are tried in order, first applicable wins:
// when both host and ID are populated, an exact membership scan; then a
// host+port match when the host is populated; then an ID match. A probe
// with neither host nor ID set, or one matching no node, yields a
// *RoutingError. Host+port deliberately takes precedence over ID for
// partially populated probes; a probe with a host but a different port
// than any known node does not fall through to other strategies.
func (t *Topology) LookupNode(probe *Node) (*ClusterNode, error) {
	switch {
	case probe.Host != "" && probe.ID != "":
		for _, n := range t.nodes {
			if n.Host == probe.Host && n.Port == probe.Port && n.ID == probe.ID {
				return n, nil
			}
		}
	case probe.Host != "":
		return t.LookupAddr(probe.Host, probe.Port)
	case probe.ID != "":
		return t.LookupID(probe.ID)
	}
	return nil, &RoutingError{
		Reason: "node not found, topology may be stale",
		Addr:   probe.String(),
		Slot:   -1,
	}
}
