package redisring

import (
	"net"
	"strconv"
)

// Role indicates whether a node owns writable slots or mirrors a master.
type Role int8

// Roles of a cluster node.
const (
	RoleMaster Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleReplica {
		return "replica"
	}
	return "master"
}

// LinkState is the state of the cluster-bus link to a node as last
// observed when the topology snapshot was taken.
type LinkState int8

// Link states of a cluster node.
const (
	LinkConnected LinkState = iota
	LinkDisconnected
)

// Flag is a bitmask of status flags reported for a cluster node.
type Flag uint16

// Node status flags.
const (
	FlagMyself Flag = 1 << iota
	FlagMaster
	FlagReplica
	FlagFail
	FlagPFail
	FlagHandshake
	FlagNoAddr
)

// Has returns true if all flags in mask are set.
func (f Flag) Has(mask Flag) bool {
	return f&mask == mask
}

// Node identifies one server in the cluster. Values are immutable once
// constructed and live for the duration of one topology snapshot.
type Node struct {
	Host     string
	Port     int
	ID       string // opaque ID assigned by the store, may be empty
	Name     string // optional human-readable name
	Role     Role
	MasterID string // ID of the replicated master, empty for masters
}

// Addr returns the "host:port" address of the node.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Equal reports whether two nodes identify the same server: host, port
// and name must all match.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.Host == other.Host && n.Port == other.Port && n.Name == other.Name
}

func (n *Node) String() string {
	if n.Name != "" {
		return n.Name + "(" + n.Addr() + ")"
	}
	return n.Addr()
}

// A SlotSet is the set of hash slots owned by one node. It is an
// explicit set rather than a [lo,hi) pair because ownership can be
// fragmented across non-contiguous ranges after slot migrations. The
// empty set is valid: a node may own no slots yet.
type SlotSet struct {
	slots map[int]struct{}
}

// NewSlotSet returns a set containing the given slots.
func NewSlotSet(slots ...int) *SlotSet {
	s := &SlotSet{slots: make(map[int]struct{}, len(slots))}
	for _, slot := range slots {
		s.slots[slot] = struct{}{}
	}
	return s
}

// NewSlotRange returns a set containing every slot in [lo, hi],
// bounds included.
func NewSlotRange(lo, hi int) *SlotSet {
	s := &SlotSet{slots: make(map[int]struct{}, hi-lo+1)}
	s.AddRange(lo, hi)
	return s
}

// AddRange adds every slot in [lo, hi], bounds included.
func (s *SlotSet) AddRange(lo, hi int) {
	for slot := lo; slot <= hi; slot++ {
		s.slots[slot] = struct{}{}
	}
}

// Contains returns true if slot is in the set.
func (s *SlotSet) Contains(slot int) bool {
	if s == nil {
		return false
	}
	_, ok := s.slots[slot]
	return ok
}

// Len returns the number of slots in the set.
func (s *SlotSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.slots)
}

// ClusterNode is a Node together with the slots it serves and its
// last-observed health, as reported in one topology snapshot.
type ClusterNode struct {
	Node

	Slots *SlotSet
	Link  LinkState
	Flags Flag
}

// MarkedAsFail returns true if the node is flagged as failing (FAIL) or
// possibly failing (PFAIL).
func (n *ClusterNode) MarkedAsFail() bool {
	return n.Flags&(FlagFail|FlagPFail) != 0
}

// ServesSlot returns true if the node's slot set contains slot.
func (n *ClusterNode) ServesSlot(slot int) bool {
	return n.Slots.Contains(slot)
}

// active is true for a node that is usable as a dispatch target:
// connected and not marked as failing.
func (n *ClusterNode) active() bool {
	return n.Link == LinkConnected && !n.MarkedAsFail() && !n.Flags.Has(FlagNoAddr)
}
