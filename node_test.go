package redisring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeAddr(t *testing.T) {
	n := &Node{Host: "10.0.0.1", Port: 7001}
	assert.Equal(t, "10.0.0.1:7001", n.Addr())
}

func TestNodeEqual(t *testing.T) {
	a := &Node{Host: "h", Port: 7000, Name: "n1", ID: "aaa"}
	b := &Node{Host: "h", Port: 7000, Name: "n1", ID: "bbb"}
	c := &Node{Host: "h", Port: 7001, Name: "n1"}
	d := &Node{Host: "h", Port: 7000, Name: "n2"}

	assert.True(t, a.Equal(b), "ID is not part of identity")
	assert.False(t, a.Equal(c), "different port")
	assert.False(t, a.Equal(d), "different name")
	assert.False(t, a.Equal(nil))
	var nilNode *Node
	assert.True(t, nilNode.Equal(nil))
}

func TestSlotSet(t *testing.T) {
	s := NewSlotSet()
	assert.Equal(t, 0, s.Len(), "empty set is valid")
	assert.False(t, s.Contains(0))

	s.AddRange(0, 10)
	s.AddRange(100, 100)
	assert.Equal(t, 12, s.Len())
	assert.True(t, s.Contains(0))
	assert.True(t, s.Contains(10))
	assert.True(t, s.Contains(100), "fragmented ownership")
	assert.False(t, s.Contains(11))

	r := NewSlotRange(5, 7)
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Contains(6))

	var nilSet *SlotSet
	assert.False(t, nilSet.Contains(3))
	assert.Equal(t, 0, nilSet.Len())
}

func TestClusterNodeMarkedAsFail(t *testing.T) {
	cases := []struct {
		flags Flag
		fail  bool
	}{
		{FlagMaster, false},
		{FlagMaster | FlagFail, true},
		{FlagReplica | FlagPFail, true},
		{FlagMyself | FlagMaster, false},
		{FlagHandshake, false},
	}
	for _, c := range cases {
		n := &ClusterNode{Flags: c.flags}
		assert.Equal(t, c.fail, n.MarkedAsFail(), "flags %b", c.flags)
	}
}

func TestClusterNodeServesSlot(t *testing.T) {
	n := &ClusterNode{Slots: NewSlotRange(100, 200)}
	assert.True(t, n.ServesSlot(150))
	assert.False(t, n.ServesSlot(201))

	empty := &ClusterNode{Slots: NewSlotSet()}
	assert.False(t, empty.ServesSlot(0), "node owning no slots yet")
}
