package redisring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisring/redisring/clustertest"
)

// fakeStore is the keyspace of one mock node. Its handler implements
// the commands the rename fallback issues: DUMP, PTTL, EXISTS, RESTORE,
// DEL. The "serialized" form of a value is simply its bytes.
type fakeStore struct {
	mu     sync.Mutex
	data   map[string]string
	failOn map[string]bool // commands answered with an error reply
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), failOn: make(map[string]bool)}
}

func (s *fakeStore) handler(cmd string, args ...string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOn[cmd] {
		return clustertest.Error("ERR injected failure for " + cmd)
	}
	switch cmd {
	case "DUMP":
		v, ok := s.data[args[0]]
		if !ok {
			return nil
		}
		return []byte(v)
	case "PTTL":
		if _, ok := s.data[args[0]]; !ok {
			return -2
		}
		return -1 // no expiry
	case "EXISTS":
		if _, ok := s.data[args[0]]; ok {
			return 1
		}
		return 0
	case "RESTORE":
		s.data[args[0]] = args[2]
		return clustertest.Simple("OK")
	case "DEL":
		if _, ok := s.data[args[0]]; ok {
			delete(s.data, args[0])
			return 1
		}
		return 0
	default:
		return clustertest.Error("ERR unknown command " + cmd)
	}
}

func (s *fakeStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *fakeStore) set(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
}

// renameFixture wires two mock nodes so that "src" and "dst" hash to
// slots owned by different nodes.
func renameFixture(t *testing.T) (*Renamer, *fakeStore, *fakeStore) {
	srcStore, dstStore := newFakeStore(), newFakeStore()
	srcNode := clustertest.Start(t, srcStore.handler)
	dstNode := clustertest.Start(t, dstStore.handler)
	t.Cleanup(srcNode.Close)
	t.Cleanup(dstNode.Close)

	require.False(t, SameSlot("src", "dst"), "fixture keys must span slots")

	a := &ClusterNode{
		Node:  Node{Host: srcNode.Host, Port: srcNode.Port},
		Slots: NewSlotSet(Slot("src")),
		Flags: FlagMaster,
	}
	b := &ClusterNode{
		Node:  Node{Host: dstNode.Host, Port: dstNode.Port},
		Slots: NewSlotSet(Slot("dst")),
		Flags: FlagMaster,
	}
	top := NewTopology(a, b)

	source := &ConnSource{
		DialOptions: []redis.DialOption{
			redis.DialConnectTimeout(time.Second),
			redis.DialReadTimeout(time.Second),
			redis.DialWriteTimeout(time.Second),
		},
	}
	t.Cleanup(func() { source.Close() })

	e := &Executor{
		Source:   source,
		Snapshot: func() *Topology { return top },
	}
	t.Cleanup(func() { e.Close() })

	return &Renamer{Exec: e}, srcStore, dstStore
}

func TestRenameAcrossSlots(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "the-value")

	err := r.Rename(context.Background(), "src", "dst")
	require.NoError(t, err)

	_, ok := srcStore.get("src")
	assert.False(t, ok, "source deleted")
	v, ok := dstStore.get("dst")
	assert.True(t, ok, "destination created")
	assert.Equal(t, "the-value", v)
}

func TestRenameOverwritesDestination(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "new")
	dstStore.set("dst", "old")

	require.NoError(t, r.Rename(context.Background(), "src", "dst"))
	v, _ := dstStore.get("dst")
	assert.Equal(t, "new", v)
}

func TestRenameMissingSource(t *testing.T) {
	r, _, dstStore := renameFixture(t)

	err := r.Rename(context.Background(), "src", "dst")
	require.ErrorIs(t, err, ErrNoSuchKey)
	_, ok := dstStore.get("dst")
	assert.False(t, ok, "no mutation on either node")
}

func TestRenameNX(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "v1")

	ok, err := r.RenameNX(context.Background(), "src", "dst")
	require.NoError(t, err)
	assert.True(t, ok)
	_, present := srcStore.get("src")
	assert.False(t, present)
	v, _ := dstStore.get("dst")
	assert.Equal(t, "v1", v)
}

func TestRenameNXDestinationExists(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "v1")
	dstStore.set("dst", "keep")

	ok, err := r.RenameNX(context.Background(), "src", "dst")
	require.NoError(t, err)
	assert.False(t, ok, "not performed")

	// no mutation on either node
	v, _ := srcStore.get("src")
	assert.Equal(t, "v1", v)
	v, _ = dstStore.get("dst")
	assert.Equal(t, "keep", v)
}

func TestRenamePartialOnDeleteFailure(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "v1")
	srcStore.mu.Lock()
	srcStore.failOn["DEL"] = true
	srcStore.mu.Unlock()

	err := r.Rename(context.Background(), "src", "dst")
	var perr *PartialRenameError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.DestinationCreated)
	assert.False(t, perr.SourceDeleted)

	// the partial state is real: destination restored, source intact
	_, ok := dstStore.get("dst")
	assert.True(t, ok)
	_, ok = srcStore.get("src")
	assert.True(t, ok)
}

func TestRenamePartialOnRestoreFailure(t *testing.T) {
	r, srcStore, dstStore := renameFixture(t)
	srcStore.set("src", "v1")
	dstStore.mu.Lock()
	dstStore.failOn["RESTORE"] = true
	dstStore.mu.Unlock()

	err := r.Rename(context.Background(), "src", "dst")
	var perr *PartialRenameError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.DestinationCreated)
	assert.False(t, perr.SourceDeleted)

	_, ok := srcStore.get("src")
	assert.True(t, ok, "source untouched")
}
