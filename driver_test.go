package redisring

import (
	"context"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisring/redisring/clustertest"
)

func testDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(time.Second),
		redis.DialReadTimeout(time.Second),
		redis.DialWriteTimeout(time.Second),
	}
}

func pingHandler(cmd string, args ...string) interface{} {
	if cmd == "PING" {
		return clustertest.Simple("PONG")
	}
	return clustertest.Error("ERR unknown command " + cmd)
}

func clusterNodeFor(n *clustertest.Node) *ClusterNode {
	return &ClusterNode{
		Node:  Node{Host: n.Host, Port: n.Port},
		Slots: NewSlotSet(),
		Flags: FlagMaster,
	}
}

func TestConnSourceDial(t *testing.T) {
	mock := clustertest.Start(t, pingHandler)
	defer mock.Close()

	src := &ConnSource{DialOptions: testDialOptions()}
	defer src.Close()

	d, err := src.DriverFor(clusterNodeFor(mock))
	require.NoError(t, err)

	v, err := d.Invoke(context.Background(), func(conn redis.Conn) (interface{}, error) {
		return redis.String(conn.Do("PING"))
	})
	require.NoError(t, err)
	assert.Equal(t, "PONG", v)
}

func TestConnSourcePool(t *testing.T) {
	mock := clustertest.Start(t, pingHandler)
	defer mock.Close()

	created := 0
	src := &ConnSource{
		DialOptions: testDialOptions(),
		CreatePool: func(addr string, opts ...redis.DialOption) (*redis.Pool, error) {
			created++
			return &redis.Pool{
				MaxIdle: 2,
				Dial: func() (redis.Conn, error) {
					return redis.Dial("tcp", addr, opts...)
				},
			}, nil
		},
	}
	defer src.Close()

	node := clusterNodeFor(mock)
	d1, err := src.DriverFor(node)
	require.NoError(t, err)
	d2, err := src.DriverFor(node)
	require.NoError(t, err)
	assert.Same(t, d1, d2, "driver cached per address")
	assert.Equal(t, 1, created, "one pool per node")

	_, err = d1.Invoke(context.Background(), func(conn redis.Conn) (interface{}, error) {
		return conn.Do("PING")
	})
	require.NoError(t, err)
}

func TestConnSourcePrune(t *testing.T) {
	mock := clustertest.Start(t, pingHandler)
	defer mock.Close()

	src := &ConnSource{DialOptions: testDialOptions()}
	defer src.Close()

	kept := clusterNodeFor(mock)
	gone := &ClusterNode{Node: Node{Host: "127.0.0.1", Port: 1}, Slots: NewSlotSet()}
	dKept, err := src.DriverFor(kept)
	require.NoError(t, err)
	dGone, err := src.DriverFor(gone)
	require.NoError(t, err)

	src.Prune(NewTopology(kept))

	after, err := src.DriverFor(kept)
	require.NoError(t, err)
	assert.Same(t, dKept, after, "driver of surviving node kept")

	recreated, err := src.DriverFor(gone)
	require.NoError(t, err)
	assert.NotSame(t, dGone, recreated, "pruned driver was dropped")
}

func TestConnSourceClose(t *testing.T) {
	src := &ConnSource{}
	require.NoError(t, src.Close())

	_, err := src.DriverFor(&ClusterNode{Node: Node{Host: "h", Port: 1}})
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, err.Error(), "closed")

	assert.Error(t, src.Close(), "second close reports the sticky error")
}
