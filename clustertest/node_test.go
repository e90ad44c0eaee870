package clustertest

import (
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeReplies(t *testing.T) {
	n := Start(t, func(cmd string, args ...string) interface{} {
		switch cmd {
		case "PING":
			return Simple("PONG")
		case "ECHO":
			return args[0]
		case "FAIL":
			return Error("ERR nope")
		case "COUNT":
			return len(args)
		case "NIL":
			return nil
		case "LIST":
			return []string{"a", "b"}
		case "MIXED":
			return []interface{}{int64(1), "x", nil}
		default:
			return Error("ERR unknown command " + cmd)
		}
	})
	defer n.Close()

	conn, err := redis.Dial("tcp", n.Addr(),
		redis.DialConnectTimeout(time.Second),
		redis.DialReadTimeout(time.Second),
		redis.DialWriteTimeout(time.Second))
	require.NoError(t, err)
	defer conn.Close()

	pong, err := redis.String(conn.Do("PING"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	echo, err := redis.String(conn.Do("ECHO", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", echo)

	_, err = conn.Do("FAIL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	count, err := redis.Int(conn.Do("COUNT", "a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	nilReply, err := conn.Do("NIL")
	require.NoError(t, err)
	assert.Nil(t, nilReply)

	list, err := redis.Strings(conn.Do("LIST"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	mixed, err := redis.Values(conn.Do("MIXED"))
	require.NoError(t, err)
	require.Len(t, mixed, 3)
	assert.Equal(t, int64(1), mixed[0])
	assert.Equal(t, []byte("x"), mixed[1])
	assert.Nil(t, mixed[2])
}
