package clustertest

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Node is a mock cluster node. The handler is called for each command
// received; its return value is encoded as the reply. Handlers run on
// the connection's goroutine; guard any state they share.
type Node struct {
	Host string
	Port int

	done chan struct{}
	wg   sync.WaitGroup
	h    Handler
	t    *testing.T
	l    net.Listener
}

// Handler produces the reply value for one received command. Return an
// Error to make the node answer with an error reply.
type Handler func(cmd string, args ...string) interface{}

// Start creates and starts a mock node on a free localhost port. The
// caller should close the node after use.
func Start(t *testing.T, handler Handler) *Node {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "net.Listen")

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err, "SplitHostPort")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err, "Atoi port")

	n := &Node{
		Host: host,
		Port: port,
		done: make(chan struct{}),
		h:    handler,
		t:    t,
		l:    l,
	}
	go n.serve()
	return n
}

// Addr returns the node's "host:port" address.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Close stops the mock node and waits for its connections to finish.
func (n *Node) Close() {
	select {
	case <-n.done:
		return
	default:
	}

	require.NoError(n.t, n.l.Close(), "Close listener")
	<-n.done

	exit := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(exit)
	}()
	select {
	case <-exit:
	case <-time.After(5 * time.Second):
		n.t.Error("failed to cleanly stop the mock node")
	}
}

func (n *Node) serve() {
	defer close(n.done)
	for {
		conn, err := n.l.Accept()
		if err != nil {
			return
		}
		n.wg.Add(1)
		go n.serveConn(conn)
	}
}

func (n *Node) serveConn(c net.Conn) {
	defer n.wg.Done()

	go func() {
		<-n.done
		c.Close()
	}()

	br := bufio.NewReader(c)
	for {
		req, err := decodeRequest(br)
		if err != nil {
			return
		}
		if err := encodeReply(c, n.h(req[0], req[1:]...)); err != nil {
			return
		}
	}
}
