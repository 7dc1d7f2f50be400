// Package client is the Go SDK for talking to the fabric: it speaks
// the long-header wire protocol to the coordinator over UDP and wraps
// the request/reply exchange behind Get/Put/Del calls.
//
// The client holds no routing intelligence beyond addressing each
// request at the key's home server — the coordinator rewrites the
// destination for replicated keys, stamps write versions, and forwards
// the server's reply back here. Liveness is the client's job: the
// coordinator never retries anything, so a request that gets no reply
// within the timeout is simply sent again, and the coordinator's
// versioning makes the replay harmless.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

// ErrNotFound is returned by Get when no server in the fabric holds the
// key.
var ErrNotFound = errors.New("client: key not found")

// ErrTimeout is returned when every retry ran out of time without a
// matching reply.
var ErrTimeout = errors.New("client: request timed out")

const defaultRetries = 3

// Result is the outcome of one fabric operation: the value (for reads),
// and the version the fabric holds (assigned by the coordinator for
// writes, stored for reads).
type Result struct {
	Value   []byte
	Version uint32
}

// Client is a connection from one client endpoint to the coordinator.
// Safe for sequential use; callers needing concurrency should open one
// Client per goroutine, each with its own client id.
type Client struct {
	conn     *transport.Conn
	router   *net.UDPAddr
	codec    wire.LongCodec
	clientID uint8
	numNodes int
	timeout  time.Duration
	retries  int
	reqID    atomic.Uint32
}

// New opens a client socket and points it at the coordinator. local is
// this endpoint's address from the topology's client list — the
// coordinator forwards replies there by client_id, so it must match;
// nil binds an ephemeral port, which only works when the coordinator's
// client table points back at it (single-process tests). numNodes is
// the per-rack node count, used to address each request at the key's
// home server.
func New(router, local *net.UDPAddr, clientID uint8, numNodes int, timeout time.Duration) (*Client, error) {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	conn, err := transport.Listen(local)
	if err != nil {
		return nil, fmt.Errorf("client: bind %v: %w", local, err)
	}
	return &Client{
		conn:     conn,
		router:   router,
		codec:    wire.LongCodec{Ident: wire.IdentLong},
		clientID: clientID,
		numNodes: numNodes,
		timeout:  timeout,
		retries:  defaultRetries,
	}, nil
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Get retrieves key's value and version. ErrNotFound means the fabric
// answered and holds nothing under key.
func (c *Client) Get(key string) (*Result, error) {
	rep, err := c.roundTrip(wire.OpGet, key, nil)
	if err != nil {
		return nil, err
	}
	if rep.Reply.Result == wire.ResultNotFound {
		return nil, ErrNotFound
	}
	return &Result{Value: rep.Reply.Value, Version: rep.Header.Version}, nil
}

// Put stores key=value and returns the version the coordinator stamped
// on the write.
func (c *Client) Put(key, value string) (*Result, error) {
	rep, err := c.roundTrip(wire.OpPut, key, []byte(value))
	if err != nil {
		return nil, err
	}
	return &Result{Version: rep.Header.Version}, nil
}

// Del erases key, returning the version of the delete.
func (c *Client) Del(key string) (*Result, error) {
	rep, err := c.roundTrip(wire.OpDel, key, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Version: rep.Header.Version}, nil
}

// roundTrip sends one request and waits for the matching reply,
// resending on timeout until the retry budget runs out. Replies with a
// stale req_id (a previous attempt's answer arriving late) are drained
// and ignored.
func (c *Client) roundTrip(op wire.OpType, key string, value []byte) (*wire.Packet, error) {
	keyBytes := []byte(key)
	keyhash := wire.Keyhash(keyBytes)
	home := uint8(keyhash % uint32(c.numNodes))
	reqID := c.reqID.Add(1)

	pkt := &wire.Packet{
		Header: wire.Header{
			Identifier: wire.IdentLong,
			Op:         op,
			Keyhash:    keyhash,
			ClientID:   c.clientID,
			ServerID:   home,
		},
		Request: &wire.Request{
			ReqID:   reqID,
			ReqTime: uint32(time.Now().UnixMicro()),
			InnerOp: op,
			Key:     keyBytes,
			Value:   value,
		},
	}
	buf, err := c.codec.Encode(pkt)
	if err != nil {
		return nil, fmt.Errorf("client: encode: %w", err)
	}

	for attempt := 0; attempt < c.retries; attempt++ {
		if err := c.conn.SendTo(c.router, buf); err != nil {
			return nil, fmt.Errorf("client: send: %w", err)
		}
		rep, err := c.awaitReply(reqID)
		if err == nil {
			return rep, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
	}
	return nil, ErrTimeout
}

func (c *Client) awaitReply(reqID uint32) (*wire.Packet, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		payload, _, release, err := c.conn.Recv()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("client: recv: %w", err)
		}
		pkt, decErr := c.codec.Decode(payload)
		release()
		if decErr != nil {
			continue // not ours; keep waiting
		}
		if pkt.Reply == nil || pkt.Reply.ReqID != reqID {
			continue // a previous attempt's late answer
		}
		return pkt, nil
	}
}
