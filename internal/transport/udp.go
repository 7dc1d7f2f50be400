// Package transport wraps *net.UDPConn with the packet-buffer handling
// every fabric binary needs: a pooled buffer per receive to avoid
// allocating on the hot path, and small helpers for sending to an
// explicit peer address.
package transport

import (
	"net"
	"sync"
)

// MaxPacketSize is the largest UDP payload this fabric ever sends or
// expects to receive — comfortably under the 65507-byte IPv4 UDP
// ceiling, since every wire packet here is a small, fixed-ish-size
// header plus a short key/value.
const MaxPacketSize = 4096

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, MaxPacketSize)
		return &b
	},
}

// Conn is a UDP socket shared by every goroutine in a data-plane
// worker pool. net.UDPConn's ReadFromUDP/WriteToUDP are themselves
// safe for concurrent use, so no additional locking is needed here —
// this type exists purely for the buffer-pooling convenience.
type Conn struct {
	*net.UDPConn
}

// Listen opens a UDP socket bound to laddr, for a process that accepts
// packets from many peers (coordinator, server, decrementor target).
func Listen(laddr *net.UDPAddr) (*Conn, error) {
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &Conn{c}, nil
}

// Dial opens a UDP socket with a fixed peer, for a process that only
// ever talks to one address (the decrementor talking to the coordinator).
func Dial(raddr *net.UDPAddr) (*Conn, error) {
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Conn{c}, nil
}

// SendTo writes payload to addr. Only valid on a listening socket; a
// dialed socket must use Send.
func (c *Conn) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := c.WriteToUDP(payload, addr)
	return err
}

// Send writes payload to the dialed peer.
func (c *Conn) Send(payload []byte) error {
	_, err := c.Write(payload)
	return err
}

// Recv reads one packet into a pooled buffer and returns it along with
// the sender's address. The caller must call Release when done with
// the returned slice.
func (c *Conn) Recv() (payload []byte, from *net.UDPAddr, release func(), err error) {
	bufp := bufPool.Get().(*[]byte)
	n, addr, err := c.ReadFromUDP(*bufp)
	if err != nil {
		bufPool.Put(bufp)
		return nil, nil, func() {}, err
	}
	release = func() { bufPool.Put(bufp) }
	return (*bufp)[:n], addr, release, nil
}
