package transport

import (
	"net"

	"golang.org/x/net/ipv4"
)

// DefaultBatchSize is how many datagrams a BatchReader pulls from the
// kernel per syscall when traffic is dense enough to fill it.
const DefaultBatchSize = 16

// BatchReader drains multiple datagrams per syscall from a shared UDP
// socket via x/net's ipv4 batch interface. Each data-plane worker owns
// one BatchReader (the message buffers are reused across calls and are
// not safe to share); the underlying PacketConn itself is safe for
// concurrent ReadBatch from several workers.
type BatchReader struct {
	pc   *ipv4.PacketConn
	msgs []ipv4.Message
}

// NewBatchReader wraps conn for batched receives. batch <= 0 selects
// DefaultBatchSize.
func NewBatchReader(conn *Conn, batch int) *BatchReader {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	msgs := make([]ipv4.Message, batch)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, MaxPacketSize)}
	}
	return &BatchReader{
		pc:   ipv4.NewPacketConn(conn.UDPConn),
		msgs: msgs,
	}
}

// Read blocks until at least one datagram arrives and returns how many
// were filled into the reader's message slots. The payloads returned by
// Message are valid only until the next Read call.
func (b *BatchReader) Read() (int, error) {
	return b.pc.ReadBatch(b.msgs, 0)
}

// Message returns the i-th received datagram's payload and sender from
// the most recent Read.
func (b *BatchReader) Message(i int) (payload []byte, from *net.UDPAddr) {
	m := b.msgs[i]
	addr, _ := m.Addr.(*net.UDPAddr)
	return m.Buffers[0][:m.N], addr
}
