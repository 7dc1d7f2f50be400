package wire

import "encoding/binary"

// NetcacheOp is the operation space of the compact in-header codec. It is
// distinct from OpType: the netcache variant is a separate wire shape
// with its own small vocabulary, not a re-encoding of the long header's
// op codes.
type NetcacheOp uint8

const (
	NetcacheRead     NetcacheOp = 0x1
	NetcacheWrite    NetcacheOp = 0x2
	NetcacheRepR     NetcacheOp = 0x3
	NetcacheRepW     NetcacheOp = 0x4
	NetcacheCacheHit NetcacheOp = 0x5
)

// NetcacheKeySize and NetcacheValueSize are the fixed in-header slot
// sizes for the compact codec. A key or value that does not fit is
// rejected by Encode with ErrKeyTooLong/ErrValueTooLong.
const (
	NetcacheKeySize   = 6
	NetcacheValueSize = 4
	NetcacheSize      = 2 + 1 + NetcacheKeySize + NetcacheValueSize
)

// NetcachePacket is the compact codec's wire shape: identifier, op, and a
// fixed 6-byte key / 4-byte value slot, zero-padded when the real key or
// value is shorter than the slot.
type NetcachePacket struct {
	Op    NetcacheOp
	Key   []byte
	Value []byte
}

// NetcacheCodec implements the fixed-slot variant used to serve short
// entries directly from the coordinator without a round trip to a
// server.
type NetcacheCodec struct{}

// Encode serialises pkt into a fixed NetcacheSize buffer. It rejects a
// key or value longer than its slot with ErrKeyTooLong/ErrValueTooLong;
// the op is written as given and is not validated.
func (NetcacheCodec) Encode(pkt *NetcachePacket) ([]byte, error) {
	if len(pkt.Key) > NetcacheKeySize {
		return nil, ErrKeyTooLong
	}
	if len(pkt.Value) > NetcacheValueSize {
		return nil, ErrValueTooLong
	}

	buf := make([]byte, NetcacheSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(IdentCompact))
	buf[2] = byte(pkt.Op)
	copy(buf[3:3+NetcacheKeySize], pkt.Key)
	copy(buf[3+NetcacheKeySize:], pkt.Value)
	return buf, nil
}

// Decode parses a fixed NetcacheSize buffer. The returned Key/Value still
// carry trailing zero padding if the original was shorter than its slot
// — there is no length field to recover the true boundary, which is the
// same ambiguity the compact codec has always carried.
func (NetcacheCodec) Decode(buf []byte) (*NetcachePacket, error) {
	if len(buf) < NetcacheSize {
		return nil, ErrTruncated
	}
	if Identifier(binary.BigEndian.Uint16(buf[0:2])) != IdentCompact {
		return nil, ErrBadIdentifier
	}
	pkt := &NetcachePacket{
		Op:    NetcacheOp(buf[2]),
		Key:   append([]byte(nil), buf[3:3+NetcacheKeySize]...),
		Value: append([]byte(nil), buf[3+NetcacheKeySize:NetcacheSize]...),
	}
	return pkt, nil
}
