package wire

import "encoding/binary"

// ResultCode is carried in a Reply payload.
type ResultCode uint8

const (
	ResultOK       ResultCode = 0
	ResultNotFound ResultCode = 1
)

// Request is the payload of GET/PUT/DEL/PUT_FWD packets.
type Request struct {
	ReqID   uint32
	ReqTime uint32
	InnerOp OpType
	Key     []byte
	Value   []byte // nil for GET and for DEL carrying no body
}

// Reply is the payload of REP_R/REP_W packets.
type Reply struct {
	ReqID   uint32
	ReqTime uint32
	InnerOp OpType
	Result  ResultCode
	Value   []byte
}

// ReplicationRequest is the payload of RC_REQ packets: the rack-local
// seed push from a home server to its rack peers.
type ReplicationRequest struct {
	Key   []byte
	Value []byte
}

// Packet is a fully decoded long/static-header packet: the fixed header
// plus whichever payload its Op implies. Exactly one of Request, Reply,
// or Replication is non-nil, except for MGR_REQ, MGR_ACK, RC_ACK, and DEC,
// which carry the header alone.
type Packet struct {
	Header      Header
	Request     *Request
	Reply       *Reply
	Replication *ReplicationRequest
}

// LongCodec implements the long and static-hash wire variants, which
// share a byte layout and differ only in how a caller derives Keyhash
// before handing a packet to Encode.
type LongCodec struct {
	Ident Identifier // IdentLong or IdentStatic
}

func hasRequestPayload(op OpType) bool {
	switch op {
	case OpGet, OpPut, OpDel, OpPutFwd:
		return true
	default:
		return false
	}
}

func hasReplyPayload(op OpType) bool {
	return op == OpRepR || op == OpRepW
}

func hasReplicationPayload(op OpType) bool {
	return op == OpRCReq
}

// Encode serialises pkt into a freshly allocated buffer sized to the sum
// of the fixed header and whatever variable-length payload the packet's
// Op carries.
func (c LongCodec) Encode(pkt *Packet) ([]byte, error) {
	size := HeaderSize
	switch {
	case hasRequestPayload(pkt.Header.Op) && pkt.Request != nil:
		size += requestPayloadSize(pkt.Request)
	case hasReplyPayload(pkt.Header.Op) && pkt.Reply != nil:
		size += replyPayloadSize(pkt.Reply)
	case hasReplicationPayload(pkt.Header.Op) && pkt.Replication != nil:
		size += replicationPayloadSize(pkt.Replication)
	}

	buf := make([]byte, size)
	h := pkt.Header
	h.Identifier = c.Ident
	putHeader(buf, h)

	switch {
	case hasRequestPayload(pkt.Header.Op) && pkt.Request != nil:
		putRequest(buf[HeaderSize:], pkt.Request)
	case hasReplyPayload(pkt.Header.Op) && pkt.Reply != nil:
		putReply(buf[HeaderSize:], pkt.Reply)
	case hasReplicationPayload(pkt.Header.Op) && pkt.Replication != nil:
		putReplication(buf[HeaderSize:], pkt.Replication)
	}
	return buf, nil
}

// Decode parses buf into a Packet. It validates the identifier and every
// variable-length field's bounds before reading it; a truncated or
// mismatched-identifier buffer yields an error rather than a partially
// populated Packet.
func (c LongCodec) Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	h := getHeader(buf)
	if h.Identifier != c.Ident {
		return nil, ErrBadIdentifier
	}

	pkt := &Packet{Header: h}
	body := buf[HeaderSize:]

	switch {
	case hasRequestPayload(h.Op):
		req, err := getRequest(body)
		if err != nil {
			return nil, err
		}
		pkt.Request = req
	case hasReplyPayload(h.Op):
		rep, err := getReply(body)
		if err != nil {
			return nil, err
		}
		pkt.Reply = rep
	case hasReplicationPayload(h.Op):
		rr, err := getReplication(body)
		if err != nil {
			return nil, err
		}
		pkt.Replication = rr
	}
	return pkt, nil
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Identifier))
	buf[2] = byte(h.Op)
	binary.BigEndian.PutUint32(buf[3:7], h.Keyhash&KeyhashMask)
	buf[7] = h.ClientID
	buf[8] = h.ServerID
	binary.BigEndian.PutUint16(buf[9:11], h.Load)
	binary.BigEndian.PutUint32(buf[11:15], h.Version)
	binary.BigEndian.PutUint16(buf[15:17], h.Reserved)
}

func getHeader(buf []byte) Header {
	return Header{
		Identifier: Identifier(binary.BigEndian.Uint16(buf[0:2])),
		Op:         OpType(buf[2]),
		Keyhash:    binary.BigEndian.Uint32(buf[3:7]) & KeyhashMask,
		ClientID:   buf[7],
		ServerID:   buf[8],
		Load:       binary.BigEndian.Uint16(buf[9:11]),
		Version:    binary.BigEndian.Uint32(buf[11:15]),
		Reserved:   binary.BigEndian.Uint16(buf[15:17]),
	}
}

func requestPayloadSize(r *Request) int {
	size := 4 + 4 + 1 + 2 + len(r.Key)
	if r.Value != nil {
		size += 2 + len(r.Value)
	}
	return size
}

func putRequest(buf []byte, r *Request) {
	binary.BigEndian.PutUint32(buf[0:4], r.ReqID)
	binary.BigEndian.PutUint32(buf[4:8], r.ReqTime)
	buf[8] = byte(r.InnerOp)
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(r.Key)))
	off := 11
	copy(buf[off:], r.Key)
	off += len(r.Key)
	if r.Value != nil {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(r.Value)))
		off += 2
		copy(buf[off:], r.Value)
	}
}

func getRequest(buf []byte) (*Request, error) {
	if len(buf) < 11 {
		return nil, ErrTruncated
	}
	r := &Request{
		ReqID:   binary.BigEndian.Uint32(buf[0:4]),
		ReqTime: binary.BigEndian.Uint32(buf[4:8]),
		InnerOp: OpType(buf[8]),
	}
	keyLen := int(binary.BigEndian.Uint16(buf[9:11]))
	off := 11
	if len(buf) < off+keyLen {
		return nil, ErrTruncated
	}
	r.Key = append([]byte(nil), buf[off:off+keyLen]...)
	off += keyLen

	if off == len(buf) {
		return r, nil
	}
	if len(buf) < off+2 {
		return nil, ErrTruncated
	}
	valLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf) < off+valLen {
		return nil, ErrTruncated
	}
	r.Value = append([]byte(nil), buf[off:off+valLen]...)
	return r, nil
}

func replyPayloadSize(r *Reply) int {
	return 4 + 4 + 1 + 1 + 2 + len(r.Value)
}

func putReply(buf []byte, r *Reply) {
	binary.BigEndian.PutUint32(buf[0:4], r.ReqID)
	binary.BigEndian.PutUint32(buf[4:8], r.ReqTime)
	buf[8] = byte(r.InnerOp)
	buf[9] = byte(r.Result)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(r.Value)))
	copy(buf[12:], r.Value)
}

func getReply(buf []byte) (*Reply, error) {
	if len(buf) < 12 {
		return nil, ErrTruncated
	}
	r := &Reply{
		ReqID:   binary.BigEndian.Uint32(buf[0:4]),
		ReqTime: binary.BigEndian.Uint32(buf[4:8]),
		InnerOp: OpType(buf[8]),
		Result:  ResultCode(buf[9]),
	}
	valLen := int(binary.BigEndian.Uint16(buf[10:12]))
	if len(buf) < 12+valLen {
		return nil, ErrTruncated
	}
	r.Value = append([]byte(nil), buf[12:12+valLen]...)
	return r, nil
}

func replicationPayloadSize(r *ReplicationRequest) int {
	return 2 + len(r.Key) + 2 + len(r.Value)
}

func putReplication(buf []byte, r *ReplicationRequest) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(r.Key)))
	off := 2
	copy(buf[off:], r.Key)
	off += len(r.Key)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(r.Value)))
	off += 2
	copy(buf[off:], r.Value)
}

func getReplication(buf []byte) (*ReplicationRequest, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	keyLen := int(binary.BigEndian.Uint16(buf[0:2]))
	off := 2
	if len(buf) < off+keyLen+2 {
		return nil, ErrTruncated
	}
	key := append([]byte(nil), buf[off:off+keyLen]...)
	off += keyLen
	valLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf) < off+valLen {
		return nil, ErrTruncated
	}
	val := append([]byte(nil), buf[off:off+valLen]...)
	return &ReplicationRequest{Key: key, Value: val}, nil
}
