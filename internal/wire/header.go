// Package wire implements the fabric's binary packet formats.
//
// Three request/reply codecs share one outer discriminator (the
// identifier) and one header shape: a "long" codec carrying the full
// coordinator state, a "static" variant of the same shape that differs
// only in how the caller derives keyhash, and a compact "netcache" codec
// that folds a short key/value directly into the header for single-hop
// service from the coordinator. A fourth, narrower codec carries
// control-plane messages between the coordinator and servers.
//
// All multi-byte integers are big-endian. Every Decode validates buffer
// length before touching a field and returns ErrTruncated rather than
// panicking on a short read.
package wire

import "errors"

// Identifier discriminates which codec a packet belongs to. It occupies
// the first two bytes of every packet the fabric sends or receives.
type Identifier uint16

const (
	IdentLong    Identifier = 0x4750 // "long" header, full coordinator state
	IdentStatic  Identifier = 0x1573 // same layout as IdentLong, static keyhash derivation
	IdentCompact Identifier = 0x5039 // netcache in-header codec
	IdentControl Identifier = 0xDEAC // coordinator/server control channel
)

// OpType is the operation carried in a long/static/compact header.
type OpType uint8

const (
	OpGet     OpType = 0x0
	OpPut     OpType = 0x1
	OpDel     OpType = 0x2
	OpRepR    OpType = 0x3 // reply to a read
	OpRepW    OpType = 0x4 // reply to a write
	OpMgrReq  OpType = 0x5
	OpMgrAck  OpType = 0x6
	OpPutFwd  OpType = 0x7
	OpRCReq   OpType = 0x8 // rack-local replication seed request
	OpRCAck   OpType = 0x9 // rack-local replication seed ack, addressed to the coordinator
	OpDec     OpType = 0xF
)

// ControlType discriminates the payload of an IdentControl packet.
type ControlType uint8

const (
	CtrlResetReq    ControlType = 0
	CtrlResetReply  ControlType = 1
	CtrlHKReport    ControlType = 2
	CtrlReplication ControlType = 3
)

// KeyhashMask strips the sign bit so the fingerprint never collides with a
// signed 32-bit interpretation in external tooling.
const KeyhashMask uint32 = 0x7FFFFFFF

// BaseVersion is the sentinel stamped on a store item that has never been
// written.
const BaseVersion uint32 = 1

// HeaderSize is the size in bytes of the long/static header, i.e. the
// offset at which op-specific payload begins. Also called
// PACKET_BASE_SIZE in the wire-protocol literature this fabric follows.
const HeaderSize = 17

var (
	// ErrTruncated is returned by any Decode when the buffer is shorter
	// than the field it is about to read.
	ErrTruncated = errors.New("wire: truncated packet")
	// ErrBadIdentifier is returned when a packet's identifier does not
	// match the codec asked to decode it.
	ErrBadIdentifier = errors.New("wire: identifier mismatch")
	// ErrKeyTooLong is returned by the compact codec's encoder when a key
	// would not fit in its fixed in-header slot. Internal-only: on the
	// wire this collapses into the same generic encode failure a peer
	// sees for any compact-codec rejection.
	ErrKeyTooLong = errors.New("wire: key exceeds compact codec slot")
	// ErrValueTooLong is the value-side counterpart of ErrKeyTooLong.
	ErrValueTooLong = errors.New("wire: value exceeds compact codec slot")
)

// Header is the decoded form of the 17-byte long/static header.
type Header struct {
	Identifier Identifier
	Op         OpType
	Keyhash    uint32
	ClientID   uint8
	ServerID   uint8
	Load       uint16
	Version    uint32
	Reserved   uint16 // wire-present, not interpreted by core logic
}
