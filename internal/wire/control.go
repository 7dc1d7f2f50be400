package wire

import "encoding/binary"

// HKEntry is one keyhash/load pair carried by an HK_REPORT control
// message.
type HKEntry struct {
	Keyhash uint32
	Load    uint16
}

// ControlMessage is the payload of an IdentControl packet: the
// coordinator/server out-of-band channel used for store resets, hot-key
// reporting, and rack-local replication seeding.
type ControlMessage struct {
	Type    ControlType
	Keyhash uint32    // REPLICATION
	Key     []byte    // REPLICATION
	Entries []HKEntry // HK_REPORT
}

// ControlCodec implements the 0xDEAC control channel.
type ControlCodec struct{}

const controlHeaderSize = 2 + 1 // identifier + type

// Encode serialises msg into a freshly sized buffer.
func (ControlCodec) Encode(msg *ControlMessage) ([]byte, error) {
	var size int
	switch msg.Type {
	case CtrlResetReq, CtrlResetReply:
		size = controlHeaderSize
	case CtrlHKReport:
		size = controlHeaderSize + 2 + len(msg.Entries)*6
	case CtrlReplication:
		size = controlHeaderSize + 4 + 2 + len(msg.Key)
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(IdentControl))
	buf[2] = byte(msg.Type)

	switch msg.Type {
	case CtrlHKReport:
		binary.BigEndian.PutUint16(buf[3:5], uint16(len(msg.Entries)))
		off := 5
		for _, e := range msg.Entries {
			binary.BigEndian.PutUint32(buf[off:off+4], e.Keyhash)
			binary.BigEndian.PutUint16(buf[off+4:off+6], e.Load)
			off += 6
		}
	case CtrlReplication:
		binary.BigEndian.PutUint32(buf[3:7], msg.Keyhash&KeyhashMask)
		binary.BigEndian.PutUint16(buf[7:9], uint16(len(msg.Key)))
		copy(buf[9:], msg.Key)
	}
	return buf, nil
}

// Decode parses an IdentControl buffer.
func (ControlCodec) Decode(buf []byte) (*ControlMessage, error) {
	if len(buf) < controlHeaderSize {
		return nil, ErrTruncated
	}
	if Identifier(binary.BigEndian.Uint16(buf[0:2])) != IdentControl {
		return nil, ErrBadIdentifier
	}
	msg := &ControlMessage{Type: ControlType(buf[2])}

	switch msg.Type {
	case CtrlResetReq, CtrlResetReply:
		return msg, nil
	case CtrlHKReport:
		if len(buf) < 5 {
			return nil, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(buf[3:5]))
		off := 5
		if len(buf) < off+n*6 {
			return nil, ErrTruncated
		}
		msg.Entries = make([]HKEntry, n)
		for i := 0; i < n; i++ {
			msg.Entries[i] = HKEntry{
				Keyhash: binary.BigEndian.Uint32(buf[off : off+4]),
				Load:    binary.BigEndian.Uint16(buf[off+4 : off+6]),
			}
			off += 6
		}
		return msg, nil
	case CtrlReplication:
		if len(buf) < 9 {
			return nil, ErrTruncated
		}
		msg.Keyhash = binary.BigEndian.Uint32(buf[3:7]) & KeyhashMask
		keyLen := int(binary.BigEndian.Uint16(buf[7:9]))
		if len(buf) < 9+keyLen {
			return nil, ErrTruncated
		}
		msg.Key = append([]byte(nil), buf[9:9+keyLen]...)
		return msg, nil
	default:
		return nil, ErrBadIdentifier
	}
}
