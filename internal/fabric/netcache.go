package fabric

import (
	"sync"

	"github.com/kvfabric/fabric/internal/wire"
)

// NetcacheTable is the coordinator-resident store backing the compact
// codec: entries small enough for the fixed in-header slots are served
// straight from the coordinator without touching a back-end server.
// Keys are the zero-padded 6-byte slot contents — the codec has no
// length field, so padding is part of the identity, exactly as it is on
// the wire.
type NetcacheTable struct {
	mu      sync.RWMutex
	entries map[[wire.NetcacheKeySize]byte][wire.NetcacheValueSize]byte
}

// NewNetcacheTable returns an empty table.
func NewNetcacheTable() *NetcacheTable {
	return &NetcacheTable{
		entries: make(map[[wire.NetcacheKeySize]byte][wire.NetcacheValueSize]byte),
	}
}

// Serve handles one decoded compact packet and returns the reply to
// send back, or nil when the packet is not a request (a stray reply
// echoed at the coordinator is dropped, mirroring the long data plane's
// silent-drop rule for packets it has no case for).
func (t *NetcacheTable) Serve(pkt *wire.NetcachePacket) *wire.NetcachePacket {
	var key [wire.NetcacheKeySize]byte
	copy(key[:], pkt.Key)

	switch pkt.Op {
	case wire.NetcacheRead:
		t.mu.RLock()
		val, ok := t.entries[key]
		t.mu.RUnlock()
		if !ok {
			// Miss: an all-zero value slot under the plain reply op. The
			// compact codec carries no result field, so absence is
			// signalled the only way the wire shape allows.
			return &wire.NetcachePacket{Op: wire.NetcacheRepR, Key: key[:]}
		}
		return &wire.NetcachePacket{Op: wire.NetcacheCacheHit, Key: key[:], Value: val[:]}

	case wire.NetcacheWrite:
		var val [wire.NetcacheValueSize]byte
		copy(val[:], pkt.Value)
		t.mu.Lock()
		t.entries[key] = val
		t.mu.Unlock()
		return &wire.NetcachePacket{Op: wire.NetcacheRepW, Key: key[:], Value: val[:]}

	default:
		return nil
	}
}

// Len reports how many entries the table currently holds, for the admin
// surface.
func (t *NetcacheTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
