package fabric

import "github.com/kvfabric/fabric/internal/wire"

// ProcessPacket runs the coordinator's per-packet control logic
// against a decoded packet's header, mutating it in place to steer the
// caller's forwarding decision. It assumes the identifier has already
// been validated by the codec that produced pkt — ProcessPacket never
// inspects or rewrites Header.Identifier.
//
// The returned forward flag tells the caller whether to send the
// (possibly mutated) packet onward; toClient selects the destination
// field to use (Header.ClientID when true, Header.ServerID otherwise).
func (w *Worker) ProcessPacket(pkt *wire.Packet) (forward, toClient bool) {
	f := w.fabric
	h := &pkt.Header

	switch h.Op {
	case wire.OpGet:
		if data, ok := f.rset.Get(h.Keyhash); ok {
			h.ServerID = data.Select()
			f.recordAccess(w, h.Keyhash, requestKey(pkt), true)
		} else {
			// No R-set entry: the client already addressed the key's
			// home server, so ServerID passes through untouched.
			f.recordAccess(w, h.Keyhash, requestKey(pkt), false)
		}
		return true, false

	case wire.OpPut, wire.OpDel:
		h.Version = f.version.Add(1)
		if _, ok := f.rset.Get(h.Keyhash); ok {
			// Replicated key: rotate the write across the whole fleet so
			// each server's ack at the new version rebuilds membership.
			h.ServerID = f.servers.Select()
			f.recordAccess(w, h.Keyhash, requestKey(pkt), true)
		} else {
			f.recordAccess(w, h.Keyhash, requestKey(pkt), false)
		}
		return true, false

	case wire.OpRepR, wire.OpRepW:
		// A reply doubles as the server's acknowledgement of the version
		// it now holds: fold it into the R-set before handing the packet
		// back to the client.
		f.applyReplyVersion(h.Keyhash, h.Version, h.ServerID)
		return true, true

	case wire.OpPutFwd:
		// Chain forward: head rack handed a write to the tail rack's
		// corresponding node. The coordinator only routes it onward.
		return true, false

	case wire.OpMgrReq:
		// Coordinator-originated replication fan-out control message;
		// passes through to the target server unchanged.
		return true, false

	case wire.OpMgrAck, wire.OpRCAck:
		f.applyReplyVersion(h.Keyhash, h.Version, h.ServerID)
		return false, false

	case wire.OpDec:
		return true, false

	default:
		return false, false
	}
}

// requestKey extracts the key bytes from a packet's request payload,
// nil when the packet carries none.
func requestKey(pkt *wire.Packet) []byte {
	if pkt.Request == nil {
		return nil
	}
	return pkt.Request.Key
}

// recordAccess updates the sampled stats maps for keyhash, routing to
// rkey_access_count when the key already has an R-set entry or
// ukey_access_count otherwise.
func (f *Fabric) recordAccess(w *Worker, keyhash uint32, key []byte, inRSet bool) {
	if !w.sampled() {
		return
	}
	if inRSet {
		f.stats.RecordRkeyAccess(keyhash)
	} else {
		f.stats.RecordUkeyAccess(keyhash, key)
	}
}

// applyReplyVersion implements the version-arbitration rule shared by
// REP_R/REP_W/MGR_ACK/RC_ACK handling: a strictly greater version
// resets the replica set to just the reporting server; an equal version
// adds the reporting server to the existing set; a lesser version is a
// stale ack and is dropped. A missing R-set entry means the key was
// evicted since the write was issued — the ack is a no-op.
func (f *Fabric) applyReplyVersion(keyhash, version uint32, serverID uint8) {
	data, ok := f.rset.Get(keyhash)
	if !ok {
		return
	}
	completed := data.VerCompleted()
	switch {
	case version > completed:
		data.Reset(version, serverID)
	case version == completed:
		data.Insert(serverID)
	}
}
