// Package fabric implements the coordinator-owned singleton: the global
// version counter, the R-set, and the access statistics, bundled so
// every data-plane worker shares one reference.
package fabric

import "sync/atomic"

// MaxReplicas bounds the fixed-capacity replica array inside an
// RSetData. It doubles as the bitmap width, so it cannot exceed 32.
const MaxReplicas = 32

// RSetData is the per-key replica-set state held by the coordinator: the
// highest acknowledged version, and the set of server ids known to hold
// a copy at that version, represented as a fixed array plus a bitmap for
// O(1) idempotent membership tests.
//
// All fields are relaxed atomics. Insert is lock-free and idempotent; a
// racing insert of the same replica id is a no-op because the bit was
// already set. Reset is not atomic with a concurrent insert — a losing
// insert at a stale version is harmless, since the next ack at the new
// version repopulates the set.
type RSetData struct {
	verCompleted atomic.Uint32
	bitmap       atomic.Uint32
	size         atomic.Uint32
	replicas     [MaxReplicas]atomic.Uint32
	selectIdx    atomic.Uint32
}

// NewRSetData creates a fresh entry seeded with only the home server as
// a member, ver_completed 0.
func NewRSetData(home uint8) *RSetData {
	r := &RSetData{}
	r.Insert(home)
	return r
}

// Insert adds serverID to the replica set if it is not already a
// member. It returns true iff the id was newly added. An insert that
// would exceed MaxReplicas is clamped to a no-op even though its bit
// may already have been set by a racing insert — size is the source of
// truth for membership count.
func (r *RSetData) Insert(serverID uint8) bool {
	if int(serverID) >= MaxReplicas {
		return false
	}
	bit := uint32(1) << uint32(serverID)
	var old uint32
	for {
		old = r.bitmap.Load()
		if r.bitmap.CompareAndSwap(old, old|bit) {
			break
		}
	}
	if old&bit != 0 {
		return false // already a member
	}
	for {
		sz := r.size.Load()
		if sz >= MaxReplicas {
			return false
		}
		if r.size.CompareAndSwap(sz, sz+1) {
			r.replicas[sz].Store(uint32(serverID))
			return true
		}
	}
}

// Reset clears the replica set to just serverID at a new completed
// version. Called when a reply/ack carries a strictly greater version
// than ver_completed.
func (r *RSetData) Reset(version uint32, serverID uint8) {
	r.verCompleted.Store(version)
	r.bitmap.Store(0)
	r.size.Store(0)
	r.Insert(serverID)
}

// VerCompleted returns the highest version for which a write has been
// acknowledged.
func (r *RSetData) VerCompleted() uint32 {
	return r.verCompleted.Load()
}

// Size returns the current replica count.
func (r *RSetData) Size() int {
	return int(r.size.Load())
}

// Bitmap returns the raw membership bitmap, exposed for the popcount
// popcount invariant tests and for admin introspection.
func (r *RSetData) Bitmap() uint32 {
	return r.bitmap.Load()
}

// Replicas returns a snapshot of the current member server ids in
// array order. Order is unspecified beyond "stable for this snapshot" —
// Select() is modular, so relative array order never matters to
// correctness.
func (r *RSetData) Replicas() []uint8 {
	sz := r.Size()
	out := make([]uint8, sz)
	for i := 0; i < sz; i++ {
		out[i] = uint8(r.replicas[i].Load())
	}
	return out
}

// Select picks the next replica: a round-robin cursor chooses
// replicas[cursor mod size]. The cursor is shared by every caller of
// this RSetData rather than kept per-goroutine — one contended cache
// line per hot key, in exchange for a strictly even rotation.
func (r *RSetData) Select() uint8 {
	sz := uint32(r.Size())
	if sz == 0 {
		return 0
	}
	idx := r.selectIdx.Add(1) - 1
	return uint8(r.replicas[idx%sz].Load())
}
