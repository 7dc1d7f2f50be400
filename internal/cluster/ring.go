// Package cluster tracks the coordinator's deployment topology:
//
//   - Sharding the keyhash space across coordinator replicas
//   - Rack/node membership within the fabric
//
// Big idea:
//
// A multi-coordinator deployment must decide:
//
//	"Which coordinator replica owns the control plane for this key?"
//
// This file implements consistent hashing to answer that question
// without reshuffling most keys whenever a replica joins or leaves.
// Only the data-plane socket that actually received a packet ever
// touches that packet; this ring exists purely to keep hot-key
// promotion decisions and admin reporting partitioned across replicas.
package cluster

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"sync"
)

////////////////////////////////////////////////////////////////////////////////
// CONSISTENT HASHING
////////////////////////////////////////////////////////////////////////////////

// Why not just use:  hash(key) % N ?
//
// Because if a replica is added or removed:
//     → Almost ALL keys get remapped.
//     → Every in-flight promotion decision lands on the wrong owner.
//     → System instability.
//
// Instead, we use consistent hashing.
//
// Core idea:
//
// 1) Imagine a circle (a ring) of numbers from 0 → 2^32.
// 2) Each replica is placed on this ring using a hash.
// 3) Each keyhash, once mixed (see ShardFor), is also a position on the same ring.
// 4) A key belongs to the first replica clockwise from its position.
//
// If a replica is added or removed:
//     → Only nearby keys move.
//     → On average, only 1/N of keys are affected.
//     → Much more stable.
//
// This is what real systems like Cassandra and Dynamo use.

// Virtual nodes:
//
// If we put only 1 position per replica,
// load can become uneven.
//
// So we create many "virtual nodes" per replica.
// Each replica appears multiple times on the ring.
// This spreads its ownership more evenly.
//
// Typical range: 100–200 virtual nodes per replica.
const defaultVnodes = 150

////////////////////////////////////////////////////////////////////////////////
// RING STRUCTURE
////////////////////////////////////////////////////////////////////////////////

// Ring represents the consistent hash ring.
//
// It is safe for concurrent use.
//
// Fields:
//
//	mu     → protects all ring state
//	vnodes → number of virtual nodes per replica
//	ring   → maps ring position → replica id
//	sorted → sorted list of positions (for binary search)
//
// Why do we store `sorted`?
//
// Because we need fast lookup of:
//
//	"first position >= keyhash"
//
// We use binary search on this sorted slice.
type Ring struct {
	mu     sync.RWMutex
	vnodes int
	ring   map[uint32]string
	sorted []uint32
}

////////////////////////////////////////////////////////////////////////////////
// CONSTRUCTOR
////////////////////////////////////////////////////////////////////////////////

// NewRing creates an empty hash ring.
//
// If vnodes <= 0, we use a sensible default.
// More vnodes → better load balance (but slightly more memory).
func NewRing(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	return &Ring{
		vnodes: vnodes,
		ring:   make(map[uint32]string),
	}
}

////////////////////////////////////////////////////////////////////////////////
// REPLICA MANAGEMENT
////////////////////////////////////////////////////////////////////////////////

// AddNode adds a coordinator replica to the ring.
//
// Steps:
//  1. Lock (write lock)
//  2. For i = 0 → vnodes
//  3. Hash "replicaID#i" to generate virtual position
//  4. Insert into ring map
//  5. Rebuild sorted positions
//
// Why "replicaID#i"?
//
// So each virtual node hashes to a different position.
func (r *Ring) AddNode(replicaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.vnodes; i++ {
		pos := r.hash(fmt.Sprintf("%s#%d", replicaID, i))
		r.ring[pos] = replicaID
	}
	r.rebuild()
}

// RemoveNode removes a coordinator replica.
//
// We must remove ALL its virtual nodes.
// Then rebuild the sorted slice.
func (r *Ring) RemoveNode(replicaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.vnodes; i++ {
		pos := r.hash(fmt.Sprintf("%s#%d", replicaID, i))
		delete(r.ring, pos)
	}
	r.rebuild()
}

////////////////////////////////////////////////////////////////////////////////
// KEYHASH SHARDING
////////////////////////////////////////////////////////////////////////////////

// ShardFor returns the coordinator replica responsible for the
// control-plane state of keyhash. It does not rehash through sha256;
// the keyhash goes through a cheap 32-bit integer mixer instead, because
// DJBX33A values of short or similar keys sit close together and, used
// raw as ring positions, would all land on one replica. This is the
// function the promotion loop and the admin surface call to decide
// whether a given key belongs to this replica's shard.
func (r *Ring) ShardFor(keyhash uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sorted) == 0 {
		return ""
	}
	pos := keyhash
	pos ^= pos >> 16
	pos *= 0x85ebca6b
	pos ^= pos >> 13
	pos *= 0xc2b2ae35
	pos ^= pos >> 16
	idx := r.search(pos)
	return r.ring[r.sorted[idx]]
}

////////////////////////////////////////////////////////////////////////////////
// INTERNAL HELPERS
////////////////////////////////////////////////////////////////////////////////

// hash converts a string into a 32-bit ring position.
//
// Why sha256?
//
// We want:
//   - Even distribution
//   - Low collision probability
//
// We only use the first 4 bytes (32 bits)
// because our ring is 2^32 in size.
func (r *Ring) hash(s string) uint32 {
	h := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint32(h[:4])
}

// rebuild reconstructs the sorted slice of ring positions.
//
// We must call this after:
//   - Adding a replica
//   - Removing a replica
//
// Why?
// Because binary search requires sorted data.
func (r *Ring) rebuild() {
	r.sorted = make([]uint32, 0, len(r.ring))
	for pos := range r.ring {
		r.sorted = append(r.sorted, pos)
	}
	slices.Sort(r.sorted)
}

// search finds the index of the first ring position >= pos.
//
// If all positions are smaller,
// we wrap around to index 0.
//
// This gives us circular (ring) behavior.
func (r *Ring) search(pos uint32) int {
	idx := sort.Search(len(r.sorted), func(i int) bool {
		return r.sorted[i] >= pos
	})

	// Wrap-around case.
	if idx == len(r.sorted) {
		idx = 0
	}
	return idx
}
