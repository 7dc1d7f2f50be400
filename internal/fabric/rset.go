package fabric

import (
	"sync"
	"sync/atomic"
)

// MaxRSetSize is the control plane's cap on the number of keys the
// coordinator will actively replicate at once.
const MaxRSetSize = 4096

// RSet is the coordinator's concurrent map from keyhash to RSetData.
// Reads and inserts happen from every data-plane worker; erase happens
// only from the promotion loop, so sync.Map's read-mostly design fits
// directly.
type RSet struct {
	m     sync.Map
	count atomic.Int32
}

// NewRSet returns an empty R-set.
func NewRSet() *RSet {
	return &RSet{}
}

// Get looks up the replica-set entry for keyhash.
func (r *RSet) Get(keyhash uint32) (*RSetData, bool) {
	v, ok := r.m.Load(keyhash)
	if !ok {
		return nil, false
	}
	return v.(*RSetData), true
}

// Add inserts a fresh entry seeded with home if keyhash has no entry
// yet. It returns the (possibly pre-existing) entry and whether it was
// newly created.
func (r *RSet) Add(keyhash uint32, home uint8) (*RSetData, bool) {
	data := NewRSetData(home)
	actual, loaded := r.m.LoadOrStore(keyhash, data)
	if !loaded {
		r.count.Add(1)
		return data, true
	}
	return actual.(*RSetData), false
}

// Remove erases keyhash's entry, if present.
func (r *RSet) Remove(keyhash uint32) {
	if _, ok := r.m.LoadAndDelete(keyhash); ok {
		r.count.Add(-1)
	}
}

// Len returns the number of keys currently tracked.
func (r *RSet) Len() int {
	return int(r.count.Load())
}

// Range walks every (keyhash, *RSetData) pair. The callback must not
// block or call back into RSet.
func (r *RSet) Range(fn func(keyhash uint32, data *RSetData) bool) {
	r.m.Range(func(k, v any) bool {
		return fn(k.(uint32), v.(*RSetData))
	})
}
