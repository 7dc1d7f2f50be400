package fabric

import "sync"

// StatsSampleRate controls how often a worker's per-request counter
// fires a stats update: one in every StatsSampleRate packets.
const StatsSampleRate = 10

// HKThreshold is the access count, within one epoch, above which an
// unreplicated key's hash is promoted into hot_ukey.
const HKThreshold = 5

// Stats holds the two access-count maps and the hot-key set the
// promotion loop consumes once per epoch, plus the keyhash-to-key-string
// registry the REPLICATION seed message needs — the promotion loop only
// ever sees fingerprints, but the control message to the home server
// must carry the key bytes themselves. All four are guarded by the same
// RWMutex: the epoch snapshot-and-clear takes the write lock.
type Stats struct {
	mu         sync.RWMutex
	ukeyAccess map[uint32]uint32
	rkeyAccess map[uint32]uint32
	hotUkey    map[uint32]struct{}
	ukeyNames  map[uint32][]byte
}

// NewStats returns an empty stats block.
func NewStats() *Stats {
	return &Stats{
		ukeyAccess: make(map[uint32]uint32),
		rkeyAccess: make(map[uint32]uint32),
		hotUkey:    make(map[uint32]struct{}),
		ukeyNames:  make(map[uint32][]byte),
	}
}

// RecordUkeyAccess bumps the unreplicated-key counter for keyhash and
// promotes it into hot_ukey once the count exceeds HKThreshold. key may
// be nil for packets whose payload carried no key string (a reply or
// ack); the name registry keeps the first non-nil key seen this epoch.
//
// The sampled record path takes the write lock, not the read lock: a
// Go map insert is a mutation, so the read-lock-for-samplers split
// only covers lookups like HotUkeyCount.
func (s *Stats) RecordUkeyAccess(keyhash uint32, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ukeyAccess[keyhash]++
	if s.ukeyAccess[keyhash] > HKThreshold {
		s.hotUkey[keyhash] = struct{}{}
	}
	if key != nil {
		if _, ok := s.ukeyNames[keyhash]; !ok {
			s.ukeyNames[keyhash] = append([]byte(nil), key...)
		}
	}
}

// RecordRkeyAccess bumps the replicated-key counter for keyhash, used
// by the promotion loop to find the coldest current member.
func (s *Stats) RecordRkeyAccess(keyhash uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rkeyAccess[keyhash]++
}

// snapshotAndClear returns the current hot-key set, both access-count
// maps, and the key-name registry, then resets all four to empty under
// the same write lock, so the next epoch starts from zero.
func (s *Stats) snapshotAndClear() (hot []uint32, ukeyCounts, rkeyCounts map[uint32]uint32, names map[uint32][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hot = make([]uint32, 0, len(s.hotUkey))
	for k := range s.hotUkey {
		hot = append(hot, k)
	}
	ukeyCounts = s.ukeyAccess
	rkeyCounts = s.rkeyAccess
	names = s.ukeyNames

	s.ukeyAccess = make(map[uint32]uint32)
	s.rkeyAccess = make(map[uint32]uint32)
	s.hotUkey = make(map[uint32]struct{})
	s.ukeyNames = make(map[uint32][]byte)
	return hot, ukeyCounts, rkeyCounts, names
}

// HotUkeyCount reports the current hot-key set size, for admin
// introspection between epochs.
func (s *Stats) HotUkeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hotUkey)
}
