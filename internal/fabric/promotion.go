package fabric

import "sort"

// PromotedKey is one key newly admitted to the R-set by an epoch: its
// fingerprint plus the key bytes the REPLICATION seed message to the
// home server must carry. Key may be nil if no sampled access this
// epoch carried the key string (an ack-only epoch); callers skip the
// seed for such entries. A later epoch does not seed them either: the
// key is already a member, so the promotion loop never admits it again.
type PromotedKey struct {
	Keyhash uint32
	Key     []byte
	Home    uint8
}

// PromotionEpoch is the result of one control-plane sweep: the keys
// newly admitted to the R-set (each needs a REPLICATION control message
// dispatched to its home server) and the keyhashes evicted.
type PromotionEpoch struct {
	Added   []PromotedKey
	Evicted []uint32
}

// RunPromotionEpoch executes one iteration of the control-plane loop:
// snapshot and clear the access counters, rank hot unreplicated keys
// against the coldest current members, and admit as many hot keys as
// the R-set has room for, evicting a cold member for every hot key that
// outranks it once the budget is exhausted.
//
// homeFor maps a keyhash to the server id that should seed a new
// RSetData — the coordinator's deployment-wide key-to-home assignment,
// not something Fabric itself computes.
func (f *Fabric) RunPromotionEpoch(homeFor func(keyhash uint32) uint8) PromotionEpoch {
	hot, ukeyCounts, rkeyCounts, names := f.stats.snapshotAndClear()

	if f.owns != nil {
		// Multi-coordinator sharding: this replica only promotes keys in
		// its own partition of the keyhash space.
		kept := hot[:0]
		for _, kh := range hot {
			if f.owns(kh) {
				kept = append(kept, kh)
			}
		}
		hot = kept
	}

	sort.Slice(hot, func(i, j int) bool {
		return ukeyCounts[hot[i]] > ukeyCounts[hot[j]]
	})

	type member struct {
		keyhash uint32
		count   uint32
	}
	var cold []member
	f.rset.Range(func(keyhash uint32, _ *RSetData) bool {
		cold = append(cold, member{keyhash, rkeyCounts[keyhash]})
		return true
	})
	sort.Slice(cold, func(i, j int) bool { return cold[i].count < cold[j].count })

	var epoch PromotionEpoch
	coldIdx := 0

	for _, kh := range hot {
		home := homeFor(kh)
		if f.rset.Len() < MaxRSetSize {
			if f.admit(kh, home) {
				epoch.Added = append(epoch.Added, PromotedKey{Keyhash: kh, Key: names[kh], Home: home})
			}
			continue
		}
		if coldIdx >= len(cold) {
			break
		}
		if ukeyCounts[kh] <= cold[coldIdx].count {
			// Sorted descending by hot count and ascending by cold
			// count: once the current hot candidate can't beat the
			// coldest remaining member, no later candidate can either.
			break
		}
		f.rset.Remove(cold[coldIdx].keyhash)
		epoch.Evicted = append(epoch.Evicted, cold[coldIdx].keyhash)
		coldIdx++
		if f.admit(kh, home) {
			epoch.Added = append(epoch.Added, PromotedKey{Keyhash: kh, Key: names[kh], Home: home})
		}
	}

	return epoch
}

// admit inserts a fresh RSetData for keyhash if one is not already
// present, returning whether it was newly created.
func (f *Fabric) admit(keyhash uint32, home uint8) bool {
	_, created := f.rset.Add(keyhash, home)
	return created
}
