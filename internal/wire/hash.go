package wire

// Keyhash computes the fabric's key fingerprint: a DJBX33A hash seeded at
// 5381, masked to the low 31 bits so the value never collides with a
// signed interpretation of the same 32-bit word in external tooling.
//
// This is not collision resistant and is not meant to be — two distinct
// keys that hash identically will legitimately share one R-set entry.
// That is a known, accepted property of the fingerprint, not a bug to be
// fixed here.
func Keyhash(key []byte) uint32 {
	var h uint32 = 5381
	for _, c := range key {
		h = ((h << 5) + h) + uint32(c)
	}
	return h & KeyhashMask
}
