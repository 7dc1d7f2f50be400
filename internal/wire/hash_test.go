package wire

import "testing"

func TestKeyhashMaskedTo31Bits(t *testing.T) {
	h := Keyhash([]byte("some arbitrarily chosen key that hashes high"))
	if h&^KeyhashMask != 0 {
		t.Fatalf("keyhash %x has bits set above the mask", h)
	}
}

func TestKeyhashDeterministic(t *testing.T) {
	a := Keyhash([]byte("hot"))
	b := Keyhash([]byte("hot"))
	if a != b {
		t.Fatalf("keyhash not deterministic: %x != %x", a, b)
	}
}

func TestKeyhashDJBX33A(t *testing.T) {
	// h starts at 5381; for a single-byte key "a" (0x61):
	// h = ((5381<<5)+5381)+0x61 = 177670
	got := Keyhash([]byte("a"))
	want := uint32(177670) & KeyhashMask
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestIPChecksumSelfConsistent(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06, 0x00, 0x00, 0xac, 0x10, 0x0a, 0x63, 0xac, 0x10, 0x0a, 0x0c}
	cksum := IPChecksum(data)
	// Writing the checksum into the checksum field and summing again must
	// yield zero: the defining property of the one's-complement checksum.
	patched := append([]byte(nil), data...)
	patched[10] = byte(cksum >> 8)
	patched[11] = byte(cksum)
	if IPChecksum(patched) != 0 {
		t.Fatalf("checksum did not self-cancel: %x", IPChecksum(patched))
	}
}
