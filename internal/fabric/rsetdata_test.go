package fabric

import (
	"math/bits"
	"sync"
	"testing"
)

func TestRSetDataSeedsHomeOnly(t *testing.T) {
	r := NewRSetData(3)
	if r.Size() != 1 {
		t.Fatalf("expected size 1, got %d", r.Size())
	}
	if got := r.Select(); got != 3 {
		t.Fatalf("expected home server 3, got %d", got)
	}
}

func TestRSetDataInsertIdempotent(t *testing.T) {
	r := NewRSetData(0)
	if r.Insert(0) {
		t.Fatal("re-inserting an existing member should be a no-op")
	}
	if r.Size() != 1 {
		t.Fatalf("size should stay 1, got %d", r.Size())
	}
	if !r.Insert(5) {
		t.Fatal("inserting a new member should report true")
	}
	if r.Size() != 2 {
		t.Fatalf("size should be 2, got %d", r.Size())
	}
}

func TestRSetDataSizeMatchesPopcount(t *testing.T) {
	r := NewRSetData(1)
	r.Insert(2)
	r.Insert(4)
	r.Insert(2) // duplicate, ignored
	if got, want := r.Size(), bits.OnesCount32(r.Bitmap()); got != want {
		t.Fatalf("size %d does not match bitmap popcount %d", got, want)
	}
	if r.Size() != 3 {
		t.Fatalf("expected 3 members, got %d", r.Size())
	}
}

func TestRSetDataResetClearsMembership(t *testing.T) {
	r := NewRSetData(1)
	r.Insert(2)
	r.Insert(3)
	r.Reset(10, 7)
	if r.Size() != 1 {
		t.Fatalf("expected size 1 after reset, got %d", r.Size())
	}
	if r.VerCompleted() != 10 {
		t.Fatalf("expected ver_completed 10, got %d", r.VerCompleted())
	}
	if got := r.Select(); got != 7 {
		t.Fatalf("expected sole member 7, got %d", got)
	}
}

func TestRSetDataSelectRoundRobin(t *testing.T) {
	r := NewRSetData(0)
	r.Insert(1)
	r.Insert(2)

	seen := map[uint8]int{}
	for i := 0; i < 30; i++ {
		seen[r.Select()]++
	}
	for _, id := range []uint8{0, 1, 2} {
		if seen[id] != 10 {
			t.Fatalf("expected even round robin, got %v", seen)
		}
	}
}

func TestRSetDataInsertClampsAtCapacity(t *testing.T) {
	r := &RSetData{}
	for i := 0; i < MaxReplicas; i++ {
		if !r.Insert(uint8(i)) {
			t.Fatalf("expected insert %d to succeed within capacity", i)
		}
	}
	if r.Insert(uint8(MaxReplicas - 1)) {
		t.Fatal("re-inserting an existing id at full capacity should be a no-op")
	}
	if r.Size() != MaxReplicas {
		t.Fatalf("expected size pinned at capacity %d, got %d", MaxReplicas, r.Size())
	}
}

func TestRSetDataInsertConcurrentDistinctIDs(t *testing.T) {
	r := &RSetData{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id uint8) {
			defer wg.Done()
			r.Insert(id)
		}(uint8(i))
	}
	wg.Wait()
	if r.Size() != 16 {
		t.Fatalf("expected 16 distinct members, got %d", r.Size())
	}
	if got, want := r.Size(), bits.OnesCount32(r.Bitmap()); got != want {
		t.Fatalf("size %d does not match popcount %d after concurrent inserts", got, want)
	}
}
