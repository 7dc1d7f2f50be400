package fabric

import "testing"

func TestStatsPromotesAfterThreshold(t *testing.T) {
	s := NewStats()
	for i := 0; i < HKThreshold; i++ {
		s.RecordUkeyAccess(99, []byte("k"))
	}
	if s.HotUkeyCount() != 0 {
		t.Fatal("key should not be hot until the count exceeds the threshold")
	}
	s.RecordUkeyAccess(99, []byte("k"))
	if s.HotUkeyCount() != 1 {
		t.Fatal("key should become hot once the count exceeds the threshold")
	}
}

func TestStatsSnapshotAndClearResets(t *testing.T) {
	s := NewStats()
	for i := 0; i <= HKThreshold; i++ {
		s.RecordUkeyAccess(1, []byte("one"))
	}
	s.RecordRkeyAccess(2)

	hot, ukeyCounts, rkeyCounts, names := s.snapshotAndClear()
	if len(hot) != 1 || hot[0] != 1 {
		t.Fatalf("expected hot set {1}, got %v", hot)
	}
	if ukeyCounts[1] != HKThreshold+1 {
		t.Fatalf("expected count %d, got %d", HKThreshold+1, ukeyCounts[1])
	}
	if rkeyCounts[2] != 1 {
		t.Fatalf("expected rkey count 1, got %d", rkeyCounts[2])
	}
	if string(names[1]) != "one" {
		t.Fatalf("expected key name %q recorded, got %q", "one", names[1])
	}
	if s.HotUkeyCount() != 0 {
		t.Fatal("hot set should be empty after snapshotAndClear")
	}

	hot2, ukeyCounts2, _, names2 := s.snapshotAndClear()
	if len(hot2) != 0 || len(ukeyCounts2) != 0 || len(names2) != 0 {
		t.Fatal("second epoch should start from zero")
	}
}

func TestStatsNilKeyLeavesRegistryEmpty(t *testing.T) {
	s := NewStats()
	s.RecordUkeyAccess(7, nil)
	s.RecordUkeyAccess(7, []byte("late"))

	_, _, _, names := s.snapshotAndClear()
	if string(names[7]) != "late" {
		t.Fatalf("expected the first non-nil key to win, got %q", names[7])
	}
}
