package pcache

import (
	"testing"
	"time"
)

func TestEvictorReclaimsLeastRecentlyUsed(t *testing.T) {
	var reclaimed []uint64
	ev, err := newEvictor("100B", func(h uint64) { reclaimed = append(reclaimed, h) })
	if err != nil {
		t.Fatalf("newEvictor: %v", err)
	}

	ev.touch(1, 40)
	ev.touch(2, 40)
	if len(reclaimed) != 0 {
		t.Fatalf("expected no eviction yet, got %v", reclaimed)
	}

	// pushes total to 120 > 100 budget; hash 1 is least recently touched
	ev.touch(3, 40)
	if len(reclaimed) != 1 || reclaimed[0] != 1 {
		t.Fatalf("expected hash 1 evicted first, got %v", reclaimed)
	}
}

func TestEvictorTouchRefreshesRecency(t *testing.T) {
	var reclaimed []uint64
	ev, err := newEvictor("100B", func(h uint64) { reclaimed = append(reclaimed, h) })
	if err != nil {
		t.Fatalf("newEvictor: %v", err)
	}

	ev.touch(1, 30)
	ev.touch(2, 30)
	ev.touch(1, 30) // re-touch 1 so it is now more recent than 2
	ev.touch(3, 50) // total would be 110 (re-touch replaced 1's size); evict least recent (2)

	if len(reclaimed) != 1 || reclaimed[0] != 2 {
		t.Fatalf("expected hash 2 evicted after re-touching 1, got %v", reclaimed)
	}
}

func TestEvictorResetClearsState(t *testing.T) {
	var reclaimed []uint64
	ev, err := newEvictor("1MiB", func(h uint64) { reclaimed = append(reclaimed, h) })
	if err != nil {
		t.Fatalf("newEvictor: %v", err)
	}
	ev.touch(1, 10)
	ev.reset()
	if ev.total != 0 || ev.tree.Len() != 0 {
		t.Fatalf("expected reset to clear tracked state")
	}
}

func TestEvictorBudgetParsing(t *testing.T) {
	ev, err := newEvictor("1KiB", func(uint64) {})
	if err != nil {
		t.Fatalf("newEvictor: %v", err)
	}
	if ev.budget != 1024 {
		t.Fatalf("expected 1024 byte budget, got %d", ev.budget)
	}
}

func TestNowIsOverridableForDeterministicOrdering(t *testing.T) {
	orig := now
	defer func() { now = orig }()
	base := time.Unix(1000, 0)
	now = func() time.Time { return base }

	var reclaimed []uint64
	ev, _ := newEvictor("50B", func(h uint64) { reclaimed = append(reclaimed, h) })
	ev.touch(1, 30)
	now = func() time.Time { return base.Add(time.Second) }
	ev.touch(2, 30)

	if len(reclaimed) != 1 || reclaimed[0] != 1 {
		t.Fatalf("expected deterministic LRU order under fixed clock, got %v", reclaimed)
	}
}
