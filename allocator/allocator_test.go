package allocator

import "testing"

func TestIntCacheIdentity(t *testing.T) {
	for _, v := range []int64{-128, -1, 0, 1, 1024} {
		if BoxInt(v) != BoxInt(v) {
			t.Fatalf("BoxInt(%d) must be pointer-stable", v)
		}
	}
}

func TestIntCacheBoundary(t *testing.T) {
	// just outside the cached range: still correct, but not guaranteed
	// to be the same pointer across calls.
	a := BoxInt(-129)
	b := BoxInt(-129)
	if *a != *b {
		t.Fatalf("values must match even outside the cache")
	}
	a = BoxInt(1025)
	b = BoxInt(1025)
	if *a != *b {
		t.Fatalf("values must match even outside the cache")
	}
}

func TestRealCacheIdentity(t *testing.T) {
	if BoxReal(0.5) != BoxReal(0.5) {
		t.Fatalf("BoxReal(0.5) must be pointer-stable")
	}
	if BoxReal(10) != BoxReal(10) {
		t.Fatalf("BoxReal(10) must be pointer-stable")
	}
}

func TestArenaResetInvariant(t *testing.T) {
	a := NewArena()
	a.Alloc(64, 8)
	a.Alloc(64, 8)
	if a.GetStats().TotalUsed == 0 {
		t.Fatalf("expected nonzero usage before reset")
	}
	a.Reset()
	if got := a.GetStats().TotalUsed; got != 0 {
		t.Fatalf("expected 0 used after reset, got %d", got)
	}
	// subsequent allocations must succeed and reuse claimed chunks
	a.Alloc(64, 8)
	if len(a.freeChunks) != 0 && len(a.chunks) == 0 {
		t.Fatalf("expected a chunk to have been claimed from the free pool")
	}
}

func TestArenaLargeAllocationPath(t *testing.T) {
	a := NewArena()
	a.Alloc(maxSmallAlloc, 8)
	if a.largeBlocks != 0 {
		t.Fatalf("max_small_alloc must take the small path")
	}
	a.Alloc(maxSmallAlloc+1, 8)
	if a.largeBlocks != 1 {
		t.Fatalf("max_small_alloc+1 must take the large path")
	}
}

func TestDebugAllocatorLogsOperations(t *testing.T) {
	d := NewDebugAllocator(NewArena())
	ptr := d.Alloc(16, 8)
	d.Free(ptr, 16, 8)
	log := d.Log()
	if len(log) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log))
	}
}
