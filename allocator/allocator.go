/*
Copyright (C) 2025-2026  jank-core Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package allocator implements the pluggable Allocator Surface: a
// polymorphic allocator interface, an arena allocator, a debug allocator,
// and the boxed integer/real caches. The process-wide "current allocator"
// hook itself lives in package glscope (it is goroutine-local state, not
// allocator-owned).
package allocator

import (
	"fmt"
	"sync"
)

// Stats mirrors an allocator's get_stats() diagnostics.
type Stats struct {
	TotalUsed      int64
	TotalAllocated int64
	AllocCount     int64
	FreeCount      int64
}

// Allocator is the polymorphic value this describes: alloc/free/reset
// plus stats. Implementations must be safe for concurrent use only if the
// caller intends to share them across goroutines -- the default Heap is;
// Arena is not, by design (it is meant to be scoped to one goroutine via
// glscope.WithAllocator).
type Allocator interface {
	Alloc(size, align uintptr) uintptr
	Free(ptr uintptr, size, align uintptr)
	Reset()
	GetStats() Stats
}

// Heap is the default garbage-collected allocator, consulted when no
// goroutine-local allocator is installed. It does not actually manage raw
// memory (Go already garbage collects); it exists to give every
// allocation site a uniform Allocator to call so that installing an Arena
// or DebugAllocator in its place is a drop-in substitution, and to keep
// stats comparable across allocator kinds.
type Heap struct {
	stats   Stats
	statsMu sync.Mutex
}

var DefaultHeap = &Heap{}

func (h *Heap) Alloc(size, align uintptr) uintptr {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats.TotalUsed += int64(size)
	h.stats.TotalAllocated += int64(size)
	h.stats.AllocCount++
	return 0 // the GC heap has no stable address to hand back
}

func (h *Heap) Free(ptr uintptr, size, align uintptr) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats.TotalUsed -= int64(size)
	h.stats.FreeCount++
}

func (h *Heap) Reset() {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats = Stats{}
}

func (h *Heap) GetStats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// maxSmallAlloc is the arena's small/large allocation boundary: an
// allocation of exactly this size still takes the slab path, one byte
// larger falls through to a dedicated heap block.
const maxSmallAlloc = 4096

// chunkSize is the size of each slab the arena carves small allocations
// out of.
const chunkSize = 1 << 20 // 1 MiB

// Arena is a bump allocator over a pool of reusable chunks. Reset() frees
// all live allocations at once and returns the chunks to the pool for
// reuse by the next round -- the "arena reset invariant" of this
type Arena struct {
	mu          sync.Mutex
	chunks      [][]byte // slabs currently backing small allocations
	freeChunks  [][]byte // slabs claimed once, ready for reuse after Reset
	offset      int      // bump offset into chunks[len(chunks)-1]
	largeBlocks int64    // count of allocations that bypassed the slab path
	stats       Stats
}

// NewArena creates an empty arena. The first chunk is claimed lazily on
// first allocation.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) claimChunk() []byte {
	if n := len(a.freeChunks); n > 0 {
		c := a.freeChunks[n-1]
		a.freeChunks = a.freeChunks[:n-1]
		return c
	}
	return make([]byte, chunkSize)
}

func (a *Arena) Alloc(size, align uintptr) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.AllocCount++
	a.stats.TotalAllocated += int64(size)
	a.stats.TotalUsed += int64(size)

	if size > maxSmallAlloc {
		// Large-allocation path: tracked separately, never slab-backed,
		// so Reset() doesn't need to special-case oversized blocks still
		// referenced elsewhere.
		a.largeBlocks++
		buf := make([]byte, size)
		return uintptr(len(buf)) // opaque handle; real impl would pin+return addr
	}

	if len(a.chunks) == 0 || a.offset+int(size) > len(a.chunks[len(a.chunks)-1]) {
		a.chunks = append(a.chunks, a.claimChunk())
		a.offset = 0
	}
	a.offset += int(size)
	return uintptr(a.offset)
}

func (a *Arena) Free(ptr uintptr, size, align uintptr) {
	// Arenas never free individual allocations; only Reset() reclaims.
}

// Reset releases every chunk back to the free pool and zeroes accounting,
// satisfying "after reset(), get_stats().total_used == 0 and subsequent
// allocations reuse previously claimed chunks".
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeChunks = append(a.freeChunks, a.chunks...)
	a.chunks = nil
	a.offset = 0
	a.largeBlocks = 0
	a.stats = Stats{}
}

func (a *Arena) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// DebugAllocator wraps another Allocator and records every call for
// leak/double-free diagnostics.
type DebugAllocator struct {
	inner Allocator
	log   []string
	mu    sync.Mutex
}

func NewDebugAllocator(inner Allocator) *DebugAllocator {
	return &DebugAllocator{inner: inner}
}

func (d *DebugAllocator) Alloc(size, align uintptr) uintptr {
	ptr := d.inner.Alloc(size, align)
	d.mu.Lock()
	d.log = append(d.log, fmt.Sprintf("alloc(size=%d, align=%d) = %#x", size, align, ptr))
	d.mu.Unlock()
	return ptr
}

func (d *DebugAllocator) Free(ptr uintptr, size, align uintptr) {
	d.inner.Free(ptr, size, align)
	d.mu.Lock()
	d.log = append(d.log, fmt.Sprintf("free(%#x, size=%d, align=%d)", ptr, size, align))
	d.mu.Unlock()
}

func (d *DebugAllocator) Reset() {
	d.inner.Reset()
	d.mu.Lock()
	d.log = d.log[:0]
	d.mu.Unlock()
}

func (d *DebugAllocator) GetStats() Stats {
	return d.inner.GetStats()
}

// Log returns a copy of the recorded operation trace.
func (d *DebugAllocator) Log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.log))
	copy(out, d.log)
	return out
}

// --- Integer / real caches -------------------------------------------------

const (
	intCacheMin = -128
	intCacheMax = 1024
)

// intCache holds pointer-identity-stable boxes for integers in
// [intCacheMin, intCacheMax], matching small-integer interning schemes
// where repeated boxing of the same value returns the same pointer.
var intCache [intCacheMax - intCacheMin + 1]*int64

func init() {
	for i := range intCache {
		v := int64(i + intCacheMin)
		intCache[i] = &v
	}
}

// BoxInt returns a canonical *int64 for values within the cached range,
// and a freshly allocated box outside it. Two calls with the same
// in-range value return the identical pointer.
func BoxInt(v int64) *int64 {
	if v >= intCacheMin && v <= intCacheMax {
		return intCache[v-intCacheMin]
	}
	fresh := v
	return &fresh
}

// realCacheInts is [-10, 100]; realCacheExtra is a small fixed set of
// common fractional constants
var (
	realCacheInts  [111]*float64 // -10..100
	realCacheExtra = map[float64]*float64{}
)

func init() {
	for i := range realCacheInts {
		v := float64(i - 10)
		realCacheInts[i] = &v
	}
	for _, v := range []float64{0.5, 0.25, 0.1, 1.5, 2.5, 3.14159265358979} {
		vv := v
		realCacheExtra[v] = &vv
	}
}

// BoxReal returns a canonical *float64 for cached values, and a fresh box
// otherwise, mirroring BoxInt's identity guarantee.
func BoxReal(v float64) *float64 {
	if v == float64(int64(v)) {
		i := int64(v)
		if i >= -10 && i <= 100 {
			return realCacheInts[i+10]
		}
	}
	if p, ok := realCacheExtra[v]; ok {
		return p
	}
	fresh := v
	return &fresh
}

