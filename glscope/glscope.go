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

// Package glscope holds state that is explicitly thread-local and never
// shared across goroutines: the current allocator, the source-hint stack,
// the debug-trace ring, the JIT fatal-error recovery point, and the
// profiler sampling depth.
//
// Each of these is per-worker-goroutine state threaded implicitly rather
// than passed down every call, so this package leans on
// github.com/jtolds/gls for propagating state into worker goroutines
// spawned via gls.Go, the same pattern a compute-pool dispatcher uses to
// carry per-task context into spawned workers.
package glscope

import (
	"github.com/jtolds/gls"
)

const (
	keyAllocator     = "jank.allocator"
	keyRecovery      = "jank.jit_recovery"
	keySourceHints   = "jank.source_hints"
	keyTraceRing     = "jank.trace_ring"
	keyProfilerDepth = "jank.profiler_depth"
)

var mgr = gls.NewContextManager()

// Go runs fn in a new goroutine that inherits the calling goroutine's
// scope values, via gls.Go(func(){...}).
func Go(fn func()) {
	gls.Go(fn)
}

// value reads a single scoped value, returning ok=false outside any scope.
func value(key string) (any, bool) {
	return mgr.GetValue(key)
}

// WithAllocator scopes v as the "current allocator" for the duration of fn,
// then restores whatever was set before -- the acquire-release pairing
// every resource scope in this package follows.
func WithAllocator(v any, fn func()) {
	mgr.SetValues(gls.Values{keyAllocator: v}, fn)
}

// CurrentAllocator returns the goroutine's installed allocator, or
// nil, false when none is set (callers fall back to the default heap).
func CurrentAllocator() (any, bool) {
	return value(keyAllocator)
}

// RecoveryPoint is the task-boundary analogue of jank's jmp_buf-based
// recovery point (see jit package doc comment for the full rationale).
// A non-nil Signal channel receives exactly one value if the fatal
// handler fires while this scope is active.
type RecoveryPoint struct {
	Signal chan int
}

// WithRecovery installs rp as the active recovery point for fn's duration.
func WithRecovery(rp *RecoveryPoint, fn func()) {
	mgr.SetValues(gls.Values{keyRecovery: rp}, fn)
}

// CurrentRecovery returns the active recovery point, or nil if none is
// installed -- the JIT's fatal handler treats nil as "no recovery point
// registered" and must terminate the process.
func CurrentRecovery() *RecoveryPoint {
	v, ok := value(keyRecovery)
	if !ok {
		return nil
	}
	rp, _ := v.(*RecoveryPoint)
	return rp
}

// PushSourceHint scopes a human-readable location description (e.g. a
// file:line being compiled) for the duration of fn, appending to whatever
// hints are already active so nested scopes read as a stack.
func PushSourceHint(hint string, fn func()) {
	existing, _ := value(keySourceHints)
	stack, _ := existing.([]string)
	next := make([]string, len(stack)+1)
	copy(next, stack)
	next[len(stack)] = hint
	mgr.SetValues(gls.Values{keySourceHints: next}, fn)
}

// SourceHints returns the active source-hint stack, outermost first.
func SourceHints() []string {
	v, ok := value(keySourceHints)
	if !ok {
		return nil
	}
	stack, _ := v.([]string)
	return stack
}

const traceRingSize = 32

// TraceRing is a fixed-size ring buffer of the last 32 debug-trace
// locations visited on this goroutine.
type TraceRing struct {
	entries [traceRingSize]string
	next    int
	count   int
}

// Record appends loc to the ring, overwriting the oldest entry once full.
func (r *TraceRing) Record(loc string) {
	r.entries[r.next] = loc
	r.next = (r.next + 1) % traceRingSize
	if r.count < traceRingSize {
		r.count++
	}
}

// Entries returns the recorded locations, oldest first.
func (r *TraceRing) Entries() []string {
	out := make([]string, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += traceRingSize
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(start+i)%traceRingSize])
	}
	return out
}

// WithTraceRing installs (or reuses, if already installed) a trace ring
// for fn's duration and passes it to fn so the caller can Record into it.
func WithTraceRing(fn func(ring *TraceRing)) {
	existing, ok := value(keyTraceRing)
	ring, _ := existing.(*TraceRing)
	if !ok || ring == nil {
		ring = &TraceRing{}
	}
	mgr.SetValues(gls.Values{keyTraceRing: ring}, func() {
		fn(ring)
	})
}

// CurrentTraceRing returns the active trace ring, or nil outside any scope.
func CurrentTraceRing() *TraceRing {
	v, ok := value(keyTraceRing)
	if !ok {
		return nil
	}
	ring, _ := v.(*TraceRing)
	return ring
}

// WithProfilerDepth increments the per-goroutine profiler sampling depth
// for fn's duration, then restores it -- used by the JIT's perf-profiling
// integration to avoid re-entrant sampling.
func WithProfilerDepth(fn func()) {
	cur, _ := value(keyProfilerDepth)
	depth, _ := cur.(int)
	mgr.SetValues(gls.Values{keyProfilerDepth: depth + 1}, fn)
}

// ProfilerDepth returns the current goroutine's profiler sampling depth.
func ProfilerDepth() int {
	v, ok := value(keyProfilerDepth)
	if !ok {
		return 0
	}
	depth, _ := v.(int)
	return depth
}
