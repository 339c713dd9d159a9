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

// Package registry is the in-memory qualified-symbol -> {body_hash, var_ref}
// map the compile server's `compile` path consults to skip re-emitting a
// definition whose fingerprint hasn't changed; the nREPL engine reads it
// for completion and lookup, and its eval op does not consult it. It is
// read far more often than written -- every compile request checks
// needs_recompile before doing any real work, while
// stores only happen on an actual (re)definition -- so it is built on
// NonLockingReadMap, a read-optimized structure suited to highly-contended
// lookup tables.
package registry

import (
	"sort"
	"sync/atomic"

	nlrm "github.com/launix-de/NonLockingReadMap"
)

// Symbol is the fully qualified (namespace, name) pair identifying a def.
type Symbol struct {
	Namespace string
	Name      string
}

// key returns the total order NonLockingReadMap needs over Symbol, since
// the map is generic over constraints.Ordered and a struct isn't directly
// ordered in Go.
func (s Symbol) key() string {
	return s.Namespace + "/" + s.Name
}

// VarRef is the opaque handle the runtime uses to resolve a symbol once
// compiled; the registry never interprets it.
type VarRef any

// entry is the NonLockingReadMap element: it must implement GetKey/ComputeSize.
type entry struct {
	sym      Symbol
	bodyHash uint64
	varRef   VarRef
}

func (e entry) GetKey() string { return e.sym.key() }

func (e entry) ComputeSize() uint {
	return uint(len(e.sym.Namespace) + len(e.sym.Name) + 8 + 8)
}

// Stats mirrors the hit/miss diagnostics this requires.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Registry is the incremental symbol -> compiled-body registry.
type Registry struct {
	m      nlrm.NonLockingReadMap[entry, string]
	hits   int64
	misses int64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{m: nlrm.New[entry, string]()}
}

// NeedsRecompile is the fast-path negation of a hash match: true unless the
// symbol is already registered with exactly this body hash.
func (r *Registry) NeedsRecompile(sym Symbol, h uint64) bool {
	e := r.m.Get(sym.key())
	if e == nil {
		atomic.AddInt64(&r.misses, 1)
		return true
	}
	if e.bodyHash != h {
		atomic.AddInt64(&r.misses, 1)
		return true
	}
	atomic.AddInt64(&r.hits, 1)
	return false
}

// Store records sym as compiled with body hash h resolving to v. A
// subsequent Get(sym, h) returns v until Invalidate or InvalidateNamespace
// is called.
func (r *Registry) Store(sym Symbol, h uint64, v VarRef) {
	r.m.Set(&entry{sym: sym, bodyHash: h, varRef: v})
}

// Get returns the registered var ref for sym iff its stored body hash
// equals h; otherwise ok is false (the caller must treat this as a miss,
// same as NeedsRecompile would).
func (r *Registry) Get(sym Symbol, h uint64) (v VarRef, ok bool) {
	e := r.m.Get(sym.key())
	if e == nil || e.bodyHash != h {
		return nil, false
	}
	return e.varRef, true
}

// Invalidate removes a single symbol's entry, forcing its next
// NeedsRecompile to report true regardless of hash.
func (r *Registry) Invalidate(sym Symbol) {
	r.m.Remove(sym.key())
}

// InvalidateNamespace drops every entry under ns, as triggered by a
// namespace reload.
func (r *Registry) InvalidateNamespace(ns string) {
	for _, e := range r.m.GetAll() {
		if e.sym.Namespace == ns {
			r.m.Remove(e.sym.key())
		}
	}
}

// Clear removes every entry and resets the hit/miss counters.
func (r *Registry) Clear() {
	for _, e := range r.m.GetAll() {
		r.m.Remove(e.sym.key())
	}
	atomic.StoreInt64(&r.hits, 0)
	atomic.StoreInt64(&r.misses, 0)
}

// GetStats returns the current entry count and cumulative hit/miss totals.
func (r *Registry) GetStats() Stats {
	return Stats{
		Entries: len(r.m.GetAll()),
		Hits:    atomic.LoadInt64(&r.hits),
		Misses:  atomic.LoadInt64(&r.misses),
	}
}

// Symbols returns every currently registered symbol, sorted so nREPL
// completion and lookup see a deterministic order.
func (r *Registry) Symbols() []Symbol {
	all := r.m.GetAll()
	out := make([]Symbol, 0, len(all))
	for _, e := range all {
		out = append(out, e.sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}
