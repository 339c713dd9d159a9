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

// Package hotreload implements the Hot-Reload Registry: live function
// replacement when a compiled "patch" side module becomes available.
// Loading uses Go's own plugin loader as the platform dynamic loader;
// namespace/var bookkeeping is a small map-of-maps keyed by namespace
// then symbol name.
package hotreload

import (
	"fmt"
	"plugin"
	"strconv"
	"strings"
	"sync"
)

// MinSupportedArity is the minimum call arity a patched function must
// support: 0 through 4 arguments.
const MinSupportedArity = 4

// MaxSupportedArity is the registry's configured ceiling; signatures
// beyond it are a registration error, not a crash
const MaxSupportedArity = 10

// PatchSymbol is one entry a patch module's export function hands back.
type PatchSymbol struct {
	QualifiedName string
	Signature     string // decimal integer denoting fixed arity
	FnPtr         any    // the raw function value, arity-dispatched by Dispatcher
}

// Dispatcher wraps a raw function pointer so callers can invoke it with a
// slice of arguments regardless of its declared arity.
type Dispatcher func(args []any) (any, error)

// Var is the bindable root value a qualified name resolves to.
type Var struct {
	Namespace string
	Name      string
	mu        sync.RWMutex
	root      Dispatcher
}

func (v *Var) Bind(d Dispatcher) {
	v.mu.Lock()
	v.root = d
	v.mu.Unlock()
}

func (v *Var) Invoke(args []any) (any, error) {
	v.mu.RLock()
	d := v.root
	v.mu.RUnlock()
	if d == nil {
		return nil, fmt.Errorf("hotreload: var %s/%s has no root binding", v.Namespace, v.Name)
	}
	return d(args)
}

type namespace struct {
	name string
	vars map[string]*Var
}

type loadedModule struct {
	path    string
	handle  *plugin.Plugin
	symbols []string
}

// Registry is the Hot-Reload Registry.
type Registry struct {
	mu         sync.Mutex
	namespaces map[string]*namespace
	modules    []loadedModule
	onLoad     func(PatchLoadedNotification)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{namespaces: map[string]*namespace{}}
}

// OnLoad registers a callback fired after every successful LoadPatch.
// PushHub.Broadcast has the matching signature, so registering it here
// lets editors learn about a reload without polling GetStats; no callback
// is registered by default.
func (r *Registry) OnLoad(fn func(PatchLoadedNotification)) {
	r.mu.Lock()
	r.onLoad = fn
	r.mu.Unlock()
}

// LoadPatch opens the side module via Go's plugin loader, looks up
// symbolName, calls it to retrieve the {qualified_name, signature,
// fn_ptr} array, and registers every entry. The module handle is kept in
// Registry.modules so it is never eligible for reclamation.
func (r *Registry) LoadPatch(path, symbolName string) error {
	plug, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("hotreload: open patch %s: %w", path, err)
	}
	sym, err := plug.Lookup(symbolName)
	if err != nil {
		return fmt.Errorf("hotreload: lookup %s in %s: %w", symbolName, path, err)
	}
	fn, ok := sym.(func() []PatchSymbol)
	if !ok {
		return fmt.Errorf("hotreload: %s in %s has unexpected signature", symbolName, path)
	}
	symbols := fn()
	registered := make([]string, 0, len(symbols))
	for _, ps := range symbols {
		if err := r.RegisterSymbol(ps.QualifiedName, ps.FnPtr, ps.Signature); err != nil {
			return fmt.Errorf("hotreload: registering %s from %s: %w", ps.QualifiedName, path, err)
		}
		registered = append(registered, ps.QualifiedName)
	}

	r.mu.Lock()
	r.modules = append(r.modules, loadedModule{path: path, handle: plug, symbols: registered})
	onLoad := r.onLoad
	r.mu.Unlock()

	if onLoad != nil {
		onLoad(PatchLoadedNotification{Path: path, Symbols: registered})
	}
	return nil
}

// RegisterSymbol parses qname as ns/name, finds or creates the namespace
// and var, wraps fnPtr in an arity dispatcher per sig, and binds it as
// the var's root value.
func (r *Registry) RegisterSymbol(qname string, fnPtr any, sig string) error {
	ns, name, err := splitQualified(qname)
	if err != nil {
		return err
	}
	arity, err := strconv.Atoi(sig)
	if err != nil {
		return fmt.Errorf("hotreload: invalid signature %q for %s: %w", sig, qname, err)
	}
	if arity < 0 || arity > MaxSupportedArity {
		return fmt.Errorf("hotreload: arity %d for %s exceeds supported maximum %d", arity, qname, MaxSupportedArity)
	}
	dispatcher, err := makeDispatcher(fnPtr, arity)
	if err != nil {
		return fmt.Errorf("hotreload: %s: %w", qname, err)
	}

	r.mu.Lock()
	v := r.findOrCreateVarLocked(ns, name)
	r.mu.Unlock()
	v.Bind(dispatcher)
	return nil
}

func splitQualified(qname string) (ns, name string, err error) {
	parts := strings.SplitN(qname, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("hotreload: %q is not a valid ns/name qualified symbol", qname)
	}
	return parts[0], parts[1], nil
}

func (r *Registry) findOrCreateVarLocked(ns, name string) *Var {
	n, ok := r.namespaces[ns]
	if !ok {
		n = &namespace{name: ns, vars: map[string]*Var{}}
		r.namespaces[ns] = n
	}
	v, ok := n.vars[name]
	if !ok {
		v = &Var{Namespace: ns, Name: name}
		n.vars[name] = v
	}
	return v
}

// Lookup returns the var for a qualified name, if it has ever been
// registered.
func (r *Registry) Lookup(qname string) (*Var, bool) {
	ns, name, err := splitQualified(qname)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.namespaces[ns]
	if !ok {
		return nil, false
	}
	v, ok := n.vars[name]
	return v, ok
}

// Stats is the get_stats() result: module count, symbol count, and the
// list of loaded paths.
type Stats struct {
	LoadedModules     int
	RegisteredSymbols int
	ModulePaths       []string
}

func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{LoadedModules: len(r.modules)}
	for _, m := range r.modules {
		stats.RegisteredSymbols += len(m.symbols)
		stats.ModulePaths = append(stats.ModulePaths, m.path)
	}
	return stats
}

// makeDispatcher wraps fnPtr -- expected to be one of func(), func(any)
// any, func(any, any) any, ... up to MaxSupportedArity parameters -- in a
// uniform Dispatcher. Arities 0..MinSupportedArity are the mandated
// floor; arities up to MaxSupportedArity are accepted on a
// best-effort basis via the same type-switch shape.
func makeDispatcher(fnPtr any, arity int) (Dispatcher, error) {
	switch arity {
	case 0:
		fn, ok := fnPtr.(func() any)
		if !ok {
			return nil, fmt.Errorf("expected func() any for arity 0")
		}
		return func(args []any) (any, error) { return fn(), nil }, nil
	case 1:
		fn, ok := fnPtr.(func(any) any)
		if !ok {
			return nil, fmt.Errorf("expected func(any) any for arity 1")
		}
		return func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, arityMismatch(1, len(args))
			}
			return fn(args[0]), nil
		}, nil
	case 2:
		fn, ok := fnPtr.(func(any, any) any)
		if !ok {
			return nil, fmt.Errorf("expected func(any, any) any for arity 2")
		}
		return func(args []any) (any, error) {
			if len(args) != 2 {
				return nil, arityMismatch(2, len(args))
			}
			return fn(args[0], args[1]), nil
		}, nil
	case 3:
		fn, ok := fnPtr.(func(any, any, any) any)
		if !ok {
			return nil, fmt.Errorf("expected func(any, any, any) any for arity 3")
		}
		return func(args []any) (any, error) {
			if len(args) != 3 {
				return nil, arityMismatch(3, len(args))
			}
			return fn(args[0], args[1], args[2]), nil
		}, nil
	case 4:
		fn, ok := fnPtr.(func(any, any, any, any) any)
		if !ok {
			return nil, fmt.Errorf("expected func(any, any, any, any) any for arity 4")
		}
		return func(args []any) (any, error) {
			if len(args) != 4 {
				return nil, arityMismatch(4, len(args))
			}
			return fn(args[0], args[1], args[2], args[3]), nil
		}, nil
	default:
		// Arities beyond the mandated 0..4 floor are dispatched through a
		// variadic fallback shape; still bounded by MaxSupportedArity.
		fn, ok := fnPtr.(func(...any) any)
		if !ok {
			return nil, fmt.Errorf("expected func(...any) any for arity %d", arity)
		}
		return func(args []any) (any, error) {
			if len(args) != arity {
				return nil, arityMismatch(arity, len(args))
			}
			return fn(args...), nil
		}, nil
	}
}

func arityMismatch(want, got int) error {
	return fmt.Errorf("hotreload: expected %d arguments, got %d", want, got)
}

// CanonicalPatchName derives the conventional export symbol name for a
// patch module, jank_patch_symbols_N, from its sequence number (spec
// §3's "Patch module" data model).
func CanonicalPatchName(seq int) string {
	return "jank_patch_symbols_" + strconv.Itoa(seq)
}
