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

// Package jit is the Incremental JIT Processor: one process-wide instance
// embedding a system C++ toolchain as the interpreter, loading relocatable
// objects and dynamic libraries, and resolving symbols for the rest of
// the runtime.
//
// Go has no in-process C++ interpreter to embed, so the interpreter is
// modeled as an external toolchain dependency: an os/exec-driven compiler
// invocation plus plugin.Open for the relocatable result, serialized
// through a single worker goroutine reading an op channel so loadedObjects
// only ever has one writer (the symbol-lookup cache is read and written by
// FindSymbol/RemoveSymbol under a mutex). Concurrent identical-fingerprint
// compiles are collapsed with singleflight from golang.org/x/sync.
package jit

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jank-lang/jank-core/glscope"
)

// FatalErrorSignal is the distinguished value a fatal-handler recovery
// carries through the signal channel so ScopedRecovery can tell a
// genuine fatal-error unwind apart from any other panic.
const FatalErrorSignal = 99

// EvalResult is returned by EvalStringWithResult.
type EvalResult struct {
	Valid  bool
	IsVoid bool
	Ptr    uintptr
	Type   string
	Repr   string
}

type job struct {
	fn   func() (any, error)
	resp chan jobResult
}

type jobResult struct {
	val any
	err error
}

// Processor is the JIT: a single worker goroutine plus the loaded-object
// bookkeeping and symbol table it owns exclusively.
type Processor struct {
	cxx     string
	cxxArgs []string
	libDirs []string

	jobs chan job
	once sync.Once

	mu            sync.Mutex
	loadedObjects map[string]*plugin.Plugin // canonical path -> handle, idempotent
	symbols       map[string]plugin.Symbol
	dynLibs       map[string]struct{}

	sf singleflight.Group
}

// Options configures a Processor.
type Options struct {
	CXXCompiler string   // defaults to "c++"
	CXXFlags    []string // flags captured at runtime build time, plus user -I/-L/-D
	LibDirs     []string // configured library search directories for load_dynamic_libs
}

// New starts the JIT worker goroutine and returns a ready Processor.
func New(opts Options) *Processor {
	cxx := opts.CXXCompiler
	if cxx == "" {
		cxx = "c++"
	}
	p := &Processor{
		cxx:           cxx,
		cxxArgs:       opts.CXXFlags,
		libDirs:       opts.LibDirs,
		jobs:          make(chan job),
		loadedObjects: map[string]*plugin.Plugin{},
		symbols:       map[string]plugin.Symbol{},
		dynLibs:       map[string]struct{}{},
	}
	glscope.Go(p.run)
	return p
}

// run is the sole goroutine that ever writes loadedObjects, matching the
// single-writer discipline storage/cache.go uses for its own op-channel
// loop. Each job runs inside ScopedRecovery, so a FatalError raised by a
// job is returned as that job's error instead of ending the worker.
func (p *Processor) run() {
	for j := range p.jobs {
		var val any
		var err error
		if fatal := ScopedRecovery(func() { val, err = j.fn() }); fatal != nil {
			val, err = nil, fatal
		}
		j.resp <- jobResult{val: val, err: err}
	}
}

// submit runs fn on the worker goroutine and waits for its result,
// recovering the goroutine itself if fn panics with a fatal-error signal
// so one bad eval can't take down the whole process (see recovery.go).
func (p *Processor) submit(fn func() (any, error)) (any, error) {
	resp := make(chan jobResult, 1)
	p.jobs <- job{fn: fn, resp: resp}
	return unpack(<-resp)
}

func unpack(r jobResult) (any, error) { return r.val, r.err }

// EvalString compiles code as a throwaway translation unit into a shared
// object and loads it. No entry point of the loaded unit is invoked. On
// failure the error carries up to a 500-character preview of the failing
// code plus whatever diagnostics the toolchain produced
func (p *Processor) EvalString(code string) error {
	_, err := p.submit(func() (any, error) {
		return nil, p.compileAndRun(code, false)
	})
	return err
}

// EvalStringWithResult is EvalString plus location of the trailing result
// expression. code must not end in a statement terminator; ResultBoundary
// (boundary.go) locates the split point using a packrat-based
// brace/string-aware scanner. The returned Repr is the result
// expression's source text and Type is always "auto"; the expression's
// runtime value is not captured and Ptr is left zero.
func (p *Processor) EvalStringWithResult(code string) (EvalResult, error) {
	v, err := p.submit(func() (any, error) {
		if err := p.compileAndRun(code, true); err != nil {
			return EvalResult{}, err
		}
		stmts, resultExpr, ok := ResultBoundary(code)
		if !ok {
			return EvalResult{}, fmt.Errorf("jit: eval_with_result: code ends in a statement terminator")
		}
		_ = stmts
		return EvalResult{Valid: true, Repr: resultExpr, Type: "auto"}, nil
	})
	if err != nil {
		return EvalResult{}, err
	}
	return v.(EvalResult), nil
}

func (p *Processor) compileAndRun(code string, _ bool) error {
	preview := code
	if len(preview) > 500 {
		preview = preview[:500]
	}
	dir, err := os.MkdirTemp("", "jank-eval-*")
	if err != nil {
		return fmt.Errorf("jit: eval: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "unit.cpp")
	if err := os.WriteFile(src, []byte(code), 0640); err != nil {
		return fmt.Errorf("jit: eval: write source: %w", err)
	}
	obj := filepath.Join(dir, "unit.so")
	args := append(append([]string{}, p.cxxArgs...), "-shared", "-fPIC", src, "-o", obj)
	cmd := exec.Command(p.cxx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("jit: eval failed for %q: %w: %s", preview, err, out)
	}
	return p.loadObjectLocked(obj)
}

// LoadObject adds a relocatable object to the JIT. Idempotent per
// canonical path: a path already loaded is a no-op. Go's plugin package
// only opens shared objects, so a raw .o is first linked into a .so with
// the system linker -- the same toolchain the persistent cache's
// CompileToObject already shells out to.
func (p *Processor) LoadObject(path string) error {
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		canon = path // falls back to the given path
	}
	_, err = p.submit(func() (any, error) {
		return nil, p.loadObjectLocked(canon)
	})
	return err
}

func (p *Processor) loadObjectLocked(canon string) error {
	p.mu.Lock()
	if _, ok := p.loadedObjects[canon]; ok {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	soPath := canon
	if filepath.Ext(canon) == ".o" {
		linked, err := p.linkToSharedObject(canon)
		if err != nil {
			return err
		}
		soPath = linked
	}

	plug, err := plugin.Open(soPath)
	if err != nil {
		return fmt.Errorf("jit: load_object %s: %w", canon, err)
	}
	p.mu.Lock()
	p.loadedObjects[canon] = plug
	p.mu.Unlock()
	p.registerDebugInfo(canon)
	return nil
}

func (p *Processor) linkToSharedObject(objPath string) (string, error) {
	soPath := objPath[:len(objPath)-len(filepath.Ext(objPath))] + ".so"
	args := append(append([]string{}, p.cxxArgs...), "-shared", objPath, "-o", soPath)
	cmd := exec.Command(p.cxx, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("jit: link %s: %w: %s", objPath, err, out)
	}
	return soPath, nil
}

// registerDebugInfo is the hook this describes as walking the
// interpreter's JIT debug descriptor list after every load-object/load-ir
// operation. Go binaries already integrate with the OS's native
// stacktrace/profiler tooling without a registration step, so this is a
// deliberate no-op kept as the named extension point the startup sequence
// documents, rather than papering over the absence with dead code paths
// elsewhere.
func (p *Processor) registerDebugInfo(path string) {}

// LoadIRModule and LoadBitcode are accepted for interface parity with
// this's IR/bitcode ingestion; Go's plugin loader has no IR-level
// entry point, so both are expressed as object loads once the caller has
// already lowered IR to a relocatable object (the typical case, since the
// compile server and persistent cache only ever emit .o files).
func (p *Processor) LoadIRModule(path string) error {
	return p.LoadObject(path)
}

func (p *Processor) LoadBitcode(name string, bytes []byte) error {
	dir, err := os.MkdirTemp("", "jank-bitcode-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, name+".o")
	if err := os.WriteFile(path, bytes, 0640); err != nil {
		return err
	}
	return p.LoadObject(path)
}

// RemoveSymbol drops a cached symbol lookup so a subsequent FindSymbol
// re-resolves it (useful after hot-reloading a module that redefines it).
func (p *Processor) RemoveSymbol(name string) {
	p.mu.Lock()
	delete(p.symbols, name)
	p.mu.Unlock()
}

// FindSymbol resolves name against every currently loaded object, caching
// the result. Returns nil if not found in any loaded plugin.
func (p *Processor) FindSymbol(name string) plugin.Symbol {
	p.mu.Lock()
	if sym, ok := p.symbols[name]; ok {
		p.mu.Unlock()
		return sym
	}
	objects := make([]*plugin.Plugin, 0, len(p.loadedObjects))
	for _, plug := range p.loadedObjects {
		objects = append(objects, plug)
	}
	p.mu.Unlock()

	for _, plug := range objects {
		if sym, err := plug.Lookup(name); err == nil {
			p.mu.Lock()
			p.symbols[name] = sym
			p.mu.Unlock()
			return sym
		}
	}
	return nil
}

// LoadDynamicLibrary delegates to the interpreter (here: dlopen via the
// system loader through plugin.Open, since Go's plugin ABI requires the
// same .so format a real dlopen would use).
func (p *Processor) LoadDynamicLibrary(path string) error {
	_, err := p.submit(func() (any, error) {
		if _, err := plugin.Open(path); err != nil {
			return nil, fmt.Errorf("jit: load_dynamic_library %s: %w", path, err)
		}
		p.mu.Lock()
		p.dynLibs[path] = struct{}{}
		p.mu.Unlock()
		return nil, nil
	})
	return err
}

// LoadDynamicLibs resolves each name(c): absolute paths are
// used directly; otherwise each configured library directory is searched
// for both the platform-default name (libX.so / X.dylib) and the exact
// name, falling back to resolving the default then the raw name via the
// process's own loader.
func (p *Processor) LoadDynamicLibs(names []string) error {
	for _, name := range names {
		if err := p.loadOneDynamicLib(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) loadOneDynamicLib(name string) error {
	if filepath.IsAbs(name) {
		return p.LoadDynamicLibrary(name)
	}
	for _, dir := range p.libDirs {
		for _, candidate := range platformNames(name) {
			full := filepath.Join(dir, candidate)
			if _, err := os.Stat(full); err == nil {
				return p.LoadDynamicLibrary(full)
			}
		}
	}
	for _, candidate := range platformNames(name) {
		if err := p.LoadDynamicLibrary(candidate); err == nil {
			return nil
		}
	}
	return p.LoadDynamicLibrary(name)
}

func platformNames(name string) []string {
	return []string{"lib" + name + ".so", name + ".dylib", name}
}

// CompileDeduped collapses concurrent requests to compile the same
// fingerprint key into a single underlying compile, using singleflight;
// the compile server routes its `compile` requests through it.
func (p *Processor) CompileDeduped(key string, fn func() (any, error)) (any, error) {
	v, err, _ := p.sf.Do(key, fn)
	return v, err
}
