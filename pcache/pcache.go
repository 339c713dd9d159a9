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

// Package pcache implements the Persistent Cache: a
// content-addressed store, keyed by a 64-bit fingerprint, for generated
// C++ source, the expression that produced it, a small metadata pair, and
// the compiled relocatable object. The on-disk contract deliberately keeps
// these four artifacts as separate files so a crash mid-write leaves the
// cache in a recoverable, inspectable state rather than a half-written
// blob.
//
// Writes use a temp-file-then-rename sequence, with a ".old" backup kept
// on overwrite, so a crash never leaves a torn file visible under its
// final name; the bounded-size eviction loop runs as a single goroutine
// reading an op channel, so eviction decisions never race a concurrent
// write.
package pcache

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

// Entry is the four-file record a fingerprint maps to.
type Entry struct {
	Hash       uint64
	CPPSource  []byte
	Qualified  string // H.meta line 1
	UniqueName string // H.meta line 2
	ExprSource []byte // H.expr, the instantiation expression text
	HasObject  bool
}

// Stats tracks disk hit/miss counters for diagnostics.
type Stats struct {
	DiskHits   int64
	DiskMisses int64
	Entries    int64
}

// Cache is the Persistent Cache. The directory is pinned to a binary
// version string so a cache built by a differently-flagged runtime is
// never mistaken for a compatible one.
type Cache struct {
	dir     string
	cxx     string   // system C++ toolchain binary, e.g. "c++"
	cxxArgs []string // flags used to build the runtime itself

	mu    sync.Mutex
	stats Stats

	evictor *evictor // nil when no size budget was configured
}

// Options configures a Cache. CacheRoot is typically the OS user cache
// directory (os.UserCacheDir()); BinaryVersion namespaces the cache
// directory underneath it so different builds never share one cache.
type Options struct {
	CacheRoot     string
	BinaryVersion string
	CXXCompiler   string   // defaults to "c++"
	CXXFlags      []string // flags used to build the runtime
	SizeBudget    string   // human-readable, e.g. "512MiB"; empty disables eviction
}

// Open resolves the versioned cache directory, creating it if needed, and
// wires up size-bounded eviction if a budget was given. A version string
// that isn't a valid semver is still accepted verbatim (jank's own
// snapshot builds use non-semver suffixes); only an actual directory
// mismatch -- a different version already on disk -- forces a fresh one,
// which falls naturally out of namespacing by the literal version string.
func Open(opts Options) (*Cache, error) {
	cxx := opts.CXXCompiler
	if cxx == "" {
		cxx = "c++"
	}
	version := opts.BinaryVersion
	if version == "" {
		version = "dev"
	}
	if semver.IsValid(version) {
		version = semver.Canonical(version)
	}
	dir := filepath.Join(opts.CacheRoot, version, "jit_cache")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("pcache: create cache dir: %w", err)
	}
	c := &Cache{dir: dir, cxx: cxx, cxxArgs: opts.CXXFlags}
	if opts.SizeBudget != "" {
		ev, err := newEvictor(opts.SizeBudget, c.removeEntry)
		if err != nil {
			return nil, err
		}
		c.evictor = ev
	}
	c.rescan()
	return c, nil
}

func (c *Cache) path(h uint64, ext string) string {
	return filepath.Join(c.dir, hexHash(h)+"."+ext)
}

// hexHash avoids importing the fingerprint package here (pcache should be
// usable with any 64-bit key, not just expression fingerprints); it
// reproduces the same lowercase zero-padded 16-digit format.
func hexHash(h uint64) string {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = digits[h&0xf]
		h >>= 4
	}
	return string(buf[:])
}

// HasSource reports whether both H.cpp and H.meta exist.
func (c *Cache) HasSource(h uint64) bool {
	return fileExists(c.path(h, "cpp")) && fileExists(c.path(h, "meta"))
}

// HasCompiledObject reports whether H.o exists.
func (c *Cache) HasCompiledObject(h uint64) bool {
	return fileExists(c.path(h, "o"))
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// Save writes H.cpp and H.meta. Each file is written to a temp file and
// renamed into place, keeping a ".old" backup of anything it overwrites,
// matching the teacher's WriteSchema pattern -- so no single file is ever
// seen half-written. The two files are replaced one after the other, so a
// writer that crashes in between can leave the new H.cpp beside the old
// H.meta, or H.cpp missing with its backup at H.cpp.old.
func (c *Cache) Save(h uint64, cpp []byte, qualifiedName, uniqueName string) error {
	if err := writeFileAtomic(c.path(h, "cpp"), cpp); err != nil {
		return fmt.Errorf("pcache: save cpp: %w", err)
	}
	meta := []byte(qualifiedName + "\n" + uniqueName + "\n")
	if err := writeFileAtomic(c.path(h, "meta"), meta); err != nil {
		return fmt.Errorf("pcache: save meta: %w", err)
	}
	c.mu.Lock()
	c.stats.Entries++
	c.mu.Unlock()
	if c.evictor != nil {
		c.evictor.touch(h, int64(len(cpp)+len(meta)))
	}
	return nil
}

// SaveExpression writes H.expr, the instantiation expression text used to
// synthesize the entry-point factory.
func (c *Cache) SaveExpression(h uint64, exprSource []byte) error {
	if err := writeFileAtomic(c.path(h, "expr"), exprSource); err != nil {
		return fmt.Errorf("pcache: save expr: %w", err)
	}
	if c.evictor != nil {
		c.evictor.touch(h, int64(len(exprSource)))
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		os.Rename(path, path+".old")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadEntry returns the four fields for h, or ok=false if no source is
// present at all.
func (c *Cache) LoadEntry(h uint64) (Entry, bool) {
	if !c.HasSource(h) {
		c.recordMiss()
		return Entry{}, false
	}
	cpp, err := os.ReadFile(c.path(h, "cpp"))
	if err != nil {
		c.recordMiss()
		return Entry{}, false
	}
	meta, err := os.ReadFile(c.path(h, "meta"))
	if err != nil {
		c.recordMiss()
		return Entry{}, false
	}
	lines := strings.SplitN(string(meta), "\n", 3)
	qname, uname := "", ""
	if len(lines) > 0 {
		qname = lines[0]
	}
	if len(lines) > 1 {
		uname = lines[1]
	}
	exprSrc, _ := os.ReadFile(c.path(h, "expr"))
	c.recordHit()
	if c.evictor != nil {
		c.evictor.touch(h, int64(len(cpp)+len(meta)+len(exprSrc)))
	}
	return Entry{
		Hash:       h,
		CPPSource:  cpp,
		Qualified:  qname,
		UniqueName: uname,
		ExprSource: exprSrc,
		HasObject:  c.HasCompiledObject(h),
	}, true
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.stats.DiskHits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.DiskMisses++
	c.mu.Unlock()
}

// FactoryName returns the deterministic factory function name for h:
// "jank_pcache_factory_" + hex(H).
func FactoryName(h uint64) string {
	return "jank_pcache_factory_" + hexHash(h)
}

// ObjectPath returns the path H.o would live at, whether or not it
// currently exists.
func (c *Cache) ObjectPath(h uint64) string {
	return c.path(h, "o")
}

// SourcePath returns the path to H.cpp.
func (c *Cache) SourcePath(h uint64) string {
	return c.path(h, "cpp")
}

// ExpressionPath returns the path to H.expr.
func (c *Cache) ExpressionPath(h uint64) string {
	return c.path(h, "expr")
}

// CompileToObject reads H.cpp and H.expr, synthesizes the factory body
// `return <expr_str>;` appended to the generated source, and invokes the
// system C++ toolchain to emit H.o. It returns nil iff H.o exists
// afterward, matching the "returns success iff H.o exists" contract.
func (c *Cache) CompileToObject(h uint64) error {
	cppPath := c.SourcePath(h)
	if !fileExists(cppPath) {
		return fmt.Errorf("pcache: no cached source for %s", hexHash(h))
	}
	exprSrc, err := os.ReadFile(c.ExpressionPath(h))
	if err != nil {
		return fmt.Errorf("pcache: read expression: %w", err)
	}

	factory := FactoryName(h)
	var unit bytes.Buffer
	cpp, err := os.ReadFile(cppPath)
	if err != nil {
		return fmt.Errorf("pcache: read source: %w", err)
	}
	unit.Write(cpp)
	fmt.Fprintf(&unit, "\nextern \"C\" void *%s() {\n  return %s;\n}\n", factory, string(exprSrc))

	srcFile := c.path(h, "compile_unit.cpp")
	if err := os.WriteFile(srcFile, unit.Bytes(), 0640); err != nil {
		return fmt.Errorf("pcache: write compile unit: %w", err)
	}
	defer os.Remove(srcFile)

	objPath := c.ObjectPath(h)
	args := append(append([]string{}, c.cxxArgs...), "-c", srcFile, "-o", objPath)
	cmd := exec.Command(c.cxx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pcache: compile %s failed: %w: %s", hexHash(h), err, out)
	}
	if !fileExists(objPath) {
		return fmt.Errorf("pcache: compile %s produced no object", hexHash(h))
	}
	if c.evictor != nil {
		if st, err := os.Stat(objPath); err == nil {
			c.evictor.touch(h, st.Size())
		}
	}
	return nil
}

// Clear removes the directory contents.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
	if c.evictor != nil {
		c.evictor.reset()
	}
	return nil
}

// GetStats returns a snapshot of disk hit/miss/entry counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// removeEntry deletes every artifact for h; used as the evictor's reclaim
// callback.
func (c *Cache) removeEntry(h uint64) {
	for _, ext := range []string{"cpp", "meta", "expr", "o"} {
		os.Remove(c.path(h, ext))
	}
	c.mu.Lock()
	if c.stats.Entries > 0 {
		c.stats.Entries--
	}
	c.mu.Unlock()
}

// rescan populates the evictor's view of what's already on disk after a
// restart, so a freshly opened cache doesn't think every entry is brand
// new (and therefore never evict anything already past budget).
func (c *Cache) rescan() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	seen := map[string]int64{}
	var count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		dot := strings.LastIndex(name, ".")
		if dot < 0 {
			continue
		}
		stem, ext := name[:dot], name[dot+1:]
		if ext != "cpp" && ext != "meta" && ext != "expr" && ext != "o" {
			continue
		}
		if st, err := e.Info(); err == nil {
			seen[stem] += st.Size()
		}
		if ext == "cpp" {
			count++
		}
	}
	c.mu.Lock()
	c.stats.Entries = count
	c.mu.Unlock()
	if c.evictor != nil {
		for stem, size := range seen {
			h, err := parseHexHash(stem)
			if err != nil {
				continue
			}
			c.evictor.touch(h, size)
		}
	}
}

func parseHexHash(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("pcache: not a 16-digit hash: %q", s)
	}
	var h uint64
	for i := 0; i < 16; i++ {
		h <<= 4
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			h |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			h |= uint64(c-'a') + 10
		default:
			return 0, fmt.Errorf("pcache: invalid hex digit %q", c)
		}
	}
	return h, nil
}
