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

// Package compileserver implements the Compile Server half of spec
// §4.6: it accepts the same newline-delimited JSON connections the
// remote package's Client speaks, compiles code through a shared
// jit.Processor/registry.Registry/pcache.Cache, and resolves a
// namespace's transitive dependency set concurrently on `require`.
package compileserver

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jank-lang/jank-core/jit"
	"github.com/jank-lang/jank-core/pcache"
	"github.com/jank-lang/jank-core/registry"
)

// entrySymbol names the registry entry a remotely compiled unit is
// tracked under. Remote units aren't addressed by a qualified var name
// the way locally analyzed defs are, so the namespace is reused as both
// namespace and name.
func entrySymbol(ns string) registry.Symbol {
	return registry.Symbol{Namespace: ns, Name: ns}
}

// SourceResolver looks up a namespace's source, either because it's
// known locally or because the client supplied it as part of a
// `require`. Returns ok=false when the namespace isn't available,
// triggering a `need-source` round trip.
type SourceResolver interface {
	ResolveSource(ns string) (source string, ok bool)
}

// StaticResolver is a SourceResolver backed by a fixed map, useful for
// servers with a preloaded module path.
type StaticResolver map[string]string

func (r StaticResolver) ResolveSource(ns string) (string, bool) {
	s, ok := r[ns]
	return s, ok
}

// Server is the Compile Server of this It owns a single shared
// jit.Processor, registry.Registry and pcache.Cache across every
// connection, the same way the runtime a local process would use.
type Server struct {
	Processor *jit.Processor
	Registry  *registry.Registry
	Cache     *pcache.Cache
	Resolver  SourceResolver
	Logger    *log.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Options configures a Server.
type Options struct {
	Processor *jit.Processor
	Registry  *registry.Registry
	Cache     *pcache.Cache
	Resolver  SourceResolver
	Logger    *log.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = StaticResolver{}
	}
	return &Server{
		Processor: opts.Processor,
		Registry:  opts.Registry,
		Cache:     opts.Cache,
		Resolver:  resolver,
		Logger:    logger,
	}
}

// ListenAndServe binds addr and serves connections until the listener
// is closed via Stop.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("compileserver: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener, ending ListenAndServe's accept loop.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Printf("compileserver: connection handler panic: %v", r)
		}
	}()
	h := &connHandler{server: s, conn: conn, reader: bufio.NewReader(conn)}
	h.run()
}

// connHandler holds the per-connection state a single compile-server
// session needs: the connection and its buffered reader. A `need-source`
// negotiation is carried out inline on that reader (at most one in
// flight, since the protocol is a strict request/response ping-pong on
// one TCP stream).
type connHandler struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
}

func (h *connHandler) run() {
	for {
		line, err := h.reader.ReadString('\n')
		if err != nil {
			return
		}
		if err := h.dispatch(line); err != nil {
			h.server.Logger.Printf("compileserver: connection error: %v", err)
			return
		}
	}
}

func (h *connHandler) write(s string) error {
	_, err := h.conn.Write([]byte(s))
	return err
}

func (h *connHandler) dispatch(line string) error {
	op := getString(line, "op")
	id := getInt(line, "id")
	switch op {
	case "ping":
		return h.write(fmt.Sprintf(`{"op":"pong","id":%d}`+"\n", id))
	case "compile":
		return h.handleCompile(line, id)
	case "native-source":
		return h.handleNativeSource(line, id)
	case "require":
		return h.handleRequire(line, id)
	default:
		return h.write(errorLine(id, "unknown op: "+op, "protocol"))
	}
}

func (h *connHandler) handleCompile(line string, id int64) error {
	code := getString(line, "code")
	ns := getString(line, "ns")

	hash := sourceHash(code, ns)
	sym := entrySymbol(ns)

	if !h.server.Registry.NeedsRecompile(sym, hash) {
		if entry, ok := h.server.Cache.LoadEntry(hash); ok && entry.HasObject {
			obj, err := readObjectFile(h.server.Cache.ObjectPath(hash))
			if err == nil {
				return h.write(compiledLine(id, pcache.FactoryName(hash), obj))
			}
		}
	}

	if _, err := h.server.Processor.CompileDeduped(fmt.Sprintf("%s/%x", ns, hash), func() (any, error) {
		return nil, h.server.Processor.EvalString(code)
	}); err != nil {
		return h.write(errorLine(id, err.Error(), "compile"))
	}

	symbolName := pcache.FactoryName(hash)
	if err := h.server.Cache.Save(hash, []byte(code), ns, symbolName); err != nil {
		return h.write(errorLine(id, err.Error(), "compile"))
	}
	if err := h.server.Cache.CompileToObject(hash); err != nil {
		return h.write(errorLine(id, err.Error(), "compile"))
	}
	obj, err := readObjectFile(h.server.Cache.ObjectPath(hash))
	if err != nil {
		return h.write(errorLine(id, err.Error(), "compile"))
	}
	h.server.Registry.Store(sym, hash, symbolName)
	return h.write(compiledLine(id, symbolName, obj))
}

func (h *connHandler) handleNativeSource(line string, id int64) error {
	code := getString(line, "code")
	ns := getString(line, "ns")
	hash := sourceHash(code, ns)
	entry, ok := h.server.Cache.LoadEntry(hash)
	if !ok {
		if err := h.server.Cache.SaveExpression(hash, []byte(code)); err != nil {
			return h.write(errorLine(id, err.Error(), "compile"))
		}
		entry, _ = h.server.Cache.LoadEntry(hash)
	}
	return h.write(fmt.Sprintf(`{"op":"native-source-result","id":%d,"source":"%s"}`+"\n", id, escapeString(string(entry.CPPSource))))
}

// handleRequire resolves ns's transitive dependency set. Each
// dependency that isn't locally resolvable triggers a need-source
// round trip back to the client before compilation of the whole set
// proceeds concurrently
func (h *connHandler) handleRequire(line string, id int64) error {
	ns := getString(line, "ns")
	source := getString(line, "source")

	pending := parseRequireForms(source)
	sources := map[string]string{ns: source}
	for len(pending) > 0 {
		dep := pending[0]
		pending = pending[1:]
		if _, seen := sources[dep]; seen {
			continue
		}
		src, ok := h.server.Resolver.ResolveSource(dep)
		if !ok {
			var err error
			if src, err = h.requestSource(dep); err != nil {
				return h.write(errorLine(id, err.Error(), "connection"))
			}
		}
		sources[dep] = src
		pending = append(pending, parseRequireForms(src)...)
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}

	var g errgroup.Group
	var mu sync.Mutex
	modules := make([]compiledModuleResult, 0, len(names))
	for _, name := range names {
		name := name
		src := sources[name]
		g.Go(func() error {
			hash := sourceHash(src, name)
			if err := h.server.Processor.EvalString(src); err != nil {
				return fmt.Errorf("compiling %s: %w", name, err)
			}
			if err := h.server.Cache.Save(hash, []byte(src), name, pcache.FactoryName(hash)); err != nil {
				return err
			}
			if err := h.server.Cache.CompileToObject(hash); err != nil {
				return err
			}
			obj, err := readObjectFile(h.server.Cache.ObjectPath(hash))
			if err != nil {
				return err
			}
			mu.Lock()
			modules = append(modules, compiledModuleResult{name: name, symbol: pcache.FactoryName(hash), object: obj})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return h.write(errorLine(id, err.Error(), "compile"))
	}

	return h.write(requiredLine(id, modules))
}

// requestSource sends `need-source` and blocks for the client's
// `source` response on the same connection.
func (h *connHandler) requestSource(ns string) (string, error) {
	if err := h.write(fmt.Sprintf(`{"op":"need-source","ns":"%s"}`+"\n", escapeString(ns))); err != nil {
		return "", err
	}
	line, err := h.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("awaiting source for %s: %w", ns, err)
	}
	if getString(line, "op") != "source" {
		return "", fmt.Errorf("expected source response for %s, got %s", ns, getString(line, "op"))
	}
	return getString(line, "source"), nil
}
