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

package nrepl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/exp/slices"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jank-lang/jank-core/jit"
	"github.com/jank-lang/jank-core/pcache"
	"github.com/jank-lang/jank-core/registry"
)

// symbolTransform normalizes to NFC and then strips the control characters
// some editors splice into propertized symbol text, so a symbol sent as
// "user/foo\x01" still resolves against the registry's plain "user/foo".
var symbolTransform = transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.C)))

const engineVersion = "0.1.0"

// Engine dispatches nREPL ops against a shared jit.Processor and
// registry.Registry, the same runtime components the compile server
// shares across its connections. middlewareStack and sessions are
// engine-wide, matching nREPL's semantics: sessions outlive any single
// connection handling them.
type Engine struct {
	Processor *jit.Processor
	Registry  *registry.Registry
	Cache     *pcache.Cache

	sessions        *sessionTable
	middlewareMu    sync.Mutex
	middlewareStack []string
}

func NewEngine(proc *jit.Processor, reg *registry.Registry, cache *pcache.Cache) *Engine {
	return &Engine{
		Processor: proc,
		Registry:  reg,
		Cache:     cache,
		sessions:  newSessionTable(),
	}
}

// Handle dispatches one decoded request to its op handler.
func (e *Engine) Handle(msg Message) []Dict {
	switch msg.Op() {
	case "describe":
		return e.handleDescribe(msg)
	case "clone":
		return e.handleClone(msg)
	case "close":
		return e.handleClose(msg)
	case "ls-sessions":
		return e.handleLsSessions(msg)
	case "eval":
		return e.handleEval(msg)
	case "load-file":
		return e.handleLoadFile(msg)
	case "completions":
		return e.handleCompletions(msg)
	case "complete":
		return e.handleComplete(msg)
	case "lookup", "info", "eldoc":
		return e.handleLookup(msg)
	case "forward-system-output":
		return e.handleForwardSystemOutput(msg)
	case "interrupt":
		return e.handleInterrupt(msg)
	case "ls-middleware":
		return e.handleLsMiddleware(msg)
	case "add-middleware":
		return e.handleAddMiddleware(msg)
	case "swap-middleware":
		return e.handleSwapMiddleware(msg)
	case "stdin":
		return e.handleStdin(msg)
	case "caught":
		return e.handleCaught(msg)
	case "analyze-last-stacktrace":
		return e.handleAnalyzeLastStacktrace(msg)
	case "test":
		return e.handleTest(msg)
	case "cache-stats":
		return e.handleCacheStats(msg)
	default:
		return unsupportedResponse(msg, "unknown-op")
	}
}

func (e *Engine) handleDescribe(msg Message) []Dict {
	ops := Dict{}
	for _, name := range []string{
		"clone", "describe", "ls-sessions", "close", "eval", "load-file",
		"completions", "complete", "lookup", "info", "eldoc",
		"forward-system-output", "interrupt", "ls-middleware",
		"add-middleware", "swap-middleware", "stdin", "caught",
		"analyze-last-stacktrace", "test", "cache-stats",
	} {
		ops[name] = Dict{}
	}
	payload := Dict{
		"versions": Dict{"jank-core": engineVersion},
		"ops":      ops,
		"status":   []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleClone(msg Message) []Dict {
	child := e.sessions.clone(msg.Session())
	payload := Dict{
		"session":     child.ID,
		"new-session": child.ID,
		"status":      []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleClose(msg Message) []Dict {
	if !e.sessions.close(msg.Session()) {
		return unsupportedResponse(msg, "unknown-session")
	}
	return []Dict{doneResponse(msg.Session(), msg.ID(), []string{"done"})}
}

func (e *Engine) handleLsSessions(msg Message) []Dict {
	payload := Dict{
		"sessions": e.sessions.ids(),
		"status":   []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

// handleEval evaluates code through the JIT processor, capturing any
// stdout produced during the call, and reports interrupt-ability through
// RunningEval/ActiveRequestID for handleInterrupt to observe. A panic
// during evaluation is recovered and reported as an eval error. The
// session's CurrentNS is echoed as "ns" in the value message; it is not
// passed to the evaluator, and eval does not change it.
func (e *Engine) handleEval(msg Message) []Dict {
	code := msg.Get("code")
	if code == "" {
		return unsupportedResponse(msg, "missing-code")
	}
	session := e.sessions.ensure(msg.Session())

	session.RunningEval = true
	session.ActiveRequestID = msg.ID()
	defer func() {
		session.RunningEval = false
		session.ActiveRequestID = ""
	}()

	var responses []Dict
	var result jit.EvalResult
	out, err := captureStdout(func() (evalErr error) {
		defer func() {
			if r := recover(); r != nil {
				evalErr = fmt.Errorf("nrepl: eval panic: %v", r)
			}
		}()
		result, evalErr = e.Processor.EvalStringWithResult(code)
		return evalErr
	})
	if out != "" {
		outMsg := Dict{"session": session.ID, "out": out}
		if msg.ID() != "" {
			outMsg["id"] = msg.ID()
		}
		responses = append(responses, outMsg)
	}

	if err != nil {
		session.LastExceptionMessage = err.Error()
		session.LastExceptionType = "error"
		session.HasLastException = true

		errMsg := Dict{
			"session": session.ID,
			"status":  []string{"error"},
			"err":     err.Error(),
		}
		if msg.ID() != "" {
			errMsg["id"] = msg.ID()
		}
		responses = append(responses, errMsg)
		responses = append(responses, doneResponse(session.ID, msg.ID(), []string{"done", "error"}))
		return responses
	}

	value := "nil"
	if result.Valid {
		value = result.Repr
	}
	valueMsg := Dict{
		"session": session.ID,
		"ns":      session.CurrentNS,
		"value":   value,
	}
	if msg.ID() != "" {
		valueMsg["id"] = msg.ID()
	}
	responses = append(responses, valueMsg)
	responses = append(responses, doneResponse(session.ID, msg.ID(), []string{"done"}))
	return responses
}

func (e *Engine) handleLoadFile(msg Message) []Dict {
	contents := msg.Get("file")
	if contents == "" {
		return unsupportedResponse(msg, "missing-file")
	}
	evalData := Dict{}
	for k, v := range msg.Data {
		evalData[k] = v
	}
	delete(evalData, "file")
	evalData["code"] = contents
	responses := e.handleEval(Message{Data: evalData})
	for _, r := range responses {
		delete(r, "ns")
	}
	return responses
}

// handleCompletions/handleComplete match candidate symbols by prefix
// against the registry rather than a var-metadata store: the registry
// is the only symbol table this runtime maintains.
func (e *Engine) handleCompletions(msg Message) []Dict {
	prefix := msg.Get("prefix")
	session := e.sessions.ensure(msg.Session())
	candidates := e.completionCandidates(prefix)

	list := make(List, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, Dict{"candidate": c, "type": "var"})
	}
	payload := Dict{
		"session":     session.ID,
		"completions": list,
		"status":      []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleComplete(msg Message) []Dict {
	prefix := msg.Get("prefix")
	if prefix == "" {
		prefix = msg.Get("symbol")
	}
	if prefix == "" {
		return unsupportedResponse(msg, "missing-prefix")
	}
	session := e.sessions.ensure(msg.Session())
	candidates := e.completionCandidates(prefix)

	list := make(List, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, Dict{"candidate": c, "type": "var", "ns": session.CurrentNS})
	}
	payload := Dict{
		"session":     session.ID,
		"completions": list,
		"status":      []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) completionCandidates(prefix string) []string {
	var out []string
	for _, sym := range e.Registry.Symbols() {
		full := sym.Namespace + "/" + sym.Name
		if strings.HasPrefix(full, prefix) || strings.HasPrefix(sym.Name, prefix) {
			out = append(out, full)
		}
	}
	return out
}

func (e *Engine) handleLookup(msg Message) []Dict {
	symInput := msg.Get("sym")
	if symInput == "" {
		symInput = msg.Get("symbol")
	}
	symInput = stripTextProperties(symInput)
	if symInput == "" {
		return unsupportedResponse(msg, "missing-symbol")
	}
	session := e.sessions.ensure(msg.Session())

	ns, name := splitSymbol(symInput, session.CurrentNS)
	for _, sym := range e.Registry.Symbols() {
		if sym.Namespace == ns && sym.Name == name {
			info := Dict{"name": sym.Name, "ns": sym.Namespace, "type": "var"}
			payload := Dict{"session": session.ID, "info": info, "status": []string{"done"}}
			if msg.ID() != "" {
				payload["id"] = msg.ID()
			}
			return []Dict{payload}
		}
	}
	return []Dict{doneResponse(session.ID, msg.ID(), []string{"done", "no-info"})}
}

func splitSymbol(s, defaultNS string) (ns, name string) {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return defaultNS, s
}

func (e *Engine) handleForwardSystemOutput(msg Message) []Dict {
	session := e.sessions.ensure(msg.Session())
	session.ForwardSystemOutput = true
	return []Dict{doneResponse(session.ID, msg.ID(), []string{"done"})}
}

// handleInterrupt is a registration-level stub: it reports whether the
// targeted request is currently running but does not forcibly abort the
// jit.Processor's single worker goroutine, since Go offers no safe way
// to cancel an in-flight system-toolchain compile short of killing the
// process.
func (e *Engine) handleInterrupt(msg Message) []Dict {
	targetID := msg.Get("interrupt-id")
	if targetID == "" {
		return unsupportedResponse(msg, "missing-interrupt-id")
	}
	session := e.sessions.ensure(msg.Session())
	payload := Dict{"session": session.ID, "interrupt-id": targetID}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	if session.RunningEval && session.ActiveRequestID == targetID {
		payload["status"] = []string{"interrupt-unsent", "done"}
	} else {
		payload["status"] = []string{"session-idle", "done"}
	}
	return []Dict{payload}
}

func (e *Engine) handleLsMiddleware(msg Message) []Dict {
	session := e.sessions.ensure(msg.Session())
	e.middlewareMu.Lock()
	stack := append([]string(nil), e.middlewareStack...)
	e.middlewareMu.Unlock()
	payload := Dict{"session": session.ID, "middleware": stack, "status": []string{"done"}}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleAddMiddleware(msg Message) []Dict {
	items, ok := msg.StringList("middleware")
	if !ok {
		return unsupportedResponse(msg, "missing-middleware")
	}
	e.middlewareMu.Lock()
	for _, item := range items {
		if !slices.Contains(e.middlewareStack, item) {
			e.middlewareStack = append(e.middlewareStack, item)
		}
	}
	stack := append([]string(nil), e.middlewareStack...)
	e.middlewareMu.Unlock()

	session := e.sessions.ensure(msg.Session())
	payload := Dict{"session": session.ID, "middleware": stack, "status": []string{"done"}}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleSwapMiddleware(msg Message) []Dict {
	items, ok := msg.StringList("middleware")
	if !ok {
		return unsupportedResponse(msg, "missing-middleware")
	}
	e.middlewareMu.Lock()
	if !sameSet(e.middlewareStack, items) {
		e.middlewareMu.Unlock()
		return unsupportedResponse(msg, "middleware-mismatch")
	}
	e.middlewareStack = items
	stack := append([]string(nil), e.middlewareStack...)
	e.middlewareMu.Unlock()

	session := e.sessions.ensure(msg.Session())
	payload := Dict{"session": session.ID, "middleware": stack, "status": []string{"done"}}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

// sameSet reports whether a and b hold the same elements regardless of
// order, the test swap-middleware uses to allow reordering but reject a
// request that tries to sneak in or drop an entry.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	slices.Sort(sortedA)
	slices.Sort(sortedB)
	return slices.Equal(sortedA, sortedB)
}

func (e *Engine) handleStdin(msg Message) []Dict {
	chunk := msg.Get("stdin")
	if chunk == "" {
		return unsupportedResponse(msg, "missing-stdin")
	}
	session := e.sessions.ensure(msg.Session())
	session.StdinBuffer += chunk
	payload := Dict{
		"session": session.ID,
		"stdin":   chunk,
		"unread":  session.StdinBuffer,
		"status":  []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func (e *Engine) handleCaught(msg Message) []Dict {
	session := e.sessions.ensure(msg.Session())
	payload := Dict{"session": session.ID}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	if session.HasLastException {
		payload["err"] = session.LastExceptionMessage
		payload["exception-type"] = session.LastExceptionType
		payload["status"] = []string{"done"}
	} else {
		payload["status"] = []string{"done", "no-error"}
	}
	return []Dict{payload}
}

func (e *Engine) handleAnalyzeLastStacktrace(msg Message) []Dict {
	session := e.sessions.ensure(msg.Session())
	if !session.HasLastException {
		return []Dict{doneResponse(session.ID, msg.ID(), []string{"done", "no-error"})}
	}
	cause := Dict{
		"session": session.ID,
		"class":   session.LastExceptionType,
		"message": session.LastExceptionMessage,
		"type":    "jank-core",
	}
	if msg.ID() != "" {
		cause["id"] = msg.ID()
	}
	return []Dict{cause, doneResponse(session.ID, msg.ID(), []string{"done"})}
}

// handleTest is a narrowed clojure.test harness: this runtime has no
// test-var discovery, so it evaluates the requested forms directly and
// reports pass/fail purely from whether evaluation raised an error,
// preserving the response shape an editor expects
// (results/summary/elapsed-time) without clojure.test itself.
func (e *Engine) handleTest(msg Message) []Dict {
	nsName := msg.Get("ns")
	if nsName == "" {
		return unsupportedResponse(msg, "missing-ns")
	}
	session := e.sessions.ensure(msg.Session())

	names, _ := msg.StringList("tests")
	var pass, fail int64
	varResults := Dict{}
	for _, name := range names {
		_, err := captureStdout(func() error {
			return e.Processor.EvalString(fmt.Sprintf("(%s/%s)", nsName, name))
		})
		status := "pass"
		if err != nil {
			status = "fail"
			fail++
		} else {
			pass++
		}
		varResults[name] = List{Dict{"type": status, "ns": nsName, "var": name}}
	}

	payload := Dict{
		"session":    session.ID,
		"results":    Dict{nsName: varResults},
		"summary":    Dict{"test": int64(len(names)), "pass": pass, "fail": fail, "error": int64(0)},
		"testing-ns": nsName,
		"status":     []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

// handleCacheStats is an extra op surfacing the persistent cache's
// hit/miss counters through the same nREPL channel an editor already
// has open, instead of requiring a separate diagnostics port.
func (e *Engine) handleCacheStats(msg Message) []Dict {
	session := e.sessions.ensure(msg.Session())
	stats := e.Cache.GetStats()
	regStats := e.Registry.GetStats()
	payload := Dict{
		"session": session.ID,
		"cache": Dict{
			"disk-hits":   stats.DiskHits,
			"disk-misses": stats.DiskMisses,
			"entries":     stats.Entries,
		},
		"registry": Dict{
			"entries": regStats.Entries,
			"hits":    regStats.Hits,
			"misses":  regStats.Misses,
		},
		"status": []string{"done"},
	}
	if msg.ID() != "" {
		payload["id"] = msg.ID()
	}
	return []Dict{payload}
}

func stripTextProperties(s string) string {
	// Editors sometimes send symbols wrapped in CIDER's propertized-text
	// markers, e.g. #("name" 0 4 (face ...)); keep only the quoted name,
	// then strip a leading var-quote and any stray control bytes the
	// editor's text-properties encoding left behind.
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `#("`) {
		if end := strings.IndexByte(s[3:], '"'); end >= 0 {
			s = s[3 : 3+end]
		}
	}
	if strings.HasPrefix(s, "#'") {
		s = s[2:]
	}
	clean, _, err := transform.String(symbolTransform, s)
	if err != nil {
		return s
	}
	return clean
}

// captureStdout redirects os.Stdout for the duration of fn, returning
// whatever was written. The redirect is process-wide and runs on the
// calling connection's goroutine, so stdoutMu serializes captures across
// connections to keep one eval's output out of another's.
var stdoutMu sync.Mutex

func captureStdout(fn func() error) (string, error) {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	r, w, err := os.Pipe()
	if err != nil {
		return "", fn()
	}
	original := os.Stdout
	os.Stdout = w

	done := make(chan string, 1)
	go func() {
		var buf strings.Builder
		io.Copy(&buf, r)
		done <- buf.String()
	}()

	fnErr := fn()

	os.Stdout = original
	w.Close()
	out := <-done
	r.Close()
	return out, fnErr
}
