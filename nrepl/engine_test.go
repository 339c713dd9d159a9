package nrepl

import (
	"testing"

	"github.com/jank-lang/jank-core/pcache"
	"github.com/jank-lang/jank-core/registry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := registry.New()
	cache, err := pcache.Open(pcache.Options{CacheRoot: t.TempDir(), BinaryVersion: "v1"})
	if err != nil {
		t.Fatalf("pcache.Open: %v", err)
	}
	return NewEngine(nil, reg, cache)
}

func statusOf(d Dict) []string {
	if s, ok := d["status"].([]string); ok {
		return s
	}
	return nil
}

func TestDescribeListsOpsAndVersion(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "describe", "id": "1"}})
	if len(resp) != 1 {
		t.Fatalf("expected one response, got %d", len(resp))
	}
	ops, ok := resp[0]["ops"].(Dict)
	if !ok {
		t.Fatalf("expected an ops dict, got %#v", resp[0]["ops"])
	}
	for _, want := range []string{"eval", "clone", "close", "cache-stats", "test"} {
		if _, ok := ops[want]; !ok {
			t.Fatalf("expected describe to list op %q", want)
		}
	}
}

func TestCloneThenLsSessions(t *testing.T) {
	e := newTestEngine(t)
	cloneResp := e.Handle(Message{Data: Dict{"op": "clone", "id": "1"}})
	newSession, _ := cloneResp[0]["new-session"].(string)
	if newSession == "" {
		t.Fatalf("expected clone to return a new-session id")
	}

	lsResp := e.Handle(Message{Data: Dict{"op": "ls-sessions", "id": "2"}})
	sessions, ok := lsResp[0]["sessions"].([]string)
	if !ok || len(sessions) != 1 || sessions[0] != newSession {
		t.Fatalf("expected ls-sessions to list the cloned session, got %#v", lsResp[0]["sessions"])
	}
}

func TestCloseUnknownSessionErrors(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "close", "id": "1", "session": "nope"}})
	status := statusOf(resp[0])
	if len(status) == 0 || status[0] != "done" || status[1] != "error" {
		t.Fatalf("expected error status closing an unknown session, got %#v", resp[0])
	}
}

func TestCompletionsPrefixMatchesRegistry(t *testing.T) {
	e := newTestEngine(t)
	e.Registry.Store(registry.Symbol{Namespace: "user", Name: "foo-bar"}, 1, "v")
	e.Registry.Store(registry.Symbol{Namespace: "user", Name: "foo-baz"}, 1, "v")
	e.Registry.Store(registry.Symbol{Namespace: "other", Name: "quux"}, 1, "v")

	resp := e.Handle(Message{Data: Dict{"op": "completions", "prefix": "user/foo"}})
	completions, ok := resp[0]["completions"].(List)
	if !ok || len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %#v", resp[0]["completions"])
	}
}

func TestLookupUnknownSymbolReportsNoInfo(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "lookup", "sym": "user/missing"}})
	status := statusOf(resp[0])
	if len(status) < 2 || status[1] != "no-info" {
		t.Fatalf("expected no-info status, got %#v", status)
	}
}

func TestLookupKnownSymbolReturnsInfo(t *testing.T) {
	e := newTestEngine(t)
	e.Registry.Store(registry.Symbol{Namespace: "user", Name: "foo"}, 1, "v")
	resp := e.Handle(Message{Data: Dict{"op": "info", "sym": "user/foo"}})
	info, ok := resp[0]["info"].(Dict)
	if !ok || info["name"] != "foo" || info["ns"] != "user" {
		t.Fatalf("expected info for known symbol, got %#v", resp[0]["info"])
	}
}

func TestForwardSystemOutputSetsSessionFlag(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "forward-system-output", "session": "s1"}})
	sessionID, _ := resp[0]["session"].(string)
	s := e.sessions.ensure(sessionID)
	if !s.ForwardSystemOutput {
		t.Fatalf("expected forward-system-output to set the session flag")
	}
}

func TestInterruptReportsIdleWhenNoEvalRunning(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "interrupt", "session": "s1", "interrupt-id": "42"}})
	status := statusOf(resp[0])
	if len(status) == 0 || status[0] != "session-idle" {
		t.Fatalf("expected session-idle status, got %#v", status)
	}
}

func TestAddMiddlewareDedupesThenLsMiddlewareReportsAll(t *testing.T) {
	e := newTestEngine(t)
	e.Handle(Message{Data: Dict{"op": "add-middleware", "middleware": List{"mw-a", "mw-b"}}})
	e.Handle(Message{Data: Dict{"op": "add-middleware", "middleware": List{"mw-b", "mw-c"}}})

	resp := e.Handle(Message{Data: Dict{"op": "ls-middleware"}})
	stack, ok := resp[0]["middleware"].([]string)
	if !ok || len(stack) != 3 {
		t.Fatalf("expected 3 deduped middleware entries, got %#v", resp[0]["middleware"])
	}
}

func TestSwapMiddlewareRejectsDifferentSet(t *testing.T) {
	e := newTestEngine(t)
	e.Handle(Message{Data: Dict{"op": "add-middleware", "middleware": List{"mw-a"}}})
	resp := e.Handle(Message{Data: Dict{"op": "swap-middleware", "middleware": List{"mw-b"}}})
	status := statusOf(resp[0])
	if len(status) < 2 || status[1] != "error" {
		t.Fatalf("expected swap-middleware to reject an unrelated set, got %#v", status)
	}
}

func TestSwapMiddlewareReordersSameSet(t *testing.T) {
	e := newTestEngine(t)
	e.Handle(Message{Data: Dict{"op": "add-middleware", "middleware": List{"mw-a", "mw-b"}}})
	resp := e.Handle(Message{Data: Dict{"op": "swap-middleware", "middleware": List{"mw-b", "mw-a"}}})
	stack, ok := resp[0]["middleware"].([]string)
	if !ok || len(stack) != 2 || stack[0] != "mw-b" || stack[1] != "mw-a" {
		t.Fatalf("expected reordered middleware, got %#v", resp[0]["middleware"])
	}
}

func TestStdinAccumulatesBuffer(t *testing.T) {
	e := newTestEngine(t)
	first := e.Handle(Message{Data: Dict{"op": "stdin", "session": "s1", "stdin": "abc"}})
	sessionID, _ := first[0]["session"].(string)
	second := e.Handle(Message{Data: Dict{"op": "stdin", "session": sessionID, "stdin": "def"}})
	if second[0]["unread"] != "abcdef" {
		t.Fatalf("expected accumulated stdin buffer, got %#v", second[0]["unread"])
	}
}

func TestCaughtReportsNoErrorWhenNoneRecorded(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "caught", "session": "s1"}})
	status := statusOf(resp[0])
	if len(status) < 2 || status[1] != "no-error" {
		t.Fatalf("expected no-error status, got %#v", status)
	}
}

func TestAnalyzeLastStacktraceAfterRecordedException(t *testing.T) {
	e := newTestEngine(t)
	s := e.sessions.ensure("s1")
	s.HasLastException = true
	s.LastExceptionMessage = "boom"
	s.LastExceptionType = "error"

	resp := e.Handle(Message{Data: Dict{"op": "analyze-last-stacktrace", "session": "s1"}})
	if len(resp) != 2 {
		t.Fatalf("expected a cause frame plus a done message, got %d", len(resp))
	}
	if resp[0]["message"] != "boom" {
		t.Fatalf("expected cause message to carry the recorded exception, got %#v", resp[0])
	}
}

func TestCacheStatsReportsCounters(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "cache-stats", "session": "s1"}})
	if _, ok := resp[0]["cache"].(Dict); !ok {
		t.Fatalf("expected a cache stats dict, got %#v", resp[0]["cache"])
	}
	if _, ok := resp[0]["registry"].(Dict); !ok {
		t.Fatalf("expected a registry stats dict, got %#v", resp[0]["registry"])
	}
}

func TestUnknownOpReportsUnknownOp(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Handle(Message{Data: Dict{"op": "not-a-real-op", "id": "1"}})
	status := statusOf(resp[0])
	if len(status) == 0 || status[len(status)-1] != "unknown-op" {
		t.Fatalf("expected unknown-op status, got %#v", status)
	}
}
