package hotreload

import "testing"

func TestRegisterSymbolArity0(t *testing.T) {
	r := New()
	err := r.RegisterSymbol("user/const-42", func() any { return 42 }, "0")
	if err != nil {
		t.Fatalf("RegisterSymbol: %v", err)
	}
	v, ok := r.Lookup("user/const-42")
	if !ok {
		t.Fatalf("expected var to be registered")
	}
	result, err := v.Invoke(nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != 42 {
		t.Fatalf("got %v", result)
	}
}

func TestRegisterSymbolArity1Through4(t *testing.T) {
	r := New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("RegisterSymbol: %v", err)
		}
	}
	must(r.RegisterSymbol("user/id", func(a any) any { return a }, "1"))
	must(r.RegisterSymbol("user/add2", func(a, b any) any { return a.(int) + b.(int) }, "2"))
	must(r.RegisterSymbol("user/add3", func(a, b, c any) any { return a.(int) + b.(int) + c.(int) }, "3"))
	must(r.RegisterSymbol("user/add4", func(a, b, c, d any) any { return a.(int) + b.(int) + c.(int) + d.(int) }, "4"))

	cases := []struct {
		name string
		args []any
		want int
	}{
		{"user/id", []any{7}, 7},
		{"user/add2", []any{1, 2}, 3},
		{"user/add3", []any{1, 2, 3}, 6},
		{"user/add4", []any{1, 2, 3, 4}, 10},
	}
	for _, c := range cases {
		v, ok := r.Lookup(c.name)
		if !ok {
			t.Fatalf("expected %s registered", c.name)
		}
		got, err := v.Invoke(c.args)
		if err != nil {
			t.Fatalf("%s invoke: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestRegisterSymbolRejectsArityBeyondMax(t *testing.T) {
	r := New()
	err := r.RegisterSymbol("user/too-many", func(args ...any) any { return nil }, "11")
	if err == nil {
		t.Fatalf("expected registration error for arity beyond max, not a crash")
	}
}

func TestRegisterSymbolRejectsMalformedQualifiedName(t *testing.T) {
	r := New()
	if err := r.RegisterSymbol("not-qualified", func() any { return nil }, "0"); err == nil {
		t.Fatalf("expected error for non ns/name symbol")
	}
}

func TestInvokeArityMismatch(t *testing.T) {
	r := New()
	if err := r.RegisterSymbol("user/needs-two", func(a, b any) any { return nil }, "2"); err != nil {
		t.Fatalf("RegisterSymbol: %v", err)
	}
	v, _ := r.Lookup("user/needs-two")
	if _, err := v.Invoke([]any{1}); err == nil {
		t.Fatalf("expected arity mismatch error")
	}
}

func TestGetStatsReflectsRegistrations(t *testing.T) {
	r := New()
	r.RegisterSymbol("user/a", func() any { return nil }, "0")
	r.RegisterSymbol("user/b", func() any { return nil }, "0")
	stats := r.GetStats()
	// Direct RegisterSymbol calls (not via LoadPatch) don't add modules,
	// only vars -- module accounting is exercised by LoadPatch callers.
	if stats.LoadedModules != 0 {
		t.Fatalf("expected 0 modules from direct RegisterSymbol calls, got %d", stats.LoadedModules)
	}
}

func TestOnLoadCallbackFires(t *testing.T) {
	r := New()
	var fired []PatchLoadedNotification
	r.OnLoad(func(n PatchLoadedNotification) { fired = append(fired, n) })

	// Exercise the callback plumbing directly rather than through
	// LoadPatch, which needs a real compiled plugin file.
	r.mu.Lock()
	r.modules = append(r.modules, loadedModule{path: "/tmp/patch.so", symbols: []string{"user/a"}})
	onLoad := r.onLoad
	r.mu.Unlock()
	onLoad(PatchLoadedNotification{Path: "/tmp/patch.so", Symbols: []string{"user/a"}})

	if len(fired) != 1 || fired[0].Path != "/tmp/patch.so" {
		t.Fatalf("expected callback to fire with notification, got %+v", fired)
	}
}

func TestCanonicalPatchName(t *testing.T) {
	if CanonicalPatchName(0) != "jank_patch_symbols_0" {
		t.Fatalf("got %q", CanonicalPatchName(0))
	}
	if CanonicalPatchName(3) != "jank_patch_symbols_3" {
		t.Fatalf("got %q", CanonicalPatchName(3))
	}
}

func TestABIRoundTripsBoxedValues(t *testing.T) {
	r := New()
	r.RegisterSymbol("user/double", func(a any) any { return a.(int64) * 2 }, "1")
	abi := NewABI(r)

	boxed := abi.BoxInteger(21)
	if abi.UnboxInteger(boxed) != 21 {
		t.Fatalf("box/unbox round trip failed")
	}
	result, err := abi.CallVar("user/double", []any{abi.BoxInteger(21)})
	if err != nil {
		t.Fatalf("CallVar: %v", err)
	}
	if result != int64(42) {
		t.Fatalf("got %v", result)
	}

	if abi.MakeKeyword("foo") != Keyword("foo") {
		t.Fatalf("MakeKeyword mismatch")
	}
	vec := abi.MakeVector(1, 2, 3)
	if len(vec) != 3 {
		t.Fatalf("MakeVector mismatch")
	}
}

func TestABICallVarUnknownSymbol(t *testing.T) {
	r := New()
	abi := NewABI(r)
	if _, err := abi.CallVar("user/missing", nil); err == nil {
		t.Fatalf("expected error for unknown var")
	}
}
