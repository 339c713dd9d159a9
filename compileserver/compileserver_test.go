package compileserver

import "testing"

func TestParseRequireFormsExtractsSymbols(t *testing.T) {
	src := `(ns user (:require [clojure.string :as str] [a.b.c] [d.e :refer [f]]))`
	deps := parseRequireForms(src)
	want := []string{"clojure.string", "a.b.c", "d.e"}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want %v", deps, want)
	}
	for i, w := range want {
		if deps[i] != w {
			t.Fatalf("dep %d: got %q want %q", i, deps[i], w)
		}
	}
}

func TestParseRequireFormsNoRequireClause(t *testing.T) {
	if deps := parseRequireForms(`(ns user)`); deps != nil {
		t.Fatalf("expected nil, got %v", deps)
	}
}

func TestSourceHashDeterministic(t *testing.T) {
	a := sourceHash("(+ 1 2)", "user")
	b := sourceHash("(+ 1 2)", "user")
	if a != b {
		t.Fatal("expected identical hash for identical input")
	}
	if c := sourceHash("(+ 1 3)", "user"); c == a {
		t.Fatal("expected different hash for different code")
	}
	if d := sourceHash("(+ 1 2)", "other"); d == a {
		t.Fatal("expected different hash for different namespace")
	}
}

func TestErrorLineRoundTripsThroughParser(t *testing.T) {
	line := errorLine(7, `bad "quote" here`, "compile")
	if getString(line, "op") != "error" {
		t.Fatalf("op: got %q", getString(line, "op"))
	}
	if getInt(line, "id") != 7 {
		t.Fatalf("id: got %d", getInt(line, "id"))
	}
	if getString(line, "error") != `bad "quote" here` {
		t.Fatalf("error: got %q", getString(line, "error"))
	}
}

func TestCompiledLineEncodesObjectBytes(t *testing.T) {
	line := compiledLine(3, "user_foo", []byte("payload"))
	if getString(line, "symbol") != "user_foo" {
		t.Fatalf("symbol: got %q", getString(line, "symbol"))
	}
}

func TestRequiredLineListsEachModule(t *testing.T) {
	line := requiredLine(1, []compiledModuleResult{
		{name: "a.b", symbol: "a_b", object: []byte("x")},
		{name: "c", symbol: "c", object: []byte("y")},
	})
	if getString(line, "op") != "required" {
		t.Fatalf("op: got %q", getString(line, "op"))
	}
}

func TestStaticResolverResolveSource(t *testing.T) {
	r := StaticResolver{"a.b": "(ns a.b)"}
	if src, ok := r.ResolveSource("a.b"); !ok || src != "(ns a.b)" {
		t.Fatalf("got %q, %v", src, ok)
	}
	if _, ok := r.ResolveSource("missing"); ok {
		t.Fatal("expected not ok")
	}
}
