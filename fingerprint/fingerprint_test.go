package fingerprint

import (
	"testing"

	"github.com/jank-lang/jank-core/expr"
)

func intLit(v int64) expr.Expr {
	return expr.Expr{Kind: expr.KindLiteral, Literal: expr.Literal{Kind: expr.LitInt, Int: v}}
}

func nilLit() expr.Expr {
	return expr.Expr{Kind: expr.KindLiteral, Literal: expr.Literal{Kind: expr.LitNil}}
}

func TestSourcePositionsExcluded(t *testing.T) {
	a := expr.Expr{Kind: expr.KindBuiltinCall, Operator: "+", Args: []expr.Expr{intLit(1), intLit(2)}, Pos: expr.Pos{File: "a.jank", Line: 1, Col: 1}}
	b := a
	b.Pos = expr.Pos{File: "b.jank", Line: 99, Col: 42}
	if Hash(a) != Hash(b) {
		t.Fatalf("hash must be independent of source position")
	}
}

func TestGensymExcluded(t *testing.T) {
	fn := func(unique string) expr.Expr {
		return expr.Expr{
			Kind:       expr.KindFunction,
			UniqueName: unique,
			Arities: []expr.Arity{
				{Params: []expr.Param{{Name: "x"}}, Body: []expr.Expr{intLit(1)}},
			},
		}
	}
	if Hash(fn("fn_1234")) != Hash(fn("fn_9999")) {
		t.Fatalf("hash must be independent of gensym'd function name")
	}
}

func TestQualifiedNamesIncluded(t *testing.T) {
	a := expr.Expr{Kind: expr.KindVarDeref, QualifiedName: "user/foo"}
	b := expr.Expr{Kind: expr.KindVarDeref, QualifiedName: "user/bar"}
	if Hash(a) == Hash(b) {
		t.Fatalf("distinct var-derefs must hash differently")
	}
}

func TestEmptyDoVsDoWithNil(t *testing.T) {
	empty := expr.Expr{Kind: expr.KindDo, Elements: nil}
	withNil := expr.Expr{Kind: expr.KindDo, Elements: []expr.Expr{nilLit()}}
	if Hash(empty) == Hash(withNil) {
		t.Fatalf("empty do and (do nil) must hash differently")
	}
}

func TestLiteralValuesIncluded(t *testing.T) {
	if Hash(intLit(1)) == Hash(intLit(2)) {
		t.Fatalf("distinct int literals must hash differently")
	}
}

func TestDeterministic(t *testing.T) {
	e := expr.Expr{Kind: expr.KindBuiltinCall, Operator: "+", Args: []expr.Expr{intLit(1), intLit(2)}}
	h1 := Hash(e)
	h2 := Hash(e)
	if h1 != h2 {
		t.Fatalf("hash must be deterministic across runs")
	}
}

func TestCallCalleeParticipates(t *testing.T) {
	callee1 := intLit(1)
	callee2 := intLit(2)
	a := expr.Expr{Kind: expr.KindCall, Callee: &callee1}
	b := expr.Expr{Kind: expr.KindCall, Callee: &callee2}
	if Hash(a) == Hash(b) {
		t.Fatalf("distinct callees must hash differently")
	}
}

func TestIfElseAbsentVsPresent(t *testing.T) {
	test := intLit(1)
	then := intLit(2)
	els := nilLit()
	withElse := expr.Expr{Kind: expr.KindIf, Test: &test, Then: &then, Else: &els}
	withoutElse := expr.Expr{Kind: expr.KindIf, Test: &test, Then: &then}
	if Hash(withElse) == Hash(withoutElse) {
		t.Fatalf("an absent else branch must hash differently from an explicit nil else")
	}
}

func TestCaseValueAndResultParticipate(t *testing.T) {
	val1 := intLit(1)
	val2 := intLit(2)
	result := intLit(9)
	a := expr.Expr{
		Kind:      expr.KindCase,
		CaseValue: &val1,
		CaseClauses: []expr.CaseClause{
			{Tests: []expr.Literal{{Kind: expr.LitInt, Int: 1}}, Result: &result},
		},
	}
	b := expr.Expr{
		Kind:      expr.KindCase,
		CaseValue: &val2,
		CaseClauses: []expr.CaseClause{
			{Tests: []expr.Literal{{Kind: expr.LitInt, Int: 1}}, Result: &result},
		},
	}
	if Hash(a) == Hash(b) {
		t.Fatalf("distinct case values must hash differently")
	}
}

func TestThrowValueParticipates(t *testing.T) {
	v1 := intLit(1)
	v2 := intLit(2)
	a := expr.Expr{Kind: expr.KindThrow, ThrowValue: &v1}
	b := expr.Expr{Kind: expr.KindThrow, ThrowValue: &v2}
	if Hash(a) == Hash(b) {
		t.Fatalf("distinct throw values must hash differently")
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex(0); got != "0000000000000000" {
		t.Fatalf("got %q", got)
	}
	if got := FormatHex(0xdeadbeef); got != "00000000deadbeef" {
		t.Fatalf("got %q", got)
	}
}
