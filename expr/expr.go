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

// Package expr models the analyzed expression tree the CORE receives from
// the (external, non-goal) analyzer. It only carries what fingerprint.Hash,
// the incremental registry and the JIT need to see: kind, referenced
// symbols, literal values and nested children. Source positions and
// freshly generated names are represented so callers can populate them,
// but fingerprint.Hash is defined to ignore them.
package expr

// Kind tags every expression node for a single type-switch-free dispatch
// over the node variants below.
type Kind uint8

const (
	KindLiteral Kind = iota
	KindLocalRef
	KindVarDeref
	KindVarRef
	KindCall
	KindBuiltinCall
	KindForeign
	KindVector
	KindSet
	KindMap
	KindList
	KindFunction
	KindRecur
	KindLet
	KindLetFn
	KindDo
	KindIf
	KindThrow
	KindTry
	KindCase
	KindDef
)

// Pos is a source position. fingerprint.Hash never looks at it.
type Pos struct {
	File string
	Line int
	Col  int
}

// Literal is the payload of a KindLiteral node. Exactly one of the typed
// fields is meaningful, selected by LitKind.
type LitKind uint8

const (
	LitNil LitKind = iota
	LitBool
	LitInt
	LitReal
	LitString
	LitKeyword
)

type Literal struct {
	Kind LitKind
	Bool bool
	Int  int64
	Real float64
	Str  string // string/keyword text
}

// Param is one parameter of a function arity.
type Param struct {
	Name    string
	Variadic bool // true for the trailing rest-arg of a variadic arity
}

// Arity is one overload of a KindFunction node: a parameter list plus body.
type Arity struct {
	Params []Param
	Body   []Expr
}

// CatchClause is one `catch` arm of a KindTry node.
type CatchClause struct {
	ExceptionType string
	Binding       string
	Body          []Expr
}

// CaseClause is one test/result pair of a KindCase node. Default has
// Tests == nil.
type CaseClause struct {
	Tests  []Literal
	Result *Expr
}

// Expr is one node of the analyzed expression tree.
//
// A node is identified by Kind; the fields relevant to that kind are
// populated and the rest left zero. This mirrors a tagged union without
// needing Scmer's packed pointer representation -- expressions are
// analyzed once per def, not allocated per value on a hot path, so the
// extra struct size is not a concern here.
type Expr struct {
	Kind Kind
	Pos  Pos

	// KindLiteral
	Literal Literal

	// KindLocalRef: a reference to a local binding (let/fn param/letfn).
	// Name participates in the fingerprint verbatim -- see fingerprint.Hash.
	LocalName string

	// KindVarDeref / KindVarRef / KindDef: fully qualified symbol
	// "namespace/name". Always included in the fingerprint verbatim.
	QualifiedName string

	// KindCall: callee + args. Callee may itself be any Expr (including
	// another call, a var-deref, a function literal, etc).
	Callee *Expr
	Args   []Expr

	// KindBuiltinCall: operator kind of a builtin-operator call (e.g.
	// "+", "if-not", "instance?"). Distinct from KindCall so unrelated
	// user functions never collide with a builtin of the same arity.
	Operator string

	// KindForeign: a raw foreign-language snippet (C++ interop). The
	// textual code is part of the fingerprint verbatim.
	ForeignCode   string
	ForeignPolicy string // cast policy for cast-shaped foreign nodes

	// KindVector / KindSet / KindList / KindDo: homogeneous children.
	Elements []Expr

	// KindMap: alternating key/value pairs, flattened.
	Pairs []Expr

	// KindFunction: gensym'd unique name (excluded from the fingerprint)
	// plus one or more arities (included: count, params, body).
	UniqueName string
	Arities    []Arity

	// KindRecur: recursion target args.
	RecurArgs []Expr

	// KindLet / KindLetFn: ordered bindings plus body.
	Bindings []LetBinding
	Body     []Expr

	// KindIf: test/then/else. Else is nil for a two-arg `(if test then)`;
	// fingerprint.Hash distinguishes that from an explicit nil branch.
	Test *Expr
	Then *Expr
	Else *Expr

	// KindThrow
	ThrowValue *Expr

	// KindTry
	TryBody  []Expr
	Catches  []CatchClause
	Finally  []Expr

	// KindCase
	CaseValue   *Expr
	CaseClauses []CaseClause

	// Metadata that does not change behavior. Never included in the
	// fingerprint; carried only so other tools (error rendering, etc.,
	// both external collaborators) can use it.
	Meta map[string]any
}

// LetBinding is one (name value) pair of a let/letfn form.
type LetBinding struct {
	Name  string
	Value Expr
}
