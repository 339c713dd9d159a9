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

// Package fingerprint computes the 64-bit structural hash the incremental
// registry and the persistent cache key everything on. Two expressions
// that differ only in source position or in a function's gensym'd unique
// name must hash identically; everything else that could change runtime
// behavior must participate.
package fingerprint

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/jank-lang/jank-core/expr"
)

// combine folds value into seed using the boost::hash_combine shape,
// matched bit-for-bit against jank's analyze/expression_hash.hpp::hash_combine.
func combine(seed, value uint64) uint64 {
	return seed ^ (value + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

func combineString(seed uint64, s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return combine(seed, h.Sum64())
}

func combineBytes(seed uint64, b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return combine(seed, h.Sum64())
}

// Hash returns the structural fingerprint of an analyzed expression.
func Hash(e expr.Expr) uint64 {
	return hashExpr(0, e)
}

func hashExpr(seed uint64, e expr.Expr) uint64 {
	seed = combine(seed, uint64(e.Kind))

	switch e.Kind {
	case expr.KindLiteral:
		return hashLiteral(seed, e.Literal)

	case expr.KindLocalRef:
		// The referenced local's name is folded in, the same way let
		// binding names and function parameter names are, so that
		// referring to a different local changes the fingerprint.
		return combineString(seed, e.LocalName)

	case expr.KindVarDeref, expr.KindVarRef, expr.KindDef:
		return combineString(seed, e.QualifiedName)

	case expr.KindCall:
		seed = hashExprPtr(seed, e.Callee)
		return hashExprSlice(seed, e.Args)

	case expr.KindBuiltinCall:
		seed = combineString(seed, e.Operator)
		return hashExprSlice(seed, e.Args)

	case expr.KindForeign:
		seed = combineString(seed, e.ForeignCode)
		return combineString(seed, e.ForeignPolicy)

	case expr.KindVector, expr.KindSet, expr.KindList, expr.KindDo:
		return hashExprSlice(seed, e.Elements)

	case expr.KindMap:
		return hashExprSlice(seed, e.Pairs)

	case expr.KindFunction:
		// UniqueName is intentionally excluded: a gensym'd rename must
		// not change the fingerprint.
		seed = combine(seed, uint64(len(e.Arities)))
		for _, a := range e.Arities {
			seed = combine(seed, uint64(len(a.Params)))
			for _, p := range a.Params {
				seed = combineString(seed, p.Name)
				if p.Variadic {
					seed = combine(seed, 1)
				}
			}
			seed = hashExprSlice(seed, a.Body)
		}
		return seed

	case expr.KindRecur:
		return hashExprSlice(seed, e.RecurArgs)

	case expr.KindLet, expr.KindLetFn:
		seed = combine(seed, uint64(len(e.Bindings)))
		for _, b := range e.Bindings {
			seed = combineString(seed, b.Name)
			seed = hashExpr(seed, b.Value)
		}
		return hashExprSlice(seed, e.Body)

	case expr.KindIf:
		seed = hashExprPtr(seed, e.Test)
		seed = hashExprPtr(seed, e.Then)
		return hashExprPtr(seed, e.Else)

	case expr.KindThrow:
		return hashExprPtr(seed, e.ThrowValue)

	case expr.KindTry:
		seed = hashExprSlice(seed, e.TryBody)
		seed = combine(seed, uint64(len(e.Catches)))
		for _, c := range e.Catches {
			seed = combineString(seed, c.ExceptionType)
			seed = combineString(seed, c.Binding)
			seed = hashExprSlice(seed, c.Body)
		}
		return hashExprSlice(seed, e.Finally)

	case expr.KindCase:
		seed = hashExprPtr(seed, e.CaseValue)
		seed = combine(seed, uint64(len(e.CaseClauses)))
		for _, c := range e.CaseClauses {
			seed = combine(seed, uint64(len(c.Tests)))
			for _, t := range c.Tests {
				seed = hashLiteral(seed, t)
			}
			seed = hashExprPtr(seed, c.Result)
		}
		return seed

	default:
		return seed
	}
}

func hashExprSlice(seed uint64, es []expr.Expr) uint64 {
	seed = combine(seed, uint64(len(es)))
	for _, e := range es {
		seed = hashExpr(seed, e)
	}
	return seed
}

// hashExprPtr folds an optional child node, distinguishing an absent
// pointer from a present-but-zero-value node with a leading marker bit.
func hashExprPtr(seed uint64, e *expr.Expr) uint64 {
	if e == nil {
		return combine(seed, 0)
	}
	return hashExpr(combine(seed, 1), *e)
}

func hashLiteral(seed uint64, l expr.Literal) uint64 {
	seed = combine(seed, uint64(l.Kind))
	switch l.Kind {
	case expr.LitNil:
		return seed
	case expr.LitBool:
		if l.Bool {
			return combine(seed, 1)
		}
		return combine(seed, 0)
	case expr.LitInt:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(l.Int))
		return combineBytes(seed, buf[:])
	case expr.LitReal:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(l.Real))
		return combineBytes(seed, buf[:])
	case expr.LitString, expr.LitKeyword:
		return combineString(seed, l.Str)
	default:
		return seed
	}
}

// FormatHex renders a fingerprint as the lowercase, zero-padded 16 hex
// digit form used for on-disk cache file names: POSIX/C locale,
// no thousands separators -- which for hex digits is simply the Go %x
// verb with a fixed width, since Go's fmt never locale-separates hex.
func FormatHex(h uint64) string {
	const hexdigits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = hexdigits[h&0xf]
		h >>= 4
	}
	return string(buf[:])
}
