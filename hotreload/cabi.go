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

package hotreload

import "fmt"

// ABI is the small set of C-ABI helpers this says are exported for
// patches: box/unbox integer and double, build keyword/vector/set/string,
// call a var by ns/name with an argv, deref a var, and a print helper.
// These exist so a patch can be compiled without knowing the host's
// internal value-representation layout -- it only ever calls through
// ABI, never constructs a host value directly.
type ABI struct {
	registry *Registry
}

func NewABI(r *Registry) *ABI {
	return &ABI{registry: r}
}

func (a *ABI) BoxInteger(v int64) any  { return v }
func (a *ABI) UnboxInteger(v any) int64 {
	i, _ := v.(int64)
	return i
}

func (a *ABI) BoxDouble(v float64) any { return v }
func (a *ABI) UnboxDouble(v any) float64 {
	f, _ := v.(float64)
	return f
}

func (a *ABI) AddIntegers(x, y int64) int64 { return x + y }

// Keyword, Vector and Set are tagged so the runtime's printer and
// equality checks can distinguish them from a plain Go slice/string,
// mirroring how jank's own value representation tags every boxed value.
// MakeString returns a plain Go string.
type Keyword string
type Vector []any
type Set []any

func (a *ABI) MakeKeyword(name string) Keyword { return Keyword(name) }
func (a *ABI) MakeVector(items ...any) Vector   { return Vector(items) }
func (a *ABI) MakeSet(items ...any) Set         { return Set(items) }
func (a *ABI) MakeString(s string) string       { return s }

// CallVar invokes ns/name with argv, the signature a patch needs when it
// wants to call back into jank-defined code rather than another patch
// symbol.
func (a *ABI) CallVar(qname string, argv []any) (any, error) {
	v, ok := a.registry.Lookup(qname)
	if !ok {
		return nil, fmt.Errorf("hotreload: CallVar: unknown var %s", qname)
	}
	return v.Invoke(argv)
}

// DerefVar returns a var's current root binding without invoking it --
// useful for patches that hold onto a function value rather than calling
// through CallVar each time.
func (a *ABI) DerefVar(qname string) (Dispatcher, error) {
	v, ok := a.registry.Lookup(qname)
	if !ok {
		return nil, fmt.Errorf("hotreload: DerefVar: unknown var %s", qname)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.root, nil
}

// Println is the small print helper patches get instead of needing to
// link against the host's own output-formatting internals.
func (a *ABI) Println(s string) {
	fmt.Println(s)
}
