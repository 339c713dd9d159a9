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

package compileserver

import "strings"

// parseRequireForms extracts the namespace symbols named inside a
// namespace form's (:require ...) clause, e.g.
//
//	(ns user (:require [clojure.string :as str] [a.b.c]))
//
// returns ["clojure.string" "a.b.c"]. This is a deliberately narrow
// scanner, not a reader: it only needs to discover which namespaces a
// `require` exchange must resolve source for, not to parse the form
// into any usable data structure.
func parseRequireForms(source string) []string {
	idx := strings.Index(source, ":require")
	if idx < 0 {
		return nil
	}
	rest := source[idx+len(":require"):]

	var deps []string
	depth := 0
	start := -1
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '[':
			depth++
			if depth == 1 {
				start = i + 1
			}
		case ']':
			depth--
			if depth == 0 && start >= 0 {
				deps = append(deps, firstSymbol(rest[start:i]))
				start = -1
			}
		case '(':
			if depth == 0 {
				// Nested require-like form closed the :require clause's
				// enclosing list; stop scanning.
				return deps
			}
		case ')':
			if depth == 0 {
				return deps
			}
		}
	}
	return deps
}

func firstSymbol(vec string) string {
	vec = strings.TrimSpace(vec)
	end := strings.IndexAny(vec, " \t\n")
	if end < 0 {
		return vec
	}
	return vec[:end]
}
