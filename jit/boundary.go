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

package jit

import (
	"strings"

	packrat "github.com/launix-de/go-packrat/v2"
)

// tokenParser recognizes the handful of lexical classes ResultBoundary
// needs to tell apart: string/char literals (so a ';' or brace inside one
// is never mistaken for structure), brace delimiters, the statement
// terminator, and an "everything else" run. Built out of
// packrat.NewAtomParser regex atoms combined with packrat.NewOrParser,
// the same way a packrat-based reader composes its own token parsers,
// so the same scanning infrastructure drives C++ boundary-finding.
var tokenParser = packrat.NewOrParser(
	packrat.NewAtomParser(`"(\\.|[^"\\])*"`, true, true),
	packrat.NewAtomParser(`'(\\.|[^'\\])*'`, true, true),
	packrat.NewAtomParser(`\{`, true, true),
	packrat.NewAtomParser(`\}`, true, true),
	packrat.NewAtomParser(`;`, true, true),
	packrat.NewAtomParser(`[^{}"';]+`, true, true),
)

// ResultBoundary splits code into its leading statements and its trailing
// result expression: "code MUST NOT end in a statement
// terminator; the final form is the result expression." It walks the
// source with tokenParser, tracking brace depth so a ';' inside a nested
// block never looks like the top-level split point, and reports ok=false
// if the last non-whitespace token at depth 0 is a statement terminator.
func ResultBoundary(code string) (statements string, resultExpr string, ok bool) {
	scanner := packrat.NewScanner(code, packrat.SkipWhitespaceRegex)
	depth := 0
	lastSplit := 0
	pos := 0
	for {
		node, err := packrat.Parse(tokenParser, scanner)
		if err != nil || node == nil {
			break
		}
		tok := node.Matched
		// The scanner skips whitespace before each token; step pos over
		// it so pos stays an offset into code.
		if skip := strings.Index(code[pos:], tok); skip > 0 {
			pos += skip
		}
		switch tok {
		case "{":
			depth++
		case "}":
			if depth > 0 {
				depth--
			}
		case ";":
			if depth == 0 {
				lastSplit = pos + len(tok)
			}
		}
		pos += len(tok)
	}

	trailing := trimSpace(code[lastSplit:])
	if trailing == "" {
		return code, "", false
	}
	return code[:lastSplit], trailing, true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
