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

package remote

import "strconv"

// EscapeJSON escapes the handful of characters this calls out:
// the string escapes recognized on decode (\n \r \t \" \\).
func EscapeJSON(s string) string {
	out := make([]byte, 0, len(s)+8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// GetJSONString finds key as an object key (immediately followed by a
// colon, skipping whitespace) rather than as a string value anywhere in
// the document, and returns its unescaped string value. Returns "" if
// the key isn't present or its value isn't a quoted string.
func GetJSONString(json, key string) string {
	keyPos := findKey(json, key)
	if keyPos < 0 {
		return ""
	}
	colon := indexFrom(json, ':', keyPos)
	if colon < 0 {
		return ""
	}
	quoteStart := colon + 1
	for quoteStart < len(json) && (json[quoteStart] == ' ' || json[quoteStart] == '\t') {
		quoteStart++
	}
	if quoteStart >= len(json) || json[quoteStart] != '"' {
		return ""
	}
	quoteEnd := quoteStart + 1
	for quoteEnd < len(json) {
		if json[quoteEnd] == '"' && json[quoteEnd-1] != '\\' {
			break
		}
		quoteEnd++
	}
	var out []byte
	for i := quoteStart + 1; i < quoteEnd; i++ {
		if json[i] == '\\' && i+1 < quoteEnd {
			switch json[i+1] {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			default:
				out = append(out, json[i])
			}
			i++
		} else {
			out = append(out, json[i])
		}
	}
	return string(out)
}

// GetJSONInt mirrors GetJSONString but parses a bare numeric value.
func GetJSONInt(json, key string) int64 {
	keyPos := findKey(json, key)
	if keyPos < 0 {
		return 0
	}
	colon := indexFrom(json, ':', keyPos)
	if colon < 0 {
		return 0
	}
	start := colon + 1
	for start < len(json) && (json[start] == ' ' || json[start] == '\t') {
		start++
	}
	end := start
	for end < len(json) && (json[end] == '-' || (json[end] >= '0' && json[end] <= '9')) {
		end++
	}
	n, err := strconv.ParseInt(json[start:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// findKey locates `"key"` as an object key -- immediately followed
// (modulo whitespace) by a colon -- distinguishing it from the same text
// appearing as a string value. Returns -1 if not found.
func findKey(json, key string) int {
	search := `"` + key + `"`
	pos := 0
	for {
		idx := indexSubstrFrom(json, search, pos)
		if idx < 0 {
			return -1
		}
		after := idx + len(search)
		for after < len(json) && (json[after] == ' ' || json[after] == '\t') {
			after++
		}
		if after < len(json) && json[after] == ':' {
			return idx
		}
		pos = idx + 1
	}
}

func indexFrom(s string, b byte, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func indexSubstrFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	i := indexSubstr(s[from:], sub)
	if i < 0 {
		return -1
	}
	return i + from
}

func indexSubstr(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// FindArrayBounds locates the `[`...`]` span of a top-level array field
// named key, returning the inner content (exclusive of brackets) the way
// the require_response modules-array parser does.
func FindArrayBounds(json, key string) (content string, ok bool) {
	keyPos := findKey(json, key)
	if keyPos < 0 {
		return "", false
	}
	open := indexFrom(json, '[', keyPos)
	if open < 0 {
		return "", false
	}
	shut := lastIndexByte(json, ']')
	if shut < 0 || shut <= open {
		return "", false
	}
	return json[open+1 : shut], true
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// SplitObjects walks a comma-joined-but-not-reliably-so array body and
// returns each `{...}` object's raw text by pairing every `{` with the
// next `}` rather than comma splitting (which would break on commas
// inside string values). Objects are not nested and braces inside string
// values are not recognized.
func SplitObjects(arrayContent string) []string {
	var objs []string
	pos := 0
	for pos < len(arrayContent) {
		start := indexFrom(arrayContent, '{', pos)
		if start < 0 {
			break
		}
		end := indexFrom(arrayContent, '}', start)
		if end < 0 {
			break
		}
		objs = append(objs, arrayContent[start:end+1])
		pos = end + 1
	}
	return objs
}
