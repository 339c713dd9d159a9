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

// Package nrepl implements the nREPL Engine: a bencode
// message framer, session lifecycle, and the op table an editor's nREPL
// client drives a running process through.
//
// No bencode library appears anywhere in the retrieved pack, and the
// format itself is four trivial productions (string, integer, list,
// dict), so the codec here is hand-rolled rather than imported --
// exactly the kind of narrow, fixed-shape wire format the compile
// server's minimal JSON scanner already established as this codebase's
// house style for small protocols (see the `remote` package).
package nrepl

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Dict is a decoded bencode dictionary. nREPL dictionaries are always
// string-keyed.
type Dict map[string]any

// List is a decoded bencode list.
type List []any

// DecodeMessage reads exactly one bencoded dictionary from r. nREPL
// frames the wire as a stream of dictionaries with no outer framing, so
// callers read one message at a time from a shared buffered reader.
func DecodeMessage(r *bufio.Reader) (Dict, error) {
	v, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	d, ok := v.(Dict)
	if !ok {
		return nil, fmt.Errorf("nrepl: bencode: expected a dict at message start")
	}
	return d, nil
}

func decodeValue(r *bufio.Reader) (any, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch {
	case b == 'd':
		return decodeDict(r)
	case b == 'l':
		return decodeList(r)
	case b == 'i':
		return decodeInt(r)
	case b >= '0' && b <= '9':
		return decodeString(r, b)
	default:
		return nil, fmt.Errorf("nrepl: bencode: unexpected leading byte %q", b)
	}
}

func decodeDict(r *bufio.Reader) (Dict, error) {
	d := Dict{}
	for {
		peek, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if peek[0] == 'e' {
			r.ReadByte()
			return d, nil
		}
		keyVal, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		key, ok := keyVal.(string)
		if !ok {
			return nil, fmt.Errorf("nrepl: bencode: dict key must be a string")
		}
		val, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		d[key] = val
	}
}

func decodeList(r *bufio.Reader) (List, error) {
	var l List
	for {
		peek, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if peek[0] == 'e' {
			r.ReadByte()
			return l, nil
		}
		v, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func decodeInt(r *bufio.Reader) (int64, error) {
	s, err := r.ReadString('e')
	if err != nil {
		return 0, err
	}
	s = s[:len(s)-1]
	return strconv.ParseInt(s, 10, 64)
}

// decodeString handles the "<len>:<bytes>" production; firstDigit is
// the byte decodeValue already consumed to dispatch here.
func decodeString(r *bufio.Reader, firstDigit byte) (string, error) {
	lenStr, err := r.ReadString(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(string(firstDigit) + lenStr[:len(lenStr)-1])
	if err != nil {
		return "", fmt.Errorf("nrepl: bencode: bad string length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// EncodeMessage bencodes a dict, sorting keys for deterministic output
// (bencode requires sorted dict keys for canonical encodings, and CIDER
// doesn't care, but it costs nothing to be correct).
func EncodeMessage(d Dict) []byte {
	var buf []byte
	buf = append(buf, 'd')
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = append(buf, encodeString(k)...)
		buf = append(buf, encodeValue(d[k])...)
	}
	buf = append(buf, 'e')
	return buf
}

func encodeValue(v any) []byte {
	switch t := v.(type) {
	case nil:
		return encodeString("")
	case string:
		return encodeString(t)
	case []byte:
		return encodeString(string(t))
	case int:
		return encodeInt(int64(t))
	case int64:
		return encodeInt(t)
	case []string:
		l := make(List, len(t))
		for i, s := range t {
			l[i] = s
		}
		return encodeValue(l)
	case List:
		var buf []byte
		buf = append(buf, 'l')
		for _, item := range t {
			buf = append(buf, encodeValue(item)...)
		}
		buf = append(buf, 'e')
		return buf
	case Dict:
		return EncodeMessage(t)
	default:
		return encodeString(fmt.Sprint(t))
	}
}

func encodeString(s string) []byte {
	return []byte(fmt.Sprintf("%d:%s", len(s), s))
}

func encodeInt(n int64) []byte {
	return []byte(fmt.Sprintf("i%de", n))
}
