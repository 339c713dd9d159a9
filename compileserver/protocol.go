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

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/jank-lang/jank-core/remote"
)

// getString and getInt are thin aliases over the remote package's
// field-scanning parser -- the server side of the same wire protocol,
// so it reuses the same minimal decoder rather than a second one.
func getString(json, key string) string { return remote.GetJSONString(json, key) }
func getInt(json, key string) int64     { return remote.GetJSONInt(json, key) }
func escapeString(s string) string      { return remote.EscapeJSON(s) }

func errorLine(id int64, message, errType string) string {
	return fmt.Sprintf(`{"op":"error","id":%d,"error":"%s","type":"%s"}`+"\n",
		id, escapeString(message), errType)
}

func compiledLine(id int64, symbol string, object []byte) string {
	return fmt.Sprintf(`{"op":"compiled","id":%d,"symbol":"%s","object":"%s"}`+"\n",
		id, escapeString(symbol), remote.Base64Encode(object))
}

type compiledModuleResult struct {
	name   string
	symbol string
	object []byte
}

func requiredLine(id int64, modules []compiledModuleResult) string {
	objs := make([]byte, 0, 64*len(modules))
	objs = append(objs, '[')
	for i, m := range modules {
		if i > 0 {
			objs = append(objs, ',')
		}
		objs = append(objs, fmt.Sprintf(`{"name":"%s","symbol":"%s","object":"%s"}`,
			escapeString(m.name), escapeString(m.symbol), remote.Base64Encode(m.object))...)
	}
	objs = append(objs, ']')
	return fmt.Sprintf(`{"op":"required","id":%d,"modules":%s}`+"\n", id, objs)
}

// sourceHash keys the cache and the in-flight dedup set by a unit of
// remotely-submitted code. It is intentionally not the structural
// expression fingerprint the local incremental registry uses (that one
// hashes an already-analyzed expr.Expr; the compile server only ever
// sees raw, unparsed source text over the wire), so it folds the
// namespace and code text directly with the same fnv-1a primitive the
// fingerprint package uses for its own string folding.
func sourceHash(code, ns string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ns))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return h.Sum64()
}

func readObjectFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
