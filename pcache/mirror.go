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

package pcache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Mirror lets a Cache keep an off-box copy of its .cpp/.expr payloads,
// for fleets of build machines that want to skip C++ generation even on
// a cold local disk. Mirrors are best-effort: a mirror error never fails
// a Save/LoadEntry, since the local directory is always the source of
// truth.
type Mirror interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// compress runs data through LZ4 before handing it to a Mirror, so the
// network/object-storage cost of mirroring generated C++ (which compresses
// well -- it's mostly repeated boilerplate) stays low.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pcache: lz4 decompress: %w", err)
	}
	return out, nil
}

// MirrorSave compresses and forwards an entry's source+expr payload to m,
// keyed by the entry's hex fingerprint. Call this after a successful
// Cache.Save/SaveExpression pair.
func MirrorSave(ctx context.Context, m Mirror, h uint64, cpp, exprSrc []byte) error {
	var payload bytes.Buffer
	writeLenPrefixed(&payload, cpp)
	writeLenPrefixed(&payload, exprSrc)
	packed, err := compress(payload.Bytes())
	if err != nil {
		return err
	}
	return m.Put(ctx, hexHash(h), packed)
}

// MirrorLoad retrieves and decompresses a mirrored entry, if present.
func MirrorLoad(ctx context.Context, m Mirror, h uint64) (cpp, exprSrc []byte, ok bool, err error) {
	packed, found, err := m.Get(ctx, hexHash(h))
	if err != nil || !found {
		return nil, nil, found, err
	}
	raw, err := decompress(packed)
	if err != nil {
		return nil, nil, false, err
	}
	r := bytes.NewReader(raw)
	cpp, err = readLenPrefixed(r)
	if err != nil {
		return nil, nil, false, err
	}
	exprSrc, err = readLenPrefixed(r)
	if err != nil {
		return nil, nil, false, err
	}
	return cpp, exprSrc, true, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenbuf [4]byte
	n := uint32(len(data))
	lenbuf[0] = byte(n >> 24)
	lenbuf[1] = byte(n >> 16)
	lenbuf[2] = byte(n >> 8)
	lenbuf[3] = byte(n)
	buf.Write(lenbuf[:])
	buf.Write(data)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return nil, err
	}
	n := uint32(lenbuf[0])<<24 | uint32(lenbuf[1])<<16 | uint32(lenbuf[2])<<8 | uint32(lenbuf[3])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
