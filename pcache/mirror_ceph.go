//go:build ceph

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
	"context"
	"fmt"

	"github.com/ceph/go-ceph/rados"
)

// CephMirror mirrors cache entries into a RADOS pool, gated behind the
// "ceph" build tag since librados is a cgo dependency most dev machines
// won't have installed.
type CephMirror struct {
	conn   *rados.Conn
	ioctx  *rados.IOContext
	prefix string
}

type CephMirrorOptions struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

func NewCephMirror(opts CephMirrorOptions) (*CephMirror, error) {
	conn, err := rados.NewConnWithClusterAndUser(opts.ClusterName, opts.UserName)
	if err != nil {
		return nil, fmt.Errorf("pcache: ceph conn: %w", err)
	}
	if err := conn.ReadConfigFile(opts.ConfFile); err != nil {
		return nil, fmt.Errorf("pcache: ceph config: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("pcache: ceph connect: %w", err)
	}
	ioctx, err := conn.OpenIOContext(opts.Pool)
	if err != nil {
		conn.Shutdown()
		return nil, fmt.Errorf("pcache: ceph open pool: %w", err)
	}
	return &CephMirror{conn: conn, ioctx: ioctx, prefix: opts.Prefix}, nil
}

func (m *CephMirror) objectName(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

func (m *CephMirror) Put(ctx context.Context, key string, data []byte) error {
	op := rados.CreateWriteOp()
	defer op.Release()
	op.WriteFull(data)
	return op.Operate(m.ioctx, m.objectName(key), rados.OperationNoFlag)
}

func (m *CephMirror) Get(ctx context.Context, key string) ([]byte, bool, error) {
	stat, err := m.ioctx.Stat(m.objectName(key))
	if err != nil {
		return nil, false, nil
	}
	buf := make([]byte, stat.Size)
	n, err := m.ioctx.Read(m.objectName(key), buf, 0)
	if err != nil {
		return nil, false, err
	}
	return buf[:n], true, nil
}

func (m *CephMirror) Close() {
	m.ioctx.Destroy()
	m.conn.Shutdown()
}
