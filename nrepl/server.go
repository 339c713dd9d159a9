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

package nrepl

import (
	"bufio"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dc0d/onexit"
)

// Server accepts nREPL connections and drives each through the shared
// Engine, the way the compile server shares one jit.Processor across its
// own connections.
type Server struct {
	Engine *Engine
	Logger *log.Logger

	mu       sync.Mutex
	listener net.Listener
	portFile string
}

func NewServer(engine *Engine) *Server {
	return &Server{Engine: engine, Logger: log.Default()}
}

// ListenAndServe binds addr, writes a CIDER-discoverable .nrepl-port file
// in dir (skipped if dir is ""), and serves until Stop is called.
func (s *Server) ListenAndServe(addr, portFileDir string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if portFileDir != "" {
		if err := s.writePortFile(portFileDir, ln.Addr().(*net.TCPAddr).Port); err != nil {
			s.Logger.Printf("nrepl: could not write port file: %v", err)
		} else {
			onexit.Register(func() { os.Remove(s.portFile) })
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) writePortFile(dir string, port int) error {
	s.portFile = filepath.Join(dir, ".nrepl-port")
	return os.WriteFile(s.portFile, []byte(strconv.Itoa(port)), 0644)
}

// Stop closes the listener and removes the port file, mirroring the
// cleanup onexit.Register would otherwise only run on process exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.portFile != "" {
		os.Remove(s.portFile)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		data, err := DecodeMessage(reader)
		if err != nil {
			return
		}
		msg := Message{Data: data}
		for _, resp := range s.Engine.Handle(msg) {
			if _, err := conn.Write(EncodeMessage(resp)); err != nil {
				return
			}
		}
	}
}
