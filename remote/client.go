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

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Client is the Remote Compile Client: a single persistent TCP connection
// carrying newline-delimited JSON requests, each with a monotonically
// increasing id its response must echo.
type Client struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

// NewClient targets host:port; no connection is made until the first
// call that needs one.
func NewClient(host string, port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{addr: net.JoinHostPort(host, strconv.Itoa(port)), nextID: 1}
}

// Connect dials with the 5s connect timeout, then raises the read
// deadline to 300s
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("remote: connect to %s: %w", c.addr, err)
	}
	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Disconnect closes the underlying connection, if any.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) sendAndRecv(request string) (string, error) {
	if err := c.Connect(); err != nil {
		return "", err
	}
	c.mu.Lock()
	conn, reader := c.conn, c.reader
	c.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("remote: not connected")
	}

	if _, err := conn.Write([]byte(request)); err != nil {
		c.Disconnect()
		return "", fmt.Errorf("remote: send: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	line, err := reader.ReadString('\n')
	if err != nil {
		c.Disconnect()
		return "", fmt.Errorf("remote: receive: %w", err)
	}
	return line, nil
}

func (c *Client) allocID() int64 {
	return atomic.AddInt64(&c.nextID, 1) - 1
}

// Compile sends a `compile` request.
func (c *Client) Compile(code, ns, module string) CompileResponse {
	id := c.allocID()
	req := fmt.Sprintf(`{"op":"compile","id":%d,"code":"%s","ns":"%s","module":"%s"}`+"\n",
		id, EscapeJSON(code), EscapeJSON(ns), EscapeJSON(module))

	line, err := c.sendAndRecv(req)
	if err != nil {
		return CompileResponse{Success: false, Error: err.Error(), ErrorType: ErrorConnection}
	}
	return parseCompileResponse(line, id)
}

func parseCompileResponse(line string, wantID int64) CompileResponse {
	op := GetJSONString(line, "op")
	respID := GetJSONInt(line, "id")
	if respID != wantID {
		return CompileResponse{Success: false, Error: "response id mismatch", ErrorType: ErrorProtocol}
	}
	switch op {
	case "compiled":
		return CompileResponse{
			ID:         respID,
			Success:    true,
			EntrySym:   GetJSONString(line, "symbol"),
			ObjectData: Base64Decode(GetJSONString(line, "object")),
		}
	case "error":
		return CompileResponse{
			ID:        respID,
			Success:   false,
			Error:     GetJSONString(line, "error"),
			ErrorType: ErrorType(GetJSONString(line, "type")),
		}
	default:
		return CompileResponse{Success: false, Error: "unknown response op: " + op, ErrorType: ErrorProtocol}
	}
}

// Ping sends a `ping` request and reports whether a `pong` came back.
func (c *Client) Ping() bool {
	id := c.allocID()
	req := fmt.Sprintf(`{"op":"ping","id":%d}`+"\n", id)
	line, err := c.sendAndRecv(req)
	if err != nil {
		return false
	}
	return GetJSONString(line, "op") == "pong"
}

// NativeSource sends a `native-source` request.
func (c *Client) NativeSource(code, ns string) NativeSourceResponse {
	id := c.allocID()
	req := fmt.Sprintf(`{"op":"native-source","id":%d,"code":"%s","ns":"%s"}`+"\n",
		id, EscapeJSON(code), EscapeJSON(ns))
	line, err := c.sendAndRecv(req)
	if err != nil {
		return NativeSourceResponse{Success: false, Error: err.Error()}
	}
	op := GetJSONString(line, "op")
	respID := GetJSONInt(line, "id")
	if respID != id {
		return NativeSourceResponse{Success: false, Error: "response id mismatch"}
	}
	switch op {
	case "native-source-result":
		return NativeSourceResponse{ID: respID, Success: true, Source: GetJSONString(line, "source")}
	case "error":
		return NativeSourceResponse{ID: respID, Success: false, Error: GetJSONString(line, "error")}
	default:
		return NativeSourceResponse{Success: false, Error: "unknown response op: " + op}
	}
}

// RequireNS sends a `require` request and parses the resulting modules
// array with a brace-matching scan, since a general JSON array decoder
// isn't part of this protocol's minimal-parsing design.
func (c *Client) RequireNS(ns, source string) RequireResponse {
	id := c.allocID()
	req := fmt.Sprintf(`{"op":"require","id":%d,"ns":"%s","source":"%s"}`+"\n",
		id, EscapeJSON(ns), EscapeJSON(source))
	line, err := c.sendAndRecv(req)
	if err != nil {
		return RequireResponse{Success: false, Error: err.Error(), ErrorType: ErrorConnection}
	}

	op := GetJSONString(line, "op")
	respID := GetJSONInt(line, "id")
	if respID != id {
		return RequireResponse{Success: false, Error: "response id mismatch", ErrorType: ErrorProtocol}
	}
	switch op {
	case "required":
		resp := RequireResponse{ID: respID, Success: true}
		if content, ok := FindArrayBounds(line, "modules"); ok {
			for _, obj := range SplitObjects(content) {
				name := GetJSONString(obj, "name")
				if name == "" {
					continue
				}
				resp.Modules = append(resp.Modules, CompiledModule{
					Name:       name,
					EntrySym:   GetJSONString(obj, "symbol"),
					ObjectData: Base64Decode(GetJSONString(obj, "object")),
				})
			}
		}
		return resp
	case "error":
		return RequireResponse{
			ID:        respID,
			Success:   false,
			Error:     GetJSONString(line, "error"),
			ErrorType: ErrorType(GetJSONString(line, "type")),
		}
	default:
		return RequireResponse{Success: false, Error: "unknown response op: " + op, ErrorType: ErrorProtocol}
	}
}
