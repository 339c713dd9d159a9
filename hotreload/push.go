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

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// PatchLoadedNotification is pushed to connected editors/browsers
// whenever LoadPatch succeeds, so a live-coding UI can refresh without
// polling get_stats().
type PatchLoadedNotification struct {
	Path    string   `json:"path"`
	Symbols []string `json:"symbols"`
}

// PushHub fans out PatchLoadedNotifications to every connected websocket
// client, using the same upgrader configuration scm/network.go's
// "websocket" builtin registers (permissive CheckOrigin, since this is a
// local dev-loop channel, not a public endpoint).
type PushHub struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]struct{}
}

func NewPushHub() *PushHub {
	return &PushHub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  map[*websocket.Conn]struct{}{},
	}
}

// ServeHTTP upgrades an incoming request and registers the connection as
// a push target until it closes.
func (h *PushHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *PushHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends a patch-loaded notification to every connected client,
// dropping any that error (they'll be pruned by their own read loop).
func (h *PushHub) Broadcast(n PatchLoadedNotification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
