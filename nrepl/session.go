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
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Session is one nREPL client's evaluation context: current namespace,
// in-flight eval bookkeeping for interrupt, the last exception for
// caught/analyze-last-stacktrace, and buffered stdin.
type Session struct {
	ID                   string
	CurrentNS            string
	ForwardSystemOutput  bool
	RunningEval          bool
	ActiveRequestID      string
	StdinBuffer          string
	LastExceptionMessage string
	LastExceptionType    string
	HasLastException     bool
}

// sessionTable is the RWMutex-guarded session map: reads (most ops just
// look up the acting session) far outnumber writes (session create/close).
type sessionTable struct {
	mu sync.RWMutex
	m  map[string]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[string]*Session)}
}

func (t *sessionTable) ensure(id string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	s, ok := t.m[id]
	if !ok {
		s = &Session{ID: id, CurrentNS: "user"}
		t.m[id] = s
	}
	return s
}

func (t *sessionTable) clone(parentID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := t.m[parentID]
	if !ok {
		parent = &Session{ID: parentID, CurrentNS: "user"}
	}
	child := &Session{
		ID:                  uuid.NewString(),
		CurrentNS:           parent.CurrentNS,
		ForwardSystemOutput: parent.ForwardSystemOutput,
	}
	t.m[child.ID] = child
	return child
}

func (t *sessionTable) close(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; !ok {
		return false
	}
	delete(t.m, id)
	return true
}

func (t *sessionTable) ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.m))
	for id := range t.m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
