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

// Message wraps one decoded client request dict with the accessors the
// op handlers need.
type Message struct {
	Data Dict
}

func (m Message) Op() string      { return m.getString("op") }
func (m Message) ID() string      { return m.getString("id") }
func (m Message) Session() string { return m.getString("session") }

// Get returns a string field, or "" if absent or not a string.
func (m Message) Get(key string) string { return m.getString(key) }

// GetDefault returns field key, or def if absent/not a string.
func (m Message) GetDefault(key, def string) string {
	if s, ok := m.Data[key].(string); ok {
		return s
	}
	return def
}

func (m Message) getString(key string) string {
	if s, ok := m.Data[key].(string); ok {
		return s
	}
	return ""
}

// StringList returns key's value as a list of strings; nil, false if key
// is absent or not a bencode list. Non-string list items are skipped.
func (m Message) StringList(key string) ([]string, bool) {
	v, ok := m.Data[key]
	if !ok {
		return nil, false
	}
	l, ok := v.(List)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// doneResponse builds the standard {id, session, status:[...]} tail
// message every op table entry sends last.
func doneResponse(sessionID, id string, status []string) Dict {
	d := Dict{
		"session": sessionID,
		"status":  status,
	}
	if id != "" {
		d["id"] = id
	}
	return d
}

func unsupportedResponse(msg Message, reason string) []Dict {
	d := Dict{
		"status": []string{"done", "error", "unknown-op"},
		"reason": reason,
	}
	if msg.ID() != "" {
		d["id"] = msg.ID()
	}
	if msg.Session() != "" {
		d["session"] = msg.Session()
	}
	return []Dict{d}
}
