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

// Package remote implements the Remote Compile Client and its wire
// protocol: newline-delimited JSON over a single TCP stream, every
// request carrying a monotonically increasing id that its response must
// echo. JSON handling is deliberately minimal -- field-by-field key
// search, not a general decoder -- since every response shape on this
// wire is fixed and known ahead of time.
package remote

import "time"

// DefaultPort is the compile server's default listening port.
const DefaultPort = 5559

// ConnectTimeout and ReadTimeout follow different concerns: a short
// timeout to notice a dead server quickly, then a long one because
// transitive dependency compilation can take minutes.
const (
	ConnectTimeout = 5 * time.Second
	ReadTimeout    = 300 * time.Second
)

// ErrorType classifies a failure response's "type" field.
type ErrorType string

const (
	ErrorConnection ErrorType = "connection"
	ErrorCompile    ErrorType = "compile"
	ErrorRuntime    ErrorType = "runtime"
	ErrorProtocol   ErrorType = "protocol"
)

// CompiledModule is one entry of a `required` response's modules array.
type CompiledModule struct {
	Name       string
	EntrySym   string
	ObjectData []byte
}

// CompileResponse is the result of a `compile` exchange.
type CompileResponse struct {
	ID         int64
	Success    bool
	EntrySym   string
	ObjectData []byte
	Error      string
	ErrorType  ErrorType
}

// RequireResponse is the result of a `require` exchange.
type RequireResponse struct {
	ID        int64
	Success   bool
	Modules   []CompiledModule
	Error     string
	ErrorType ErrorType
}

// NativeSourceResponse is the result of a `native-source` exchange.
type NativeSourceResponse struct {
	ID      int64
	Success bool
	Source  string
	Error   string
}
