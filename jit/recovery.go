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

package jit

import (
	"fmt"

	"github.com/jank-lang/jank-core/glscope"
)

// FatalError is raised in place of the longjmp-equivalent non-local
// transfer this describes for the interpreter's fatal-handler hook.
// Go can't unwind past arbitrary C++ frames the way setjmp/longjmp would,
// so the recovery point is instead the boundary of an isolated task: each
// eval runs as its own recoverable unit, and "firing the fatal handler"
// means panicking with FatalError from inside that unit so the recover()
// at ScopedRecovery's call site resumes exactly where this's suggested
// rewrite puts it -- the task boundary, not a raw jmp_buf.
type FatalError struct {
	Signal int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("jit: fatal interpreter error (signal %d)", e.Signal)
}

// RaiseFatal is what the interpreter's replacement fatal-handler hook
// calls. If a recovery point is registered on this goroutine it panics
// with FatalError (caught by ScopedRecovery); otherwise,
// there is nothing to recover to and the process must terminate.
func RaiseFatal() {
	rp := glscope.CurrentRecovery()
	if rp == nil {
		panic(&FatalError{Signal: FatalErrorSignal}) // no recovery point: let it propagate and crash
	}
	select {
	case rp.Signal <- FatalErrorSignal:
	default:
	}
	panic(&FatalError{Signal: FatalErrorSignal})
}

// ScopedRecovery is the RAII-guard analogue of scoped_jit_recovery: it
// installs a recovery point for fn's duration and recovers a FatalError
// panic raised from within fn, returning it as a plain error instead of
// letting it crash the calling goroutine. Any other panic is re-raised
// unchanged -- only the distinguished fatal-error signal is a recoverable
// condition.
func ScopedRecovery(fn func()) (err error) {
	rp := &glscope.RecoveryPoint{Signal: make(chan int, 1)}
	glscope.WithRecovery(rp, func() {
		defer func() {
			if r := recover(); r != nil {
				if fe, ok := r.(*FatalError); ok {
					err = fe
					return
				}
				panic(r)
			}
		}()
		fn()
	})
	return err
}
