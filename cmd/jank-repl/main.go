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

// Command jank-repl is a readline-driven nREPL client: every line read
// from the prompt is shipped as an "eval" op, bencoded, to a remote
// nrepl.Server, rather than evaluated locally.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/chzyer/readline"

	"github.com/jank-lang/jank-core/nrepl"
)

const newPrompt = "\033[32m>\033[0m "
const resultPrompt = "\033[31m=\033[0m "

func main() {
	addr := flag.String("addr", "127.0.0.1:7888", "address of the nrepl server to connect to")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jank-repl:", err)
		os.Exit(1)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	if _, err := conn.Write(nrepl.EncodeMessage(nrepl.Dict{"op": "clone"})); err != nil {
		fmt.Fprintln(os.Stderr, "jank-repl:", err)
		os.Exit(1)
	}
	cloneResp, err := nrepl.DecodeMessage(reader)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jank-repl:", err)
		os.Exit(1)
	}
	session, _ := cloneResp["new-session"].(string)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       ".jank-repl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	id := 0
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		if line == "" {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r, string(debug.Stack()))
				}
			}()
			id++
			reqID := strconv.Itoa(id)
			req := nrepl.Dict{"op": "eval", "id": reqID, "session": session, "code": line}
			if _, err := conn.Write(nrepl.EncodeMessage(req)); err != nil {
				panic(err)
			}
			for {
				resp, err := nrepl.DecodeMessage(reader)
				if err != nil {
					panic(err)
				}
				if out, ok := resp["out"].(string); ok {
					fmt.Print(out)
				}
				if value, ok := resp["value"].(string); ok {
					fmt.Print(resultPrompt)
					fmt.Println(value)
				}
				if errMsg, ok := resp["err"].(string); ok {
					fmt.Println("error:", errMsg)
				}
				if isDone(resp) {
					break
				}
			}
		}()
	}

	conn.Write(nrepl.EncodeMessage(nrepl.Dict{"op": "close", "session": session}))
}

func isDone(resp nrepl.Dict) bool {
	status, ok := resp["status"].(nrepl.List)
	if !ok {
		return false
	}
	for _, s := range status {
		if s == "done" {
			return true
		}
	}
	return false
}
