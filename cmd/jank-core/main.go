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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dc0d/onexit"

	"github.com/jank-lang/jank-core/compileserver"
	"github.com/jank-lang/jank-core/hotreload"
	"github.com/jank-lang/jank-core/jit"
	"github.com/jank-lang/jank-core/nrepl"
	"github.com/jank-lang/jank-core/pcache"
	"github.com/jank-lang/jank-core/registry"
)

const binaryVersion = "0.1.0"

func main() {
	fmt.Print(`jank-core Copyright (C) 2025-2026  jank-core Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	nreplAddr := flag.String("nrepl-addr", "127.0.0.1:7888", "address the nREPL engine listens on")
	compileAddr := flag.String("compile-addr", "", "address the compile server listens on (disabled if empty)")
	cacheDir := flag.String("cache-dir", ".jank-cache", "persistent cache root directory")
	watchDir := flag.String("watch-dir", "", "directory to watch for hot-reload patches (disabled if empty)")
	cxx := flag.String("cxx", "c++", "system C++ compiler used by the JIT processor")
	flag.Parse()

	logger := log.New(os.Stderr, "jank-core: ", log.LstdFlags)

	cache, err := pcache.Open(pcache.Options{
		CacheRoot:     *cacheDir,
		BinaryVersion: binaryVersion,
		CXXCompiler:   *cxx,
	})
	if err != nil {
		logger.Fatalf("opening persistent cache: %v", err)
	}

	reg := registry.New()
	proc := jit.New(jit.Options{CXXCompiler: *cxx})

	hotReg := hotreload.New()
	if *watchDir != "" {
		watcher, err := hotreload.Watch(hotReg, *watchDir, logger)
		if err != nil {
			logger.Fatalf("starting hot-reload watcher: %v", err)
		}
		onexit.Register(func() { watcher.Close() })
	}

	if *compileAddr != "" {
		srv := compileserver.New(compileserver.Options{
			Processor: proc,
			Registry:  reg,
			Cache:     cache,
			Logger:    logger,
		})
		onexit.Register(func() { srv.Stop() })
		go func() {
			if err := srv.ListenAndServe(*compileAddr); err != nil {
				logger.Printf("compile server stopped: %v", err)
			}
		}()
		logger.Printf("compile server listening on %s", *compileAddr)
	}

	engine := nrepl.NewEngine(proc, reg, cache)
	nreplServer := nrepl.NewServer(engine)
	nreplServer.Logger = logger
	onexit.Register(func() { nreplServer.Stop() })

	logger.Printf("nrepl engine listening on %s", *nreplAddr)
	if err := nreplServer.ListenAndServe(*nreplAddr, "."); err != nil {
		logger.Fatalf("nrepl server stopped: %v", err)
	}
}
