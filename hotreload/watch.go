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
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// maxPatchSeqProbe bounds the jank_patch_symbols_N export names the
// watcher probes; the sequence number isn't known ahead of a directory
// scan, so the watcher tries an increasing range and accepts the first
// one present -- cheaper than parsing the module to discover its own
// generation count.
const maxPatchSeqProbe = 64

// Watcher auto-invokes LoadPatch whenever a .so or .dylib file is created
// or written in a directory, grounded on fsnotify's standard "watch a
// directory, react to Create events" idiom.
type Watcher struct {
	registry *Registry
	logger   *log.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts watching dir for new patch modules. Close stops it.
func Watch(r *Registry, dir string, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{registry: r, logger: logger, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isPatchModule(event.Name) {
				continue
			}
			w.tryLoad(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Printf("hotreload: watch error: %v", err)
			}
		case <-w.done:
			return
		}
	}
}

func isPatchModule(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".so" || ext == ".dylib"
}

func (w *Watcher) tryLoad(path string) {
	for seq := 0; seq < maxPatchSeqProbe; seq++ {
		symbol := CanonicalPatchName(seq)
		if err := w.registry.LoadPatch(path, symbol); err == nil {
			if w.logger != nil {
				w.logger.Printf("hotreload: loaded patch %s via %s", path, symbol)
			}
			return
		}
	}
	if w.logger != nil {
		w.logger.Printf("hotreload: %s did not expose a recognizable patch export", path)
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
