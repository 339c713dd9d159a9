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

package pcache

import (
	"time"

	"github.com/docker/go-units"
	"github.com/google/btree"
)

// cacheRecord is the btree.Item tracking one fingerprint's total on-disk
// size and last-touched time, ordered by lastUsed so the oldest entry is
// always the Min() of the tree.
type cacheRecord struct {
	hash     uint64
	size     int64
	lastUsed time.Time
	seq      int64 // tiebreaker for records sharing a timestamp
}

func (r *cacheRecord) Less(than btree.Item) bool {
	o := than.(*cacheRecord)
	if r.lastUsed.Equal(o.lastUsed) {
		return r.seq < o.seq
	}
	return r.lastUsed.Before(o.lastUsed)
}

// evictor enforces a size budget over the cache directory, evicting the
// least-recently-touched fingerprints first once the budget is exceeded.
// Every operation is funneled through a single goroutine via opChan, the
// same serialization approach storage/cache.go's CacheManager uses to
// avoid a lock around the ordered index.
type evictor struct {
	budget int64
	tree   *btree.BTree
	byHash map[uint64]*cacheRecord
	total  int64
	seq    int64

	reclaim func(h uint64)
	opChan  chan evictOp
}

type evictOp struct {
	touch *cacheRecord
	reset bool
	done  chan struct{}
}

func newEvictor(budgetSpec string, reclaim func(h uint64)) (*evictor, error) {
	budget, err := units.RAMInBytes(budgetSpec)
	if err != nil {
		return nil, err
	}
	ev := &evictor{
		budget:  budget,
		tree:    btree.New(32),
		byHash:  map[uint64]*cacheRecord{},
		reclaim: reclaim,
		opChan:  make(chan evictOp, 1024),
	}
	go ev.run()
	return ev, nil
}

func (ev *evictor) run() {
	for op := range ev.opChan {
		switch {
		case op.reset:
			ev.doReset()
		case op.touch != nil:
			ev.doTouch(op.touch)
		}
		if op.done != nil {
			close(op.done)
		}
	}
}

// touch records that hash now occupies size bytes as of now, moving it to
// the most-recently-used end of the eviction order, then reclaims entries
// from the least-recently-used end until back under budget.
func (ev *evictor) touch(h uint64, size int64) {
	done := make(chan struct{})
	ev.opChan <- evictOp{touch: &cacheRecord{hash: h, size: size, lastUsed: now()}, done: done}
	<-done
}

func (ev *evictor) reset() {
	done := make(chan struct{})
	ev.opChan <- evictOp{reset: true, done: done}
	<-done
}

func (ev *evictor) doTouch(rec *cacheRecord) {
	if old, ok := ev.byHash[rec.hash]; ok {
		ev.tree.Delete(old)
		ev.total -= old.size
	}
	ev.seq++
	rec.seq = ev.seq
	ev.byHash[rec.hash] = rec
	ev.tree.ReplaceOrInsert(rec)
	ev.total += rec.size

	for ev.total > ev.budget && ev.tree.Len() > 0 {
		oldest := ev.tree.Min().(*cacheRecord)
		ev.tree.Delete(oldest)
		delete(ev.byHash, oldest.hash)
		ev.total -= oldest.size
		ev.reclaim(oldest.hash)
	}
}

func (ev *evictor) doReset() {
	ev.tree = btree.New(32)
	ev.byHash = map[uint64]*cacheRecord{}
	ev.total = 0
	ev.seq = 0
}

// now is a seam so tests can't flake on timestamp resolution; production
// always uses wall-clock time.
var now = time.Now
