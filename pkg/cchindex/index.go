package cchindex

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/koolkhel/cch-index/internal/debug"
)

// Index is a multi-level radix index from 64-bit keys to values of type V.
//
// All methods are safe for concurrent use; a single mutex serializes every
// operation.
type Index[V any] struct {
	mu sync.Mutex

	cfg Config[V]

	// levels[0] is the root descriptor, levels[len-1] the lowest
	levels []levelDesc

	lowPool *entryPool[V]
	midPool *entryPool[V]

	lru lruList[V]

	// bytes currently owned by entries of this index
	totalBytes atomic.Int64

	// destroyed catches a second Destroy in debug builds
	destroyed bool

	// root lives inline in the handle: it never enters a pool and is
	// never freed independently.
	root Entry[V]
}

// New builds an index from the given configuration.
//
// The key layout must be consistent: Bits total, RootBits at the root,
// LowBits at the lowest level, and the remainder split evenly across Levels
// mid levels.
func New[V any](cfg Config[V]) (*Index[V], error) {
	levels, err := compileLevels(cfg.Bits, cfg.RootBits, cfg.LowBits, cfg.Levels)
	if err != nil {
		return nil, err
	}

	ix := &Index[V]{cfg: cfg, levels: levels}

	seq := poolSeq.Add(1)
	ix.lowPool = newEntryPool[V](poolName(seq, "low"), levels[ix.lowestLevel()].size)
	ix.midPool = newEntryPool[V](poolName(seq, "mid"), levels[ix.midLevel()].size)

	if cfg.ClusterSize != 0 || cfg.Storage != nil {
		if !validClusterSize(cfg.ClusterSize, ix.lowPool.footprint) {
			return nil, ErrInvalidConfig
		}
	}

	ix.root.slots = make([]any, levels[0].size)
	ix.root.stampMagic()

	return ix, nil
}

// validClusterSize reports whether size is a power-of-two multiple of the
// entry footprint.
func validClusterSize(size, footprint int) bool {
	if size <= 0 || size%footprint != 0 {
		return false
	}
	n := size / footprint
	return bits.OnesCount(uint(n)) == 1
}

func (ix *Index[V]) midLevel() int    { return 1 }
func (ix *Index[V]) lowestLevel() int { return len(ix.levels) - 1 }

// VisitLRU calls fn for every resident entry from least to most recently
// used, stopping when fn returns false. It is intended for the external
// swap-out subsystem and for inspection; fn must not call back into the
// index.
func (ix *Index[V]) VisitLRU(fn func(*Entry[V]) bool) {
	ix.lru.visit(fn)
}

// TotalBytes returns the bytes currently owned by the index's entries.
func (ix *Index[V]) TotalBytes() int64 { return ix.totalBytes.Load() }

// Destroy frees every entry of the index. The index must not be used
// afterwards; values themselves are the caller's responsibility.
func (ix *Index[V]) Destroy() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	debug.Assert(!ix.destroyed, "index destroyed twice")

	for i := range ix.root.slots {
		child := ix.root.child(i)
		if child == nil {
			continue
		}
		ix.destroyEntry(child, 1)
		ix.root.slots[i] = nil
		ix.root.refCnt--
	}
	debug.Assert(ix.root.refCnt == 0, "root refcount %d after destroy", ix.root.refCnt)

	ix.lowPool.drain()
	ix.midPool.drain()
	ix.destroyed = true
}

// destroyEntry frees the subtree rooted at e, post-order. level is carried
// for diagnostics only; children are at level+1.
func (ix *Index[V]) destroyEntry(e *Entry[V], level int) {
	debug.Assert(e != nil, "destroying a nil entry")
	e.checkMagic()

	if e.IsLowest() {
		ix.destroyLowestEntry(e)
		return
	}

	debug.Assert(e.isMid(), "entry %p at level %d is neither mid nor lowest", e, level)
	debug.Log(nil, "destroy mid entry", "%p, level %d, references %d", e, level, e.refCnt)

	for i := range e.slots {
		child := e.child(i)
		if child == nil {
			continue
		}
		ix.destroyEntry(child, level+1)
		e.slots[i] = nil
		e.refCnt--
	}
	debug.Assert(e.refCnt == 0, "mid entry %p refcount %d after destroying children", e, e.refCnt)

	ix.freeEntry(e, ix.midPool)
}

// destroyLowestEntry drops the value references of a lowest entry and
// returns it to its pool.
func (ix *Index[V]) destroyLowestEntry(e *Entry[V]) {
	for i := range e.slots {
		if e.slots[i] != nil {
			e.slots[i] = nil
			e.refCnt--
		}
	}
	debug.Assert(e.refCnt == 0, "lowest entry %p refcount %d after clearing values", e, e.refCnt)

	ix.freeEntry(e, ix.lowPool)
}

// freeEntry unlists an entry, settles the byte accounting and hands the
// entry back to its pool.
func (ix *Index[V]) freeEntry(e *Entry[V], pool *entryPool[V]) {
	ix.lru.remove(e)

	total := ix.totalBytes.Add(int64(-pool.footprint))
	if ix.cfg.Accounting != nil {
		ix.cfg.Accounting.OnEntryFree(pool.footprint, int(total))
	}

	pool.put(e)
}

// poolFor returns the pool an entry belongs to.
func (ix *Index[V]) poolFor(e *Entry[V]) *entryPool[V] {
	if e.IsLowest() {
		return ix.lowPool
	}
	return ix.midPool
}
