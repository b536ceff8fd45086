package cchindex

import "github.com/koolkhel/cch-index/internal/debug"

// newEntry allocates an entry for the given level, attaches it to slot offset
// of parent and settles the bookkeeping: packed parent link, back-index,
// parent refcount, LRU, byte accounting.
func (ix *Index[V]) newEntry(parent *Entry[V], level, offset int) *Entry[V] {
	lowest := level == ix.lowestLevel()

	pool := ix.midPool
	flags := parentRef(0)
	if lowest {
		pool = ix.lowPool
		flags = entryLowestBit
	}

	e := pool.get()

	if debug.Enabled {
		// check real bounds of the new object
		for i := range e.slots {
			debug.Assert(e.slots[i] == nil, "pool %q handed out a dirty entry %p", pool.name, e)
		}
	}

	parent.slots[offset] = e
	e.parent = packParent(parent, flags)
	e.parentOffset = offset
	parent.refCnt++
	parent.clearSaved()

	e.stampMagic()
	ix.lru.touch(e)

	total := ix.totalBytes.Add(int64(pool.footprint))
	if ix.cfg.Accounting != nil {
		ix.cfg.Accounting.OnEntryAlloc(pool.footprint, int(total))
	}

	return e
}

// createPath descends along key like walkPath, but allocates entries where
// slots are empty: mid entries for every non-terminal step, a lowest entry
// for the last one. It returns the lowest-level entry of the path.
//
// If a later step of a build could fail, entries created by earlier steps
// stay attached: they are empty and harmless, reusable by future operations.
func (ix *Index[V]) createPath(key uint64) *Entry[V] {
	curr := &ix.root

	for i := 0; i < len(ix.levels)-1; i++ {
		off := ix.levels[i].slice(key)

		next := curr.child(off)
		if next == nil {
			next = ix.newEntry(curr, i+1, off)
			debug.Log(nil, "created path entry", "%p under %p at %#x", next, curr, off)
		}
		curr = next
	}

	debug.Assert(curr.IsLowest(), "path of %#x ended on a non-lowest entry %p", key, curr)

	return curr
}

// insertAt places value into slot offset of a lowest entry, updating the
// reference count. An occupied slot is overwritten only when replace is set;
// the refcount does not change on replacement.
func (ix *Index[V]) insertAt(e *Entry[V], offset int, value V, replace bool) error {
	debug.Assert(e.IsLowest(), "inserting into a non-lowest entry %p", e)
	debug.Assert(offset >= 0 && offset < len(e.slots), "insert offset %d out of range 0..%d", offset, len(e.slots))
	e.checkMagic()

	switch {
	case e.slots[offset] == nil:
		e.refCnt++
		e.slots[offset] = value
	case replace:
		// no new value thus no refcount change
		e.slots[offset] = value
	default:
		return ErrExists
	}

	e.clearSaved()
	return nil
}

// Insert stores value under key.
//
// Missing entries along the path are created. An occupied slot fails with
// ErrExists unless replace is set. On success Insert returns the lowest-level
// entry and the value's offset within it, for later direct access.
func (ix *Index[V]) Insert(key uint64, value V, replace bool) (*Entry[V], int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.insertKey(key, value, replace)
}

func (ix *Index[V]) insertKey(key uint64, value V, replace bool) (*Entry[V], int, error) {
	e := ix.createPath(key)

	off := ix.levels[ix.lowestLevel()].slice(key)
	if err := ix.insertAt(e, off, value, replace); err != nil {
		return nil, 0, err
	}

	return e, off, nil
}
