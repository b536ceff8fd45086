package cchindex

import "github.com/koolkhel/cch-index/internal/debug"

// removeValue clears slot offset of a lowest entry and drops the reference
// count. The value lock hooks, when configured, bracket the clearing.
func (ix *Index[V]) removeValue(e *Entry[V], offset int) error {
	debug.Assert(e.IsLowest(), "removing a value from a non-lowest entry %p", e)
	e.checkMagic()

	s := e.slots[offset]
	if s == nil {
		return ErrNotFound
	}

	if locks := ix.cfg.ValueLocks; locks != nil {
		v := s.(V)
		if err := locks.Lock(v); err != nil {
			return err
		}
		defer func() {
			_ = locks.Unlock(v)
		}()
	}

	debug.Log(nil, "removing value", "entry %p offset %#x, refcnt %d -> %d", e, offset, e.refCnt, e.refCnt-1)

	e.slots[offset] = nil
	e.refCnt--
	e.clearSaved()

	return nil
}

// prune walks upward from e, freeing every entry whose reference count
// reached zero: the parent slot is cleared, the parent refcount dropped and
// the entry returned to its pool. It stops at the first ancestor still in
// use, or at the root, which is never freed.
func (ix *Index[V]) prune(e *Entry[V]) {
	curr := e

	for !curr.isRoot() {
		if curr.refCnt != 0 {
			return
		}

		parent := curr.parentEntry()
		debug.Assert(parent.child(curr.parentOffset) == curr,
			"entry %p not found at offset %d of its parent %p", curr, curr.parentOffset, parent)

		parent.slots[curr.parentOffset] = nil
		parent.refCnt--
		parent.clearSaved()

		debug.Log(nil, "pruned entry", "%p with parent %p, offset %d", curr, parent, curr.parentOffset)

		ix.freeEntry(curr, ix.poolFor(curr))
		curr = parent
	}
}

// Remove deletes the value stored under key, pruning any entries left empty
// on the path. A key that is not present yields ErrNotFound; repeating a
// Remove is a no-op returning ErrNotFound.
func (ix *Index[V]) Remove(key uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, err := ix.walkPath(key)
	if err != nil {
		return err
	}

	off := ix.levels[ix.lowestLevel()].slice(key)
	if err := ix.removeValue(e, off); err != nil {
		return err
	}

	ix.prune(e)
	return nil
}

// RemoveDirect deletes the value at slot offset of a previously returned
// lowest-level entry. Unlike the other direct operations the offset must be
// in range: removal does not leap to a sibling.
func (ix *Index[V]) RemoveDirect(e *Entry[V], offset int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	debug.Assert(e != nil, "RemoveDirect on a nil entry")
	debug.Assert(e.IsLowest(), "RemoveDirect on a non-lowest entry %p", e)
	if offset < 0 || offset >= len(e.slots) {
		return ErrNotFound
	}

	if err := ix.removeValue(e, offset); err != nil {
		return err
	}

	ix.prune(e)
	return nil
}
