package cchindex

import "github.com/koolkhel/cch-index/internal/debug"

// walkPath descends the tree along key without mutating anything, returning
// the lowest-level entry on the path or ErrNotFound when a slot on the way is
// empty.
func (ix *Index[V]) walkPath(key uint64) (*Entry[V], error) {
	curr := &ix.root

	// all levels except the lowest one
	for i := 0; i < len(ix.levels)-1; i++ {
		off := ix.levels[i].slice(key)

		next := curr.child(off)
		if next == nil {
			return nil, ErrNotFound
		}
		curr = next
	}

	debug.Assert(curr.IsLowest(), "walk of %#x ended on a non-lowest entry %p", key, curr)
	curr.checkMagic()

	return curr, nil
}

// Find looks up key.
//
// On success it returns the value, the lowest-level entry holding it and the
// value's offset within that entry; the pair may be used later with the
// direct-access operations. An empty path or an empty slot yields
// ErrNotFound.
func (ix *Index[V]) Find(key uint64) (V, *Entry[V], int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var zero V

	e, err := ix.walkPath(key)
	if err != nil {
		return zero, nil, 0, err
	}

	off := ix.levels[ix.lowestLevel()].slice(key)
	s := e.slots[off]
	if s == nil {
		return zero, nil, 0, ErrNotFound
	}

	ix.lru.touch(e)

	return s.(V), e, off, nil
}
