package cchindex

import "github.com/koolkhel/cch-index/internal/debug"

// climbToCapableAncestor finds the closest ancestor of a lowest entry whose
// slot array has room to advance by one: the subtree holding the next
// sibling in key order roots at slot childOffset of that ancestor, one past
// the slot the climb came up through.
//
// The climb uses the parentOffset back-index, so locating an entry within
// its parent is O(1) and the whole climb O(levels). The returned level is
// the ancestor's level, root being 0.
//
// When the climb exits through the root without finding room, the entry is
// the last possible one in the whole key space and ErrNotFound is returned.
func (ix *Index[V]) climbToCapableAncestor(e *Entry[V]) (ancestor *Entry[V], childOffset, level int, err error) {
	debug.Assert(e.IsLowest(), "climb started from a non-lowest entry %p", e)
	e.checkMagic()

	curr := e
	level = ix.lowestLevel()

	for !curr.isRoot() {
		parent := curr.parentEntry()
		level--

		debug.Assert(parent.child(curr.parentOffset) == curr,
			"entry %p not found at offset %d of its parent %p", curr, curr.parentOffset, parent)

		if curr.parentOffset+1 < len(parent.slots) {
			// we can use that
			return parent, curr.parentOffset + 1, level, nil
		}

		curr = parent
	}

	return nil, 0, 0, ErrNotFound
}

// findNextSibling returns the lowest-level entry whose key range immediately
// follows e's, without creating anything. ErrNotFound means the sibling
// subtree is not materialized, or e is the last entry of the key space.
func (ix *Index[V]) findNextSibling(e *Entry[V]) (*Entry[V], error) {
	ancestor, off, level, err := ix.climbToCapableAncestor(e)
	if err != nil {
		return nil, err
	}

	debug.Log(nil, "sibling descent", "from %p at offset %d, level %d", ancestor, off, level)

	// descend along leftmost children to the lowest level
	curr := ancestor
	for ; level < ix.lowestLevel(); level++ {
		next := curr.child(off)
		if next == nil {
			return nil, ErrNotFound
		}
		curr = next
		off = 0
	}

	debug.Assert(curr != e, "sibling search returned the starting entry %p", e)
	debug.Assert(curr.IsLowest(), "sibling search ended on a non-lowest entry %p", curr)

	return curr, nil
}

// createNextSibling is findNextSibling with materialization: entries missing
// on the descent are allocated, mid for every non-terminal level and lowest
// for the last. The caller guarantees a capable ancestor exists; running off
// the root here is a contract violation.
func (ix *Index[V]) createNextSibling(e *Entry[V]) (*Entry[V], error) {
	ancestor, off, level, err := ix.climbToCapableAncestor(e)
	if err != nil {
		debug.Assert(false, "create-sibling ran off the root from entry %p", e)
		return nil, err
	}

	debug.Log(nil, "sibling descent", "from %p at offset %d, level %d, creating", ancestor, off, level)

	curr := ancestor
	for ; level < ix.lowestLevel(); level++ {
		next := curr.child(off)
		if next == nil {
			next = ix.newEntry(curr, level+1, off)
		}
		curr = next
		off = 0
	}

	debug.Assert(curr != e, "sibling creation returned the starting entry %p", e)
	debug.Assert(curr.IsLowest(), "sibling creation ended on a non-lowest entry %p", curr)

	return curr, nil
}

// resolveDirect maps a (entry, offset) pair onto the entry that actually
// holds the requested slot, hopping to the next sibling when the offset
// overflows. create selects between the read-only and the materializing
// sibling search.
//
// The offset may overleap into the next entry only: direct access chains
// one step at a time, so anything at or past twice the entry size is a
// caller bug. Negative offsets address the previous sibling, which is
// declared but not implemented.
func (ix *Index[V]) resolveDirect(e *Entry[V], offset int, create bool) (*Entry[V], int, error) {
	debug.Assert(e != nil, "direct access on a nil entry")
	debug.Assert(e.IsLowest(), "direct access on a non-lowest entry %p", e)
	e.checkMagic()

	size := len(e.slots)

	switch {
	case offset >= size:
		debug.Assert(offset < 2*size, "direct offset %d leaps past the next sibling of size %d", offset, size)
		if offset >= 2*size {
			return nil, 0, ErrNotFound
		}

		var (
			sibling *Entry[V]
			err     error
		)
		if create {
			sibling, err = ix.createNextSibling(e)
		} else {
			sibling, err = ix.findNextSibling(e)
		}
		if err != nil {
			return nil, 0, err
		}

		return sibling, offset - size, nil

	case offset < 0:
		// backwards traversal is reserved
		debug.Assert(false, "previous-sibling direct access requested on entry %p", e)
		return nil, 0, debug.Unsupported()
	}

	return e, offset, nil
}

// FindDirect reads the slot at offset relative to a previously returned
// lowest-level entry. An offset within [size, 2*size) continues in the next
// sibling in key order.
//
// On success it returns the value together with the entry and offset that
// actually hold it, which the caller feeds into the next direct call to walk
// a run of consecutive keys without re-walking them. An empty slot returns
// ErrNotFound alongside the resolved entry and offset, so a chain can step
// over it.
func (ix *Index[V]) FindDirect(e *Entry[V], offset int) (V, *Entry[V], int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var zero V

	right, off, err := ix.resolveDirect(e, offset, false)
	if err != nil {
		return zero, nil, 0, err
	}

	s := right.slots[off]
	if s == nil {
		return zero, right, off, ErrNotFound
	}

	ix.lru.touch(right)

	return s.(V), right, off, nil
}

// InsertDirect stores value at offset relative to a previously returned
// lowest-level entry, materializing the next sibling path when the offset
// overflows. Semantics of the slot update match Insert.
func (ix *Index[V]) InsertDirect(e *Entry[V], offset int, value V, replace bool) (*Entry[V], int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	right, off, err := ix.resolveDirect(e, offset, true)
	if err != nil {
		return nil, 0, err
	}

	if err := ix.insertAt(right, off, value, replace); err != nil {
		return nil, 0, err
	}

	ix.lru.touch(right)

	return right, off, nil
}
