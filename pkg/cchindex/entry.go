package cchindex

import (
	"container/list"
	"unsafe"

	"github.com/koolkhel/cch-index/internal/debug"
)

// entryMagic marks a live entry in debug builds.
const entryMagic uint32 = 0x117700ff

// entryAlign is the minimum alignment of an entry allocation. The three low
// bits of every entry address are free for flags.
const entryAlign = 8

// parentRef packs an entry's parent pointer together with its state flags.
//
// The low bits of the pointer are reused:
//
//   - bit 0: this entry is a lowest-level entry
//   - bit 1: locked for swap-out
//   - bit 2: saved to the backing store
//
// Entries are heap allocations of a pointer-carrying struct, so their
// addresses are always at least 8-aligned and the three bits never collide
// with the pointer. Every parent access masks them off.
//
// A zero pointer part means the entry is the root. The packed word is a
// navigation reference, never an owning one: every non-root entry is kept
// alive by its parent's slot array, transitively from the index handle, so
// hiding the pointer from the collector here is safe for as long as the
// index itself is referenced.
type parentRef uintptr

const (
	entryLowestBit parentRef = 1 << 0
	entryLockedBit parentRef = 1 << 1
	entrySavedBit  parentRef = 1 << 2

	entryFlagMask = entryLowestBit | entryLockedBit | entrySavedBit
)

func (r parentRef) isLowest() bool { return r&entryLowestBit != 0 }
func (r parentRef) isLocked() bool { return r&entryLockedBit != 0 }
func (r parentRef) isSaved() bool  { return r&entrySavedBit != 0 }

// ptrBits returns the pointer part of the packed word.
func (r parentRef) ptrBits() uintptr { return uintptr(r) &^ uintptr(entryFlagMask) }

// packParent combines a parent pointer with flags into one word.
func packParent[V any](parent *Entry[V], flags parentRef) parentRef {
	addr := uintptr(unsafe.Pointer(parent))
	debug.Assert(addr&uintptr(entryFlagMask) == 0, "entry %p is not %d-aligned", parent, entryAlign)

	return parentRef(addr) | flags
}

// Entry is one vertex of the index tree.
//
// A mid-level or root entry stores child entries in its slots; a lowest-level
// entry stores caller values. Either kind of slot may be empty (nil). The
// reference count tracks exactly the non-empty slots.
//
// Callers receive entries from Find and Insert and may hand them back to the
// direct-access operations; they must not retain an entry across a Remove
// that could prune it.
type Entry[V any] struct {
	// magic exists in debug builds only and guards against stale or
	// foreign entries entering the tree.
	magic debug.Value[uint32]

	// how many slots are occupied
	refCnt int

	// parent pointer with state flags in the low bits; pointer part is
	// zero for the root
	parent parentRef

	// index of this entry in the parent's slot array, for leaf-to-root
	// traversal without scanning
	parentOffset int

	// residency order hook, maintained for the external swap-out
	// subsystem
	lruElem *list.Element

	// child entries (*Entry[V]) or values (V), nil when empty
	slots []any
}

// Size returns the number of slots of this entry.
func (e *Entry[V]) Size() int { return len(e.slots) }

// IsLowest reports whether this entry holds values rather than children.
func (e *Entry[V]) IsLowest() bool { return e.parent.isLowest() }

func (e *Entry[V]) isRoot() bool { return e.parent.ptrBits() == 0 }

func (e *Entry[V]) isMid() bool { return !e.isRoot() && !e.IsLowest() }

// parentEntry returns the parent with the flag bits masked off. The root has
// no parent.
func (e *Entry[V]) parentEntry() *Entry[V] {
	return (*Entry[V])(unsafe.Pointer(e.parent.ptrBits()))
}

// IsLocked reports whether the entry is locked for swap-out.
func (e *Entry[V]) IsLocked() bool { return e.parent.isLocked() }

// IsSaved reports whether the entry has been written to the backing store
// and not modified since.
func (e *Entry[V]) IsSaved() bool { return e.parent.isSaved() }

// SetLocked and ClearLocked flip the swap-out lock bit. They belong to the
// external swap-out subsystem; the index itself never reads the bit.
func (e *Entry[V]) SetLocked()   { e.parent |= entryLockedBit }
func (e *Entry[V]) ClearLocked() { e.parent &^= entryLockedBit }

func (e *Entry[V]) setSaved()   { e.parent |= entrySavedBit }
func (e *Entry[V]) clearSaved() { e.parent &^= entrySavedBit }

// child returns the entry stored in slot i of a non-lowest entry, or nil.
func (e *Entry[V]) child(i int) *Entry[V] {
	debug.Assert(!e.IsLowest(), "slot %d of %p read as a child of a lowest entry", i, e)

	c, _ := e.slots[i].(*Entry[V])
	return c
}

// checkMagic validates the debug magic of an entry. Compiled out of release
// builds.
func (e *Entry[V]) checkMagic() {
	if debug.Enabled {
		debug.Assert(*e.magic.Get() == entryMagic, "entry %p magic mismatch: %#x", e, *e.magic.Get())
	}
}

// stampMagic marks the entry live in debug builds.
func (e *Entry[V]) stampMagic() {
	if debug.Enabled {
		*e.magic.Get() = entryMagic
	}
}
