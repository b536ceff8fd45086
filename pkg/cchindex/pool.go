package cchindex

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/koolkhel/cch-index/internal/debug"
)

// poolSeq makes pool names unique when several indexes coexist in one
// process.
var poolSeq atomic.Uint64

// slotBytes is the accounted footprint of one slot.
var slotBytes = int(unsafe.Sizeof(any(nil)))

// entryPool is a fixed-size allocator for the entries of one level.
//
// Every entry of a level is identically sized, so freed entries are kept on a
// free list and handed back out instead of going through the general
// allocator. Recycled entries are cleared before reuse; a fresh entry comes
// back zeroed by construction. The pool keeps live and footprint counters for
// the byte accounting hooks and the teardown checks.
type entryPool[V any] struct {
	name string

	// slots per entry at this level
	slots int

	// bytes accounted per entry: header plus slot array
	footprint int

	free []*Entry[V]
	live int
}

func newEntryPool[V any](name string, slots int) *entryPool[V] {
	return &entryPool[V]{
		name:      name,
		slots:     slots,
		footprint: int(unsafe.Sizeof(Entry[V]{})) + slots*slotBytes,
	}
}

// LowestEntryFootprint returns the accounted byte footprint of one
// lowest-level entry with the given low bit width. A cluster size must be a
// power-of-two multiple of this.
func LowestEntryFootprint[V any](lowBits int) int {
	return int(unsafe.Sizeof(Entry[V]{})) + (1<<lowBits)*slotBytes
}

// poolName derives a per-index unique pool name.
func poolName(seq uint64, level string) string {
	return fmt.Sprintf("cch_index_%d_%s", seq, level)
}

// get returns a cleared entry with this pool's slot count.
func (p *entryPool[V]) get() *Entry[V] {
	p.live++

	if n := len(p.free); n > 0 {
		e := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]

		p.reset(e)
		return e
	}

	return &Entry[V]{slots: make([]any, p.slots)}
}

// put returns an entry to the free list.
func (p *entryPool[V]) put(e *Entry[V]) {
	debug.Assert(len(e.slots) == p.slots, "entry %p sized %d returned to pool %q sized %d",
		e, len(e.slots), p.name, p.slots)
	debug.Assert(p.live > 0, "pool %q freed more entries than it allocated", p.name)

	p.live--
	p.free = append(p.free, e)
}

// reset clears a recycled entry back to its just-allocated state.
func (p *entryPool[V]) reset(e *Entry[V]) {
	e.refCnt = 0
	e.parent = 0
	e.parentOffset = 0
	e.lruElem = nil
	for i := range e.slots {
		e.slots[i] = nil
	}
	if debug.Enabled {
		*e.magic.Get() = 0
	}
}

// Live returns the number of entries currently handed out by this pool.
func (p *entryPool[V]) Live() int { return p.live }

// drain drops the free list at index teardown.
func (p *entryPool[V]) drain() {
	p.free = nil
}
