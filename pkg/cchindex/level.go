package cchindex

import "github.com/koolkhel/cch-index/internal/debug"

// keyBitsMax is the widest key the index can address.
const keyBitsMax = 64

// levelDesc describes one level of the index.
//
// Level 0 is the root, the last level is the lowest. Each level consumes a
// contiguous slice of the key: bits wide, starting at bit offset. The slot
// array of an entry at that level has size records.
type levelDesc struct {
	// addressed by this many bits
	bits int

	// this many slots in an entry of this level
	size int

	// bit position of this level's slice within the key
	offset int
}

// slice extracts the part of key that addresses the slot array at this level.
func (d levelDesc) slice(key uint64) int {
	return int((key >> d.offset) & uint64(d.size-1))
}

// compileLevels distributes bits amongst the levels of the index.
//
// The root and lowest levels take their configured widths verbatim; the
// remaining bits are split evenly across the mids mid levels. A layout whose
// mid bits do not divide evenly is rejected: uneven mid levels would make the
// per-level pool sizes ambiguous.
//
// The returned table is ordered root first, lowest last, and stores the true
// bit start of every slice, so a single extractor serves all levels.
func compileLevels(bits, rootBits, lowBits, mids int) ([]levelDesc, error) {
	if mids < 1 || bits < 1 || bits > keyBitsMax || rootBits < 1 || lowBits < 1 {
		return nil, ErrInvalidConfig
	}

	midBits := bits - rootBits - lowBits
	if midBits < mids || midBits%mids != 0 {
		return nil, ErrInvalidConfig
	}
	each := midBits / mids

	levels := make([]levelDesc, mids+2)

	lowest := len(levels) - 1
	levels[lowest] = levelDesc{bits: lowBits, size: 1 << lowBits, offset: 0}

	// walking backwards, offsets grow from the lowest level up
	offset := lowBits
	for i := lowest - 1; i > 0; i-- {
		levels[i] = levelDesc{bits: each, size: 1 << each, offset: offset}
		offset += each
	}

	levels[0] = levelDesc{bits: rootBits, size: 1 << rootBits, offset: offset}

	debug.Assert(offset+rootBits == bits, "level layout does not cover the key: %d != %d", offset+rootBits, bits)

	return levels, nil
}
