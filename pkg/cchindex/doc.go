// Package cchindex implements a multi-level radix index that maps fixed-width
// 64-bit keys to opaque values.
//
// The key is partitioned bitwise across a configurable number of levels. Each
// level stores a dense slot array addressing either a child entry or, at the
// lowest level, a caller-supplied value. The shape of the tree is fully
// determined by the configuration: there is no rebalancing, and no ordering
// guarantees beyond the bit layout itself.
//
// # Operations
//
// The index supports point lookup and insertion by key, removal with automatic
// upward pruning of empty subtrees, and direct access: continuing to read or
// write at "offset+N" from a previously returned lowest-level entry without
// re-walking the key. Direct access is the intended fast path for callers that
// address runs of consecutive keys, such as cluster maps of a content
// addressed store.
//
// # Entries
//
// Every vertex of the tree is an [Entry]. Entries of the same level are
// identically sized and come from per-level pools that recycle freed entries.
// An entry keeps a reference count of its non-empty slots, a packed parent
// reference carrying the entry state flags in the low pointer bits, and its
// own offset within the parent's slot array, which makes the upward climb of
// the direct-access engine O(levels).
//
// # Concurrency
//
// A single mutex per index serializes every operation. External hooks are
// invoked with that mutex held and must not re-enter the index.
//
// # Persistence
//
// The index itself is purely in memory. Construction accepts narrow hook
// interfaces for cluster I/O, transaction bracketing, byte accounting and
// per-value locking; Save and Load pass full images through the storage hooks
// using the cluster framing defined in this package. Swap-out of cold
// subtrees is the business of an external subsystem; the index only maintains
// the LRU ordering such a subsystem consumes.
package cchindex
