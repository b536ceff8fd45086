package cchindex

import (
	"container/list"
	"sync"
)

// lruList tracks entry residency order for the external swap-out subsystem.
//
// It has its own lock, separate from the index mutex: the swap-out side reads
// it without entering the index. The index only moves entries to the back on
// access and drops them on free; it never reads the list for its own
// correctness.
type lruList[V any] struct {
	mu sync.Mutex
	l  list.List // of *Entry[V]
}

// touch moves the entry to the most-recently-used end, enlisting it first if
// needed.
func (lru *lruList[V]) touch(e *Entry[V]) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if e.lruElem == nil {
		e.lruElem = lru.l.PushBack(e)
		return
	}
	lru.l.MoveToBack(e.lruElem)
}

// remove drops the entry from the list. Required on entry free.
func (lru *lruList[V]) remove(e *Entry[V]) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if e.lruElem != nil {
		lru.l.Remove(e.lruElem)
		e.lruElem = nil
	}
}

// visit calls fn for every listed entry from least to most recently used,
// stopping early when fn returns false.
func (lru *lruList[V]) visit(fn func(*Entry[V]) bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	for el := lru.l.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*Entry[V])) {
			return
		}
	}
}
