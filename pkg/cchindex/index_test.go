package cchindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koolkhel/cch-index/internal/debug"
)

// testConfig is the canonical layout used across the suites: 8 root bits,
// 8 low bits, 48 mid bits over 4 levels of 12 bits each.
func testConfig() Config[uint64] {
	return Config[uint64]{
		Levels:   4,
		Bits:     64,
		RootBits: 8,
		LowBits:  8,
	}
}

func newTestIndex(t *testing.T) *Index[uint64] {
	t.Helper()
	defer debug.WithTesting(t)()

	ix, err := New[uint64](testConfig())
	require.NoError(t, err)
	return ix
}

// checkInvariants verifies the structural invariants over the whole tree:
// refcounts equal the non-empty slot counts, back-links point at the right
// parent slot, and the lowest tag appears exactly at the lowest level.
func checkInvariants(t *testing.T, ix *Index[uint64]) {
	t.Helper()

	lowest := ix.lowestLevel()

	var walk func(e *Entry[uint64], level int)
	walk = func(e *Entry[uint64], level int) {
		require.Equal(t, level == lowest, e.IsLowest(), "entry %p at level %d has the wrong kind", e, level)

		occupied := 0
		for i := range e.slots {
			if e.slots[i] == nil {
				continue
			}
			occupied++

			if e.IsLowest() {
				continue
			}

			child := e.child(i)
			require.NotNil(t, child, "slot %d of entry %p holds a non-entry", i, e)
			require.Same(t, e, child.parentEntry(), "child %p does not link back to %p", child, e)
			require.Equal(t, i, child.parentOffset, "child %p has a stale parent offset", child)
			walk(child, level+1)
		}

		require.Equal(t, occupied, e.refCnt, "entry %p refcount out of sync", e)
	}

	walk(&ix.root, 0)
}

func TestCompileLayout(t *testing.T) {
	ix := newTestIndex(t)

	require.Len(t, ix.levels, 6)
	assert.Equal(t, levelDesc{bits: 8, size: 256, offset: 56}, ix.levels[0])
	for i := 1; i < 5; i++ {
		assert.Equal(t, 12, ix.levels[i].bits)
		assert.Equal(t, 1<<12, ix.levels[i].size)
	}
	assert.Equal(t, levelDesc{bits: 8, size: 256, offset: 0}, ix.levels[5])
}

func TestSingleInsertFindRemove(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	const (
		key   = uint64(0x0102030401020304)
		value = uint64(0x04030201)
	)

	entry, off, err := ix.Insert(key, value, false)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.IsLowest())
	assert.Equal(t, 0x04, off)
	checkInvariants(t, ix)

	got, foundEntry, foundOff, err := ix.Find(key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
	assert.Same(t, entry, foundEntry)
	assert.Equal(t, off, foundOff)

	require.NoError(t, ix.Remove(key))
	checkInvariants(t, ix)

	_, _, _, err = ix.Find(key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSixDiverseKeys(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	pairs := []struct{ key, value uint64 }{
		{0x0102030401020304, 0x04030201},
		{0x0102030401020305, 0x66666666},
		{0x123456, 0x234567},
		{0x765432, 0x542123},
		{0x1, 0x1},
		{0xdeadbeefdeadbeef, 0xdeadbeef},
	}

	for _, p := range pairs {
		_, _, err := ix.Insert(p.key, p.value, false)
		require.NoError(t, err, "insert %#x", p.key)
	}
	checkInvariants(t, ix)

	for _, p := range pairs {
		got, _, _, err := ix.Find(p.key)
		require.NoError(t, err, "find %#x", p.key)
		assert.Equal(t, p.value, got, "value of %#x", p.key)
	}

	for _, p := range pairs {
		require.NoError(t, ix.Remove(p.key), "remove %#x", p.key)
	}

	assert.Equal(t, 0, ix.root.refCnt)
	for i := range ix.root.slots {
		assert.Nil(t, ix.root.slots[i], "root slot %d still occupied", i)
	}
	assert.Equal(t, 0, ix.lowPool.Live())
	assert.Equal(t, 0, ix.midPool.Live())
}

func TestFindOnFreshIndex(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	for _, key := range []uint64{0, 1, 0xffffffffffffffff, 0x0102030401020304} {
		_, _, _, err := ix.Find(key)
		assert.ErrorIs(t, err, ErrNotFound, "find %#x", key)
	}
}

func TestDuplicateInsertWithoutReplace(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	const key = uint64(0x123456)

	_, _, err := ix.Insert(key, 1, false)
	require.NoError(t, err)

	_, _, err = ix.Insert(key, 2, false)
	assert.ErrorIs(t, err, ErrExists)

	got, _, _, err := ix.Find(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)
}

func TestInsertReplace(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	const key = uint64(0xdead)

	entry, _, err := ix.Insert(key, 1, false)
	require.NoError(t, err)
	before := entry.refCnt

	_, _, err = ix.Insert(key, 2, true)
	require.NoError(t, err)
	assert.Equal(t, before, entry.refCnt, "replacement must not change the refcount")

	got, _, _, err := ix.Find(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	const key = uint64(0x42)

	_, _, err := ix.Insert(key, 7, false)
	require.NoError(t, err)

	require.NoError(t, ix.Remove(key))
	assert.ErrorIs(t, ix.Remove(key), ErrNotFound)
	assert.Equal(t, 0, ix.lowPool.Live())
	assert.Equal(t, 0, ix.midPool.Live())
}

func TestRemoveKeepsSharedPath(t *testing.T) {
	ix := newTestIndex(t)
	defer ix.Destroy()

	// both keys share every level but the last slot
	const (
		a = uint64(0x0102030401020304)
		b = uint64(0x0102030401020305)
	)

	_, _, err := ix.Insert(a, 1, false)
	require.NoError(t, err)
	_, _, err = ix.Insert(b, 2, false)
	require.NoError(t, err)

	require.NoError(t, ix.Remove(a))
	checkInvariants(t, ix)

	got, _, _, err := ix.Find(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)
}

func TestInvalidConfigs(t *testing.T) {
	bad := []Config[uint64]{
		{Levels: 5, Bits: 64, RootBits: 8, LowBits: 8},  // 48 % 5 != 0
		{Levels: 0, Bits: 64, RootBits: 8, LowBits: 8},  // no mid levels
		{Levels: 4, Bits: 0, RootBits: 8, LowBits: 8},   // no key bits
		{Levels: 4, Bits: 65, RootBits: 8, LowBits: 8},  // wider than a key
		{Levels: 4, Bits: 64, RootBits: 0, LowBits: 8},  // no root level
		{Levels: 4, Bits: 64, RootBits: 8, LowBits: 0},  // no lowest level
		{Levels: 4, Bits: 16, RootBits: 8, LowBits: 8},  // nothing left for mids
		{Levels: 4, Bits: 64, RootBits: 60, LowBits: 8}, // mids underflow
	}

	for _, cfg := range bad {
		_, err := New[uint64](cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "config %+v", cfg)
	}
}

func TestClusterSizeValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = NewMemStore()

	// storage without a cluster size
	_, err := New[uint64](cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	footprint := LowestEntryFootprint[uint64](8)

	// not a multiple
	cfg.ClusterSize = footprint + 1
	_, err = New[uint64](cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// multiple, but not a power-of-two one
	cfg.ClusterSize = footprint * 3
	_, err = New[uint64](cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.ClusterSize = footprint * 4
	ix, err := New[uint64](cfg)
	require.NoError(t, err)
	ix.Destroy()
}

func TestDestroyFreesEverything(t *testing.T) {
	ix := newTestIndex(t)

	for key := uint64(0); key < 1000; key += 7 {
		_, _, err := ix.Insert(key, key+1, false)
		require.NoError(t, err)
	}

	ix.Destroy()

	assert.Equal(t, 0, ix.lowPool.Live())
	assert.Equal(t, 0, ix.midPool.Live())
	assert.Equal(t, int64(0), ix.TotalBytes())
}

// accountingRecorder captures the accounting hook stream.
type accountingRecorder struct {
	allocs, frees int
	total         int
}

func (a *accountingRecorder) OnEntryAlloc(delta, total int) {
	a.allocs++
	a.total = total
}

func (a *accountingRecorder) OnEntryFree(delta, total int) {
	a.frees++
	a.total = total
}

func TestAccountingHooks(t *testing.T) {
	rec := &accountingRecorder{}
	cfg := testConfig()
	cfg.Accounting = rec

	ix, err := New[uint64](cfg)
	require.NoError(t, err)
	defer ix.Destroy()

	_, _, err = ix.Insert(0x0102030401020304, 1, false)
	require.NoError(t, err)

	// one entry per level below the root
	assert.Equal(t, len(ix.levels)-1, rec.allocs)
	assert.Equal(t, int(ix.TotalBytes()), rec.total)
	assert.Positive(t, rec.total)

	require.NoError(t, ix.Remove(0x0102030401020304))
	assert.Equal(t, rec.allocs, rec.frees)
	assert.Equal(t, 0, rec.total)
}
