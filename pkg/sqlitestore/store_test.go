package sqlitestore_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koolkhel/cch-index/pkg/cchindex"
	"github.com/koolkhel/cch-index/pkg/sqlitestore"
)

func TestWriteReadCluster(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	out := bytes.Repeat([]byte{0xa5}, 512)
	require.NoError(t, s.WriteClusterData(0, out))

	// overwrite is an upsert
	out[0] = 0x5a
	require.NoError(t, s.WriteClusterData(0, out))

	in := make([]byte, 512)
	n, err := s.ReadClusterData(0, in)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, out, in)

	_, err = s.ReadClusterData(4096, in)
	assert.Error(t, err)
}

func TestSaveBracketsTransaction(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartFullSave())
	assert.Error(t, s.StartFullSave(), "nested full save")

	require.NoError(t, s.WriteClusterData(0, make([]byte, 64)))
	require.NoError(t, s.FinishFullSave())
	assert.Error(t, s.FinishFullSave(), "no save in progress")

	in := make([]byte, 64)
	_, err = s.ReadClusterData(0, in)
	require.NoError(t, err)
}

func TestIndexImageRoundTrip(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cfg := func() cchindex.Config[uint64] {
		return cchindex.Config[uint64]{
			Levels:      4,
			Bits:        64,
			RootBits:    8,
			LowBits:     8,
			ClusterSize: cchindex.LowestEntryFootprint[uint64](8) * 2,
			Storage:     s,
			EncodeValue: func(v uint64) uint64 { return v },
			DecodeValue: func(ref uint64) uint64 { return ref },
		}
	}

	ix, err := cchindex.New[uint64](cfg())
	require.NoError(t, err)

	keys := []uint64{0x1, 0x123456, 0xdeadbeefdeadbeef}
	for _, k := range keys {
		_, _, err := ix.Insert(k, k^0xffff, false)
		require.NoError(t, err)
	}

	rootOff, err := ix.Save()
	require.NoError(t, err)
	ix.Destroy()

	loaded, err := cchindex.New[uint64](cfg())
	require.NoError(t, err)
	defer loaded.Destroy()

	require.NoError(t, loaded.Load(rootOff))
	for _, k := range keys {
		got, _, _, err := loaded.Find(k)
		require.NoError(t, err)
		assert.Equal(t, k^0xffff, got)
	}
}
